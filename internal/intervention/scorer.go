package intervention

import (
	"fmt"
	"strings"

	"autoeval/internal/record"
)

// DefaultWeights are the documented per-event penalty weights. Override per
// repository through configuration; the raw events can be rescored later
// without rescanning.
func DefaultWeights() map[record.EventType]float64 {
	return map[record.EventType]float64{
		record.EventReviewComment: 0.05,
		record.EventPostPRCommit:  0.1,
		record.EventManualEdit:    0.3,
		record.EventTestFix:       0.2,
	}
}

// Score computes the weighted intervention penalty. The result depends only
// on counts and weights, never on event ordering. Event types missing from
// weights contribute zero.
func Score(events []record.InterventionEvent, weights map[record.EventType]float64) float64 {
	total := 0.0
	for _, ev := range events {
		total += float64(ev.Count) * weights[ev.Type]
	}
	return total
}

// Summarize pairs the classified events with their weighted score.
func Summarize(events []record.InterventionEvent, weights map[record.EventType]float64) record.InterventionSummary {
	return record.InterventionSummary{
		Events:     events,
		TotalScore: Score(events, weights),
	}
}

// FormatForJudge renders the summary as prose for the judge prompt. It always
// names concrete event types and counts, never just an opaque number, so the
// rationale the judge produces can be checked against named events.
func FormatForJudge(s record.InterventionSummary) string {
	if len(s.Events) == 0 {
		return "No human intervention signals were detected. The workflow appears fully autonomous."
	}

	var sb strings.Builder
	sb.WriteString("Detected human intervention signals:\n")
	for _, ev := range s.Events {
		fmt.Fprintf(&sb, "- %s: %d occurrence(s)\n", ev.Type, ev.Count)
		for _, detail := range ev.Details {
			fmt.Fprintf(&sb, "  * %s\n", detail)
		}
	}
	fmt.Fprintf(&sb, "Weighted intervention score: %.2f\n", s.TotalScore)
	return sb.String()
}
