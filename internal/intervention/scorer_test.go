package intervention

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"autoeval/internal/record"
)

func TestScoreWeightedSum(t *testing.T) {
	weights := DefaultWeights()
	events := []record.InterventionEvent{
		{Type: record.EventReviewComment, Count: 2},
		{Type: record.EventManualEdit, Count: 1},
	}
	// 2*0.05 + 1*0.3
	assert.InDelta(t, 0.4, Score(events, weights), 1e-9)
}

func TestScoreOrderIndependent(t *testing.T) {
	weights := DefaultWeights()
	forward := []record.InterventionEvent{
		{Type: record.EventReviewComment, Count: 3},
		{Type: record.EventPostPRCommit, Count: 2},
		{Type: record.EventTestFix, Count: 1},
	}
	reversed := []record.InterventionEvent{forward[2], forward[1], forward[0]}
	assert.Equal(t, Score(forward, weights), Score(reversed, weights))
}

func TestScoreUnknownTypeContributesZero(t *testing.T) {
	events := []record.InterventionEvent{{Type: record.EventType("mystery"), Count: 5}}
	assert.Zero(t, Score(events, DefaultWeights()))
}

func TestSummarizeMatchesInvariant(t *testing.T) {
	weights := map[record.EventType]float64{
		record.EventReviewComment: 0.07,
		record.EventTestFix:       0.25,
	}
	events := []record.InterventionEvent{
		{Type: record.EventReviewComment, Count: 4},
		{Type: record.EventTestFix, Count: 2},
	}
	s := Summarize(events, weights)

	expected := 0.0
	for _, ev := range s.Events {
		expected += float64(ev.Count) * weights[ev.Type]
	}
	assert.InDelta(t, expected, s.TotalScore, 1e-9)
}

func TestFormatForJudgeNamesEvents(t *testing.T) {
	s := Summarize([]record.InterventionEvent{
		{Type: record.EventReviewComment, Count: 2, Details: []string{"comment by alice: tighten error handling"}},
		{Type: record.EventManualEdit, Count: 1},
	}, DefaultWeights())

	text := FormatForJudge(s)
	assert.Contains(t, text, "review_comment: 2")
	assert.Contains(t, text, "manual_edit: 1")
	assert.Contains(t, text, "tighten error handling")
	assert.Contains(t, text, "0.40")
}

func TestFormatForJudgeEmpty(t *testing.T) {
	text := FormatForJudge(Summarize(nil, DefaultWeights()))
	assert.Contains(t, text, "No human intervention signals")
}
