// Package record defines the data model shared by the evaluation pipeline:
// intervention events, per-model token usage, the persisted EvalRecord, and
// the derived score bands. Everything that crosses a process or file boundary
// is validated here rather than trusted downstream.
package record

import (
	"fmt"
	"math"
	"time"
)

// EventType classifies a detected human intervention.
type EventType string

const (
	EventReviewComment EventType = "review_comment"
	EventPostPRCommit  EventType = "post_pr_commit"
	EventManualEdit    EventType = "manual_edit"
	EventTestFix       EventType = "test_fix"
)

// KnownEventTypes lists all classifications in their canonical order.
var KnownEventTypes = []EventType{
	EventReviewComment,
	EventPostPRCommit,
	EventManualEdit,
	EventTestFix,
}

// InterventionEvent is one classified intervention signal. Events are
// recomputed fresh per evaluation and never merged across runs.
type InterventionEvent struct {
	Type    EventType `json:"type"`
	Count   int       `json:"count"`
	Details []string  `json:"details,omitempty"`
}

// InterventionSummary holds the classified events plus their weighted score.
type InterventionSummary struct {
	Events     []InterventionEvent `json:"events"`
	TotalScore float64             `json:"total_intervention_score"`
}

// TotalCount sums event counts across all classifications. Classifications
// are independent, so a single commit may be counted more than once here.
func (s InterventionSummary) TotalCount() int {
	total := 0
	for _, ev := range s.Events {
		total += ev.Count
	}
	return total
}

// AllDetails flattens event detail strings in event order.
func (s InterventionSummary) AllDetails() []string {
	var details []string
	for _, ev := range s.Events {
		details = append(details, ev.Details...)
	}
	return details
}

// ModelTokenUsage aggregates token counts and cost for one model identifier.
// Unpriced marks models missing from the pricing table; their tokens are kept
// for future repricing and contribute zero cost.
type ModelTokenUsage struct {
	InputTokens         int64   `json:"input_tokens"`
	CacheCreationTokens int64   `json:"cache_creation_tokens"`
	CacheReadTokens     int64   `json:"cache_read_tokens"`
	OutputTokens        int64   `json:"output_tokens"`
	CostUSD             float64 `json:"cost_usd"`
	Unpriced            bool    `json:"unpriced,omitempty"`
}

// EvalRecord is the canonical persisted unit of truth for one evaluated
// workflow. Records are append-only; backfill may add cost fields when absent
// but never overwrites populated ones.
type EvalRecord struct {
	ID                   string                     `json:"id"`
	IssueID              string                     `json:"issue_id,omitempty"`
	PRURL                string                     `json:"pr_url,omitempty"`
	JudgeModel           string                     `json:"judge_model"`
	JudgeProvider        string                     `json:"judge_provider,omitempty"`
	Score                float64                    `json:"score"`
	Rationale            string                     `json:"rationale"`
	InterventionRequired bool                       `json:"intervention_required"`
	InterventionCount    int                        `json:"intervention_count"`
	InterventionDetails  []string                   `json:"intervention_details,omitempty"`
	Metadata             map[string]any             `json:"metadata,omitempty"`
	WorkflowCostUSD      *float64                   `json:"workflow_cost_usd,omitempty"`
	WorkflowTokenUsage   map[string]ModelTokenUsage `json:"workflow_token_usage,omitempty"`
	Timestamp            time.Time                  `json:"timestamp"`
}

// HasCostData reports whether a backfill pass has anything left to add.
func (r *EvalRecord) HasCostData() bool {
	return r.WorkflowCostUSD != nil || len(r.WorkflowTokenUsage) > 0
}

// Validate rejects records that must not enter the store.
func (r *EvalRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record missing id")
	}
	if r.JudgeModel == "" {
		return fmt.Errorf("record missing judge model")
	}
	if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) {
		return fmt.Errorf("record score is not finite")
	}
	if r.Score < 0 || r.Score > 1 {
		return fmt.Errorf("record score %.3f outside [0,1]", r.Score)
	}
	if r.InterventionCount < 0 {
		return fmt.Errorf("negative intervention count %d", r.InterventionCount)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("record missing timestamp")
	}
	if r.WorkflowCostUSD != nil && *r.WorkflowCostUSD < 0 {
		return fmt.Errorf("negative workflow cost %.6f", *r.WorkflowCostUSD)
	}
	return nil
}

// ScoreBand buckets a numeric score into a human-readable success tier.
// Derived on demand, never stored.
type ScoreBand struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Band thresholds are fixed; changing them invalidates historical reporting.
func BandFor(score float64) ScoreBand {
	switch {
	case score >= 0.9:
		return ScoreBand{Label: "Full Success", Description: "completed autonomously with no meaningful intervention"}
	case score >= 0.8:
		return ScoreBand{Label: "Minor Feedback", Description: "completed with cosmetic-only human feedback"}
	case score >= 0.5:
		return ScoreBand{Label: "Assisted Success", Description: "completed but required substantive human help"}
	case score >= 0.2:
		return ScoreBand{Label: "Partial", Description: "partially completed despite heavy intervention"}
	default:
		return ScoreBand{Label: "Failure", Description: "workflow did not produce an acceptable result"}
	}
}
