package record

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBandFor(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{1.0, "Full Success"},
		{0.9, "Full Success"},
		{0.89, "Minor Feedback"},
		{0.8, "Minor Feedback"},
		{0.79, "Assisted Success"},
		{0.5, "Assisted Success"},
		{0.49, "Partial"},
		{0.2, "Partial"},
		{0.19, "Failure"},
		{0.0, "Failure"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BandFor(tt.score).Label, "score %.2f", tt.score)
	}
}

func validRecord() *EvalRecord {
	return &EvalRecord{
		ID:         "rec-1",
		JudgeModel: "gpt-4o",
		Score:      0.95,
		Rationale:  "fully autonomous",
		Timestamp:  time.Now(),
	}
}

func TestEvalRecordValidate(t *testing.T) {
	require.NoError(t, validRecord().Validate())

	r := validRecord()
	r.Score = 1.2
	assert.Error(t, r.Validate())

	r = validRecord()
	r.Score = math.NaN()
	assert.Error(t, r.Validate())

	r = validRecord()
	r.JudgeModel = ""
	assert.Error(t, r.Validate())

	r = validRecord()
	r.Timestamp = time.Time{}
	assert.Error(t, r.Validate())

	r = validRecord()
	negative := -0.01
	r.WorkflowCostUSD = &negative
	assert.Error(t, r.Validate())
}

func TestInterventionSummaryTotals(t *testing.T) {
	s := InterventionSummary{
		Events: []InterventionEvent{
			{Type: EventReviewComment, Count: 2, Details: []string{"a", "b"}},
			{Type: EventManualEdit, Count: 1, Details: []string{"c"}},
		},
	}
	assert.Equal(t, 3, s.TotalCount())
	assert.Equal(t, []string{"a", "b", "c"}, s.AllDetails())
}

func TestHasCostData(t *testing.T) {
	r := validRecord()
	assert.False(t, r.HasCostData())

	cost := 0.5
	r.WorkflowCostUSD = &cost
	assert.True(t, r.HasCostData())

	r = validRecord()
	r.WorkflowTokenUsage = map[string]ModelTokenUsage{"gpt-4o": {InputTokens: 10}}
	assert.True(t, r.HasCostData())
}
