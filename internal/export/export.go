// Package export serializes stored EvalRecords into ML-training-ready
// datasets. Redaction is opt-in and never changes record shape or count; it
// only rewrites free-text fields.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"autoeval/internal/record"
)

// Format selects the output serialization.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// ParseFormat validates a user-supplied format string.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSONL:
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want csv or jsonl)", s)
	}
}

// Export serializes records in the given format, optionally redacting
// free-text fields. The input slice is never mutated and the output always
// contains exactly one row per record.
func Export(records []*record.EvalRecord, format Format, redact bool) ([]byte, error) {
	prepared := records
	if redact {
		prepared = make([]*record.EvalRecord, len(records))
		for i, r := range records {
			prepared[i] = redactRecord(r)
		}
	}

	switch format {
	case FormatJSONL:
		return exportJSONL(prepared)
	case FormatCSV:
		return exportCSV(prepared)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// redactRecord deep-copies r with free-text fields redacted. Identity fields
// (PR URL, issue ID) are part of the record shape and stay intact.
func redactRecord(r *record.EvalRecord) *record.EvalRecord {
	clone := *r
	clone.Rationale = redactText(r.Rationale)
	if len(r.InterventionDetails) > 0 {
		details := make([]string, len(r.InterventionDetails))
		for i, d := range r.InterventionDetails {
			details[i] = redactText(d)
		}
		clone.InterventionDetails = details
	}
	if len(r.Metadata) > 0 {
		clone.Metadata = redactValue(r.Metadata).(map[string]any)
	}
	return &clone
}

func exportJSONL(records []*record.EvalRecord) ([]byte, error) {
	var buf bytes.Buffer
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal record %s: %w", r.ID, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

var csvHeader = []string{
	"id", "timestamp", "issue_id", "pr_url", "judge_model", "judge_provider",
	"score", "score_band", "intervention_required", "intervention_count",
	"intervention_details", "workflow_cost_usd", "rationale",
}

func exportCSV(records []*record.EvalRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		cost := ""
		if r.WorkflowCostUSD != nil {
			cost = strconv.FormatFloat(*r.WorkflowCostUSD, 'f', 6, 64)
		}
		row := []string{
			r.ID,
			r.Timestamp.UTC().Format(time.RFC3339),
			r.IssueID,
			r.PRURL,
			r.JudgeModel,
			r.JudgeProvider,
			strconv.FormatFloat(r.Score, 'f', 3, 64),
			record.BandFor(r.Score).Label,
			strconv.FormatBool(r.InterventionRequired),
			strconv.Itoa(r.InterventionCount),
			strings.Join(r.InterventionDetails, "; "),
			cost,
			r.Rationale,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row for %s: %w", r.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
