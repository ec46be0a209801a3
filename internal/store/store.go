// Package store persists finalized EvalRecords as append-only JSONL. Records
// are keyed by nothing but insertion order; there is no update-in-place. The
// one batch exception is cost backfill, which rewrites the whole file
// atomically and must never run concurrently with live appends or another
// backfill.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"autoeval/internal/record"
)

const recordsFile = "eval_records.jsonl"

// Store is an append-only JSONL store of EvalRecords.
type Store struct {
	path string
	mu   sync.Mutex
}

// Open prepares a store rooted at dir, creating it when missing.
func Open(dir string) (*Store, error) {
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{path: filepath.Join(dir, recordsFile)}, nil
}

// Path returns the backing JSONL file path.
func (s *Store) Path() string { return s.path }

// Append validates and persists one record. The marshaled record plus its
// trailing newline go down in a single write call so concurrent evaluators
// never interleave partial lines.
func (s *Store) Append(r *record.EvalRecord) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("refusing to append invalid record: %w", err)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// Filter selects records on read. Zero values mean "no constraint".
type Filter struct {
	Model    string
	From     time.Time
	To       time.Time
	MinScore *float64
	MaxScore *float64
}

func (f Filter) matches(r *record.EvalRecord) bool {
	if f.Model != "" && !usesModel(r, f.Model) {
		return false
	}
	if !f.From.IsZero() && r.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.Timestamp.After(f.To) {
		return false
	}
	if f.MinScore != nil && r.Score < *f.MinScore {
		return false
	}
	if f.MaxScore != nil && r.Score > *f.MaxScore {
		return false
	}
	return true
}

// usesModel matches either the judge model or any model that consumed tokens
// in the workflow.
func usesModel(r *record.EvalRecord, model string) bool {
	if r.JudgeModel == model {
		return true
	}
	_, ok := r.WorkflowTokenUsage[model]
	return ok
}

// List reads all records matching the filter in insertion order. Malformed
// lines are skipped, not fatal: a partially readable store still yields data.
func (s *Store) List(f Filter) ([]*record.EvalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return nil, err
	}
	var records []*record.EvalRecord
	for _, line := range lines {
		var r record.EvalRecord
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			continue
		}
		if f.matches(&r) {
			records = append(records, &r)
		}
	}
	return records, nil
}

// BackfillResult reports what a backfill pass did.
type BackfillResult struct {
	Total   int
	Updated int
	Skipped int
}

// CostFiller computes the cost fields for one historical record, returning
// nil values when no transcript data exists for it.
type CostFiller func(r *record.EvalRecord) (*float64, map[string]record.ModelTokenUsage)

// BackfillCosts adds workflow cost fields to historical records that lack
// them. Populated records are never touched, which makes the pass idempotent:
// a second run reports zero updates. Lines that fail to parse are preserved
// byte-for-byte. The rewrite goes through a temp file and rename so a crash
// never leaves a truncated store.
func (s *Store) BackfillCosts(fill CostFiller, dryRun bool) (BackfillResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return BackfillResult{}, err
	}

	result := BackfillResult{Total: len(lines)}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		var r record.EvalRecord
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			out = append(out, line)
			result.Skipped++
			continue
		}
		if r.HasCostData() {
			out = append(out, line)
			result.Skipped++
			continue
		}

		cost, usage := fill(&r)
		if cost == nil && len(usage) == 0 {
			out = append(out, line)
			result.Skipped++
			continue
		}
		r.WorkflowCostUSD = cost
		r.WorkflowTokenUsage = usage
		updated, err := json.Marshal(&r)
		if err != nil {
			out = append(out, line)
			result.Skipped++
			continue
		}
		out = append(out, string(updated))
		result.Updated++
	}

	if dryRun || result.Updated == 0 {
		return result, nil
	}

	tmp := s.path + ".tmp"
	content := strings.Join(out, "\n")
	if len(out) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return result, fmt.Errorf("write backfill temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return result, fmt.Errorf("replace store file: %w", err)
	}
	return result, nil
}

// Stats summarizes the store for reporting: total records and counts per
// score band label.
func (s *Store) Stats() (total int, byBand map[string]int, err error) {
	records, err := s.List(Filter{})
	if err != nil {
		return 0, nil, err
	}
	byBand = make(map[string]int)
	for _, r := range records {
		byBand[record.BandFor(r.Score).Label]++
	}
	return len(records), byBand, nil
}

func (s *Store) readLines() ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan store: %w", err)
	}
	return lines, nil
}
