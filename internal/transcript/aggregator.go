// Package transcript aggregates per-model token usage out of execution
// transcript directories. Transcripts are JSONL session logs; each assistant
// turn carries a usage block and a gitBranch tag identifying the workflow
// branch it belongs to. Worktrees relocate over time, so aggregation always
// scans every configured root, not just the one tied to the current checkout.
package transcript

import (
	"bufio"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"autoeval/internal/logging"
	"autoeval/internal/record"
)

const maxLineBytes = 10 * 1024 * 1024

// Aggregator sums token usage for a branch across transcript roots.
type Aggregator struct {
	roots  []string
	logger logging.Logger
}

// NewAggregator creates an Aggregator over the given transcript roots.
// Missing roots are tolerated at scan time.
func NewAggregator(roots []string, logger logging.Logger) *Aggregator {
	return &Aggregator{roots: roots, logger: logging.OrNop(logger)}
}

// transcriptLine is the subset of a session log line the aggregator reads.
// Malformed lines fail to unmarshal and are skipped.
type transcriptLine struct {
	Type      string `json:"type"`
	GitBranch string `json:"gitBranch"`
	Message   *struct {
		Model string      `json:"model"`
		Usage *usageBlock `json:"usage"`
	} `json:"message"`
}

type usageBlock struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
}

// Aggregate scans every root for JSONL transcripts and sums the four token
// categories per model for turns tagged with branch. It returns nil when no
// matching turn exists, which callers must treat as "no cost data" rather
// than zero cost. Unreadable roots and malformed lines degrade to logged
// warnings; aggregation itself never fails.
func (a *Aggregator) Aggregate(branch string) map[string]record.ModelTokenUsage {
	if branch == "" {
		return nil
	}

	usage := make(map[string]record.ModelTokenUsage)
	matched := false

	for _, dir := range a.dedupedRoots() {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable subtree, keep going
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
				return nil
			}
			if a.sumFile(path, branch, usage) {
				matched = true
			}
			return nil
		})
		if err != nil {
			a.logger.Warn("transcript walk failed for %s: %v", dir, err)
		}
	}

	if !matched {
		return nil
	}
	return usage
}

// dedupedRoots resolves each root so the same directory reached through two
// paths (symlinked worktrees, trailing slashes) is only summed once.
func (a *Aggregator) dedupedRoots() []string {
	seen := make(map[string]struct{}, len(a.roots))
	var roots []string
	for _, dir := range a.roots {
		resolved := dir
		if abs, err := filepath.Abs(dir); err == nil {
			resolved = abs
		}
		if real, err := filepath.EvalSymlinks(resolved); err == nil {
			resolved = real
		}
		if _, ok := seen[resolved]; ok {
			continue
		}
		seen[resolved] = struct{}{}
		roots = append(roots, resolved)
	}
	return roots
}

// sumFile adds the matching turns of one transcript to usage and reports
// whether any turn matched.
func (a *Aggregator) sumFile(path, branch string, usage map[string]record.ModelTokenUsage) bool {
	f, err := os.Open(path)
	if err != nil {
		a.logger.Warn("open transcript %s: %v", path, err)
		return false
	}
	defer f.Close()

	matched := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxLineBytes)

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var line transcriptLine
		if err := json.Unmarshal(raw, &line); err != nil {
			continue // malformed line, skip
		}
		if line.Type != "assistant" || line.GitBranch != branch {
			continue
		}
		if line.Message == nil || line.Message.Usage == nil {
			continue
		}

		model := line.Message.Model
		if model == "" {
			model = "unknown"
		}
		u := usage[model]
		u.InputTokens += line.Message.Usage.InputTokens
		u.OutputTokens += line.Message.Usage.OutputTokens
		u.CacheReadTokens += line.Message.Usage.CacheReadInputTokens
		u.CacheCreationTokens += line.Message.Usage.CacheCreationInputTokens
		usage[model] = u
		matched = true
	}
	if err := scanner.Err(); err != nil {
		a.logger.Warn("scan transcript %s: %v", path, err)
	}
	return matched
}
