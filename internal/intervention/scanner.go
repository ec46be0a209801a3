// Package intervention derives human-intervention signals for a workflow
// branch from git history and PR review activity, then scores them with
// configurable penalty weights. Detection favors false positives: an
// informational comment counts, because missing a real intervention is worse
// than over-counting one.
package intervention

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"autoeval/internal/gitexec"
	"autoeval/internal/logging"
	"autoeval/internal/record"
)

// Scanner classifies intervention events for one repository.
type Scanner struct {
	repoDir         string
	agentAuthors    []string
	testFixPatterns []string
	run             gitexec.Runner
	logger          logging.Logger
}

// NewScanner creates a Scanner. agentAuthors are lowercase substrings matched
// against "name <email>" to recognize the agent's own commits; testFixPatterns
// are lowercase substrings matched against commit subjects.
func NewScanner(repoDir string, agentAuthors, testFixPatterns []string, run gitexec.Runner, logger logging.Logger) *Scanner {
	if run == nil {
		run = gitexec.Run
	}
	return &Scanner{
		repoDir:         repoDir,
		agentAuthors:    lowerAll(agentAuthors),
		testFixPatterns: lowerAll(testFixPatterns),
		run:             run,
		logger:          logging.OrNop(logger),
	}
}

type prInfo struct {
	CreatedAt time.Time `json:"createdAt"`
	Comments  []struct {
		Author struct {
			Login string `json:"login"`
		} `json:"author"`
		Body string `json:"body"`
	} `json:"comments"`
	Reviews []struct {
		Author struct {
			Login string `json:"login"`
		} `json:"author"`
		State string `json:"state"`
		Body  string `json:"body"`
	} `json:"reviews"`
}

type commit struct {
	hash    string
	author  string // "name <email>", lowercased
	when    time.Time
	subject string
}

// Scan classifies intervention events for the branch. Classifications are
// independent and additive: one commit may appear under several event types,
// and no de-duplication is attempted. Every source lookup failure degrades to
// an empty signal for that source, never an error, so a partial scan still
// yields an evaluation.
func (s *Scanner) Scan(ctx context.Context, prNumber int, branch, base string) []record.InterventionEvent {
	events := make(map[record.EventType]*record.InterventionEvent)
	add := func(t record.EventType, detail string) {
		ev, ok := events[t]
		if !ok {
			ev = &record.InterventionEvent{Type: t}
			events[t] = ev
		}
		ev.Count++
		if detail != "" {
			ev.Details = append(ev.Details, detail)
		}
	}

	pr, prErr := s.lookupPR(ctx, prNumber)
	if prErr != nil {
		s.logger.Warn("PR #%d lookup unavailable, skipping review signals: %v", prNumber, prErr)
	} else {
		for _, c := range pr.Comments {
			add(record.EventReviewComment, fmt.Sprintf("comment by %s: %s", c.Author.Login, snippet(c.Body)))
		}
		for _, r := range pr.Reviews {
			if r.Body == "" && r.State != "CHANGES_REQUESTED" {
				continue
			}
			add(record.EventReviewComment, fmt.Sprintf("review by %s (%s): %s", r.Author.Login, r.State, snippet(r.Body)))
		}
	}

	commits, commitErr := s.lookupCommits(ctx, branch, base)
	if commitErr != nil {
		s.logger.Warn("commit history unavailable for %s..%s, skipping commit signals: %v", base, branch, commitErr)
	}

	for _, c := range commits {
		postPR := prErr == nil && !pr.CreatedAt.IsZero() && c.when.After(pr.CreatedAt)
		manual := len(s.agentAuthors) > 0 && !s.isAgentAuthor(c.author)

		if postPR {
			add(record.EventPostPRCommit, fmt.Sprintf("commit %s after PR creation: %s", c.hash, snippet(c.subject)))
		}
		if manual {
			add(record.EventManualEdit, fmt.Sprintf("commit %s by %s: %s", c.hash, c.author, snippet(c.subject)))
		}
		if (postPR || manual) && s.looksLikeTestFix(c.subject) {
			add(record.EventTestFix, fmt.Sprintf("commit %s: %s", c.hash, snippet(c.subject)))
		}
	}

	// Fixed order keeps summaries and scores deterministic across runs.
	var ordered []record.InterventionEvent
	for _, t := range record.KnownEventTypes {
		if ev, ok := events[t]; ok {
			ordered = append(ordered, *ev)
		}
	}
	return ordered
}

func (s *Scanner) lookupPR(ctx context.Context, prNumber int) (*prInfo, error) {
	if prNumber <= 0 {
		return nil, fmt.Errorf("no PR number")
	}
	out, err := gitexec.Gh(ctx, s.run, s.repoDir, "pr", "view", strconv.Itoa(prNumber),
		"--json", "createdAt,comments,reviews")
	if err != nil {
		return nil, err
	}
	var info prInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return nil, fmt.Errorf("parse gh pr view output: %w", err)
	}
	return &info, nil
}

func (s *Scanner) lookupCommits(ctx context.Context, branch, base string) ([]commit, error) {
	if branch == "" || base == "" {
		return nil, fmt.Errorf("branch and base required")
	}
	out, err := gitexec.Git(ctx, s.run, s.repoDir, "log",
		fmt.Sprintf("%s..%s", base, branch),
		"--pretty=format:%H%x1f%an%x1f%ae%x1f%aI%x1f%s")
	if err != nil {
		return nil, err
	}
	var commits []commit
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "\x1f")
		if len(fields) != 5 {
			continue
		}
		when, err := time.Parse(time.RFC3339, fields[3])
		if err != nil {
			continue
		}
		commits = append(commits, commit{
			hash:    shortHash(fields[0]),
			author:  strings.ToLower(fmt.Sprintf("%s <%s>", fields[1], fields[2])),
			when:    when,
			subject: fields[4],
		})
	}
	return commits, nil
}

func (s *Scanner) isAgentAuthor(author string) bool {
	for _, pattern := range s.agentAuthors {
		if pattern != "" && strings.Contains(author, pattern) {
			return true
		}
	}
	return false
}

func (s *Scanner) looksLikeTestFix(subject string) bool {
	lower := strings.ToLower(subject)
	for _, pattern := range s.testFixPatterns {
		if pattern != "" && strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(strings.TrimSpace(v)))
	}
	return out
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

func snippet(text string) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if len(cleaned) > 120 {
		return cleaned[:117] + "..."
	}
	return cleaned
}
