package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoeval/internal/evalconfig"
	"autoeval/internal/gitexec"
	"autoeval/internal/judge"
	"autoeval/internal/pricing"
	"autoeval/internal/record"
	"autoeval/internal/store"
)

type mockJudgeClient struct {
	content string
	err     error
}

func (m *mockJudgeClient) Complete(_ context.Context, _ judge.CompletionRequest) (*judge.CompletionResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &judge.CompletionResponse{Content: m.content}, nil
}

func (m *mockJudgeClient) Model() string { return "mock-judge" }

const prMetaJSON = `{"url":"https://github.com/acme/widgets/pull/7","title":"Add widget parser","body":"Implements the parser.","headRefName":"agent/feature-1","baseRefName":"main"}`

func fakeRunner(t *testing.T, scanJSON, gitLog string) gitexec.Runner {
	return func(_ context.Context, _, binary string, args ...string) (string, error) {
		joined := strings.Join(args, " ")
		switch {
		case binary == "gh" && strings.Contains(joined, "url,title"):
			return prMetaJSON, nil
		case binary == "gh" && strings.Contains(joined, "createdAt"):
			return scanJSON, nil
		case binary == "gh" && len(args) >= 2 && args[0] == "pr" && args[1] == "diff":
			return "diff --git a/parser.go b/parser.go\n+func Parse() {}", nil
		case binary == "git" && len(args) > 0 && args[0] == "log":
			return gitLog, nil
		case binary == "git" && len(args) > 0 && args[0] == "rev-parse":
			return "agent/feature-1", nil
		}
		return "", fmt.Errorf("unexpected command: %s %s", binary, joined)
	}
}

func testConfig(t *testing.T, transcriptDir string) evalconfig.Config {
	return evalconfig.Config{
		AgentAuthors:    []string{"agent@bots.dev"},
		TestFixPatterns: []string{"fix test", "fix failing"},
		JudgeProvider:   "openai",
		TranscriptDirs:  []string{transcriptDir},
	}
}

func fixtureTable() pricing.Table {
	return pricing.Table{"test-model": {InputPer1K: 0.003, OutputPer1K: 0.015}}
}

func writeTranscript(t *testing.T, dir, branch string, inputTokens int) {
	t.Helper()
	line := fmt.Sprintf(`{"type":"assistant","gitBranch":%q,"message":{"model":"test-model","usage":{"input_tokens":%d,"output_tokens":0,"cache_read_input_tokens":0,"cache_creation_input_tokens":0}}}`,
		branch, inputTokens)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.jsonl"), []byte(line+"\n"), 0o644))
}

func TestRunFullyAutonomousWorkflow(t *testing.T) {
	transcripts := t.TempDir()
	writeTranscript(t, transcripts, "agent/feature-1", 1000)

	// agent-only history, no comments, no post-PR commits
	scanJSON := `{"createdAt":"2026-01-10T00:00:00Z","comments":[],"reviews":[]}`
	gitLog := "aaaa1111\x1fAgent\x1fagent@bots.dev\x1f2026-01-09T12:00:00Z\x1fadd parser"

	st, err := store.Open(t.TempDir())
	require.NoError(t, err)

	client := &mockJudgeClient{content: `{"score": 1.0, "rationale": "fully autonomous, no interventions detected", "intervention_required": false}`}
	e := New(testConfig(t, transcripts), fixtureTable(), client, st, fakeRunner(t, scanJSON, gitLog), nil)

	result, err := e.Run(context.Background(), Options{PRNumber: 7, RepoDir: "/repo"})
	require.NoError(t, err)

	rec := result.Record
	assert.InDelta(t, 1.0, rec.Score, 1e-9)
	assert.False(t, rec.InterventionRequired)
	assert.Zero(t, rec.InterventionCount)
	assert.Equal(t, "Full Success", result.Band.Label)
	assert.Equal(t, "https://github.com/acme/widgets/pull/7", rec.PRURL)

	// 1000 input tokens at $0.003/1K from the transcript fixture
	require.NotNil(t, rec.WorkflowCostUSD)
	assert.InDelta(t, 0.003, *rec.WorkflowCostUSD, 1e-9)
	assert.Equal(t, int64(1000), rec.WorkflowTokenUsage["test-model"].InputTokens)

	assert.True(t, result.Persisted)
	stored, err := st.List(store.Filter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, rec.ID, stored[0].ID)
}

func TestRunInterventionHeavyWorkflow(t *testing.T) {
	transcripts := t.TempDir()

	// one comment and one substantive review (2 review_comment events) plus a
	// pre-PR manual edit: 2*0.05 + 1*0.3 = 0.4
	scanJSON := `{
	  "createdAt": "2026-01-10T00:00:00Z",
	  "comments": [{"author":{"login":"alice"},"body":"off by one in loop"}],
	  "reviews": [{"author":{"login":"bob"},"state":"CHANGES_REQUESTED","body":"this breaks pagination"}]
	}`
	gitLog := "cccc2222\x1fDana Dev\x1fdana@example.com\x1f2026-01-09T09:30:00Z\x1fcorrect pagination bounds"

	st, err := store.Open(t.TempDir())
	require.NoError(t, err)

	client := &mockJudgeClient{content: `{"score": 0.7, "rationale": "manual_edit by a human fixed the pagination bug", "intervention_required": true, "intervention_flags": ["manual_edit: fixed pagination bounds (functional)"], "functional_bug": true}`}
	e := New(testConfig(t, transcripts), fixtureTable(), client, st, fakeRunner(t, scanJSON, gitLog), nil)

	result, err := e.Run(context.Background(), Options{PRNumber: 7, RepoDir: "/repo"})
	require.NoError(t, err)

	assert.InDelta(t, 0.4, result.Summary.TotalScore, 1e-9)
	assert.Equal(t, 3, result.Record.InterventionCount)
	assert.True(t, result.Record.InterventionRequired)
	assert.LessOrEqual(t, result.Record.Score, judge.FunctionalBugCeiling)

	// no transcripts for this branch: cost data absent, not zero
	assert.Nil(t, result.Record.WorkflowCostUSD)
}

func TestRunFunctionalBugOverCeilingRejected(t *testing.T) {
	scanJSON := `{"createdAt":"2026-01-10T00:00:00Z","comments":[{"author":{"login":"alice"},"body":"bug"}],"reviews":[]}`
	gitLog := ""

	st, err := store.Open(t.TempDir())
	require.NoError(t, err)

	client := &mockJudgeClient{content: `{"score": 0.8, "rationale": "good apart from the bug", "intervention_required": true, "intervention_flags": ["manual_edit: fixed crash (functional)"], "functional_bug": true}`}
	e := New(testConfig(t, t.TempDir()), fixtureTable(), client, st, fakeRunner(t, scanJSON, gitLog), nil)

	_, err = e.Run(context.Background(), Options{PRNumber: 7, RepoDir: "/repo"})
	assert.ErrorIs(t, err, judge.ErrMalformedJudgeOutput)

	// a malformed verdict must never be persisted
	stored, err := st.List(store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRunRequiresContext(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	e := New(testConfig(t, t.TempDir()), fixtureTable(), &mockJudgeClient{}, st, fakeRunner(t, "{}", ""), nil)

	_, err = e.Run(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrContextUnresolved)
}

func TestRunDegradesWhenSourcesUnavailable(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)

	failing := func(_ context.Context, _, binary string, args ...string) (string, error) {
		return "", fmt.Errorf("%s unavailable", binary)
	}
	client := &mockJudgeClient{content: `{"score": 0.95, "rationale": "no signals available, diff looks complete", "intervention_required": false}`}
	e := New(testConfig(t, t.TempDir()), fixtureTable(), client, st, failing, nil)

	result, err := e.Run(context.Background(), Options{PRNumber: 7, RepoDir: "/repo"})
	require.NoError(t, err)

	// partial signal still yields a printed and persisted score
	assert.True(t, result.Persisted)
	assert.NotEmpty(t, result.Warnings)
	assert.Zero(t, result.Record.InterventionCount)
}

func TestNewCostFillerUsesRecordedBranch(t *testing.T) {
	transcripts := t.TempDir()
	writeTranscript(t, transcripts, "agent/feature-1", 2000)

	fill := NewCostFiller(testConfig(t, transcripts), fixtureTable(), nil, nil)

	cost, usage := fill(&record.EvalRecord{Metadata: map[string]any{"branch": "agent/feature-1"}})
	require.NotNil(t, cost)
	assert.InDelta(t, 0.006, *cost, 1e-9)
	assert.Equal(t, int64(2000), usage["test-model"].InputTokens)

	cost, usage = fill(&record.EvalRecord{})
	assert.Nil(t, cost)
	assert.Nil(t, usage)
}
