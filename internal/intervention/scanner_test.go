package intervention

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoeval/internal/record"
)

const prViewJSON = `{
  "createdAt": "2026-01-10T00:00:00Z",
  "comments": [
    {"author": {"login": "alice"}, "body": "please handle nil input"}
  ],
  "reviews": [
    {"author": {"login": "bob"}, "state": "CHANGES_REQUESTED", "body": "retry loop is wrong"},
    {"author": {"login": "carol"}, "state": "APPROVED", "body": ""}
  ]
}`

func gitLogFixture() string {
	sep := "\x1f"
	lines := []string{
		// agent commit before PR creation: no signal
		fmt.Sprintf("aaaa1111bbbb%sAgent%sagent@bots.dev%s2026-01-09T12:00:00Z%sadd parser", sep, sep, sep, sep),
		// human commit after PR creation fixing a test: three signals
		fmt.Sprintf("cccc2222dddd%sDana Dev%sdana@example.com%s2026-01-11T09:30:00Z%sfix failing test for parser", sep, sep, sep, sep),
	}
	return lines[0] + "\n" + lines[1]
}

func stubRunner(ghOut string, ghErr error, gitOut string, gitErr error) func(context.Context, string, string, ...string) (string, error) {
	return func(_ context.Context, _ string, binary string, _ ...string) (string, error) {
		if binary == "gh" {
			return ghOut, ghErr
		}
		return gitOut, gitErr
	}
}

func eventByType(events []record.InterventionEvent, t record.EventType) *record.InterventionEvent {
	for i := range events {
		if events[i].Type == t {
			return &events[i]
		}
	}
	return nil
}

func TestScanClassifiesIndependently(t *testing.T) {
	s := NewScanner("/repo", []string{"agent@bots.dev"}, []string{"fix failing", "fix test"},
		stubRunner(prViewJSON, nil, gitLogFixture(), nil), nil)

	events := s.Scan(context.Background(), 42, "feature/parser", "main")

	reviews := eventByType(events, record.EventReviewComment)
	require.NotNil(t, reviews)
	// one comment plus one substantive review; the empty APPROVED review is skipped
	assert.Equal(t, 2, reviews.Count)

	postPR := eventByType(events, record.EventPostPRCommit)
	require.NotNil(t, postPR)
	assert.Equal(t, 1, postPR.Count)

	manual := eventByType(events, record.EventManualEdit)
	require.NotNil(t, manual)
	assert.Equal(t, 1, manual.Count)
	assert.Contains(t, manual.Details[0], "dana@example.com")

	// the same commit also counts as a test fix: classifications are additive
	testFix := eventByType(events, record.EventTestFix)
	require.NotNil(t, testFix)
	assert.Equal(t, 1, testFix.Count)
}

func TestScanOrderIsDeterministic(t *testing.T) {
	s := NewScanner("/repo", []string{"agent@bots.dev"}, []string{"fix failing"},
		stubRunner(prViewJSON, nil, gitLogFixture(), nil), nil)

	events := s.Scan(context.Background(), 42, "feature/parser", "main")
	require.Len(t, events, 4)
	assert.Equal(t, record.EventReviewComment, events[0].Type)
	assert.Equal(t, record.EventPostPRCommit, events[1].Type)
	assert.Equal(t, record.EventManualEdit, events[2].Type)
	assert.Equal(t, record.EventTestFix, events[3].Type)
}

func TestScanDegradesOnPRFailure(t *testing.T) {
	s := NewScanner("/repo", []string{"agent@bots.dev"}, []string{"fix failing"},
		stubRunner("", fmt.Errorf("gh: no pull request found"), gitLogFixture(), nil), nil)

	events := s.Scan(context.Background(), 42, "feature/parser", "main")

	// review and post-PR signals need the PR; commit-only signals survive
	assert.Nil(t, eventByType(events, record.EventReviewComment))
	assert.Nil(t, eventByType(events, record.EventPostPRCommit))
	require.NotNil(t, eventByType(events, record.EventManualEdit))
	require.NotNil(t, eventByType(events, record.EventTestFix))
}

func TestScanDegradesToEmpty(t *testing.T) {
	s := NewScanner("/repo", []string{"agent@bots.dev"}, nil,
		stubRunner("", fmt.Errorf("gh unavailable"), "", fmt.Errorf("not a git repository")), nil)

	events := s.Scan(context.Background(), 42, "feature/parser", "main")
	assert.Empty(t, events)
}

func TestScanNoAgentPatternsSkipsManualEdit(t *testing.T) {
	s := NewScanner("/repo", nil, nil,
		stubRunner(prViewJSON, nil, gitLogFixture(), nil), nil)

	events := s.Scan(context.Background(), 42, "feature/parser", "main")
	assert.Nil(t, eventByType(events, record.EventManualEdit))
	require.NotNil(t, eventByType(events, record.EventPostPRCommit))
}
