package history

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyboard/tally/internal/result"
	"github.com/tallyboard/tally/internal/types"
)

func writeLog(t *testing.T, lines ...string) *Log {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "story-1.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600))
	return Read(path, "history/story-1.jsonl", DefaultLimits())
}

func event(ts, op, from, to string) string {
	s := fmt.Sprintf(`{"ts":%q,"actor":"alice","op":%q`, ts, op)
	if from != "" {
		s += fmt.Sprintf(`,"from":%q`, from)
	}
	if to != "" {
		s += fmt.Sprintf(`,"to":%q`, to)
	}
	return s + "}"
}

func story(status types.Status) *types.WorkItem {
	return &types.WorkItem{
		ID:        "story-1",
		Type:      types.TypeStory,
		Status:    status,
		UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func rulesOf(issues []result.Issue) []string {
	var rules []string
	for _, is := range issues {
		rules = append(rules, is.Rule)
	}
	return rules
}

func TestReplayCleanHistory(t *testing.T) {
	log := writeLog(t,
		event("2026-03-01T10:00:00Z", "create", "", "Backlog"),
		event("2026-03-01T10:05:00Z", "status", "Backlog", "Ready"),
		event("2026-03-01T10:10:00Z", "status", "Ready", "In Progress"),
	)
	require.Empty(t, log.Issues)

	issues := Verify(log, story(types.StatusInProgress), types.DefaultTransitions(), 0)
	assert.Empty(t, issues)
}

func TestReplayIllegalTransitionStillAdvances(t *testing.T) {
	log := writeLog(t,
		event("2026-03-01T10:00:00Z", "create", "", "Backlog"),
		event("2026-03-01T10:05:00Z", "status", "", "Done"),
	)
	issues := Verify(log, story(types.StatusDone), types.DefaultTransitions(), 0)

	// Exactly one transition issue; no status mismatch because the tracked
	// state still advanced to Done.
	require.Len(t, issues, 1)
	assert.Equal(t, result.RuleTransition, issues[0].Rule)
	assert.Contains(t, issues[0].Message, `"Backlog" -> "Done"`)
}

func TestReplayDeclaredStatusMismatch(t *testing.T) {
	log := writeLog(t,
		event("2026-03-01T10:00:00Z", "create", "", "Backlog"),
		event("2026-03-01T10:05:00Z", "status", "Backlog", "Ready"),
		event("2026-03-01T10:10:00Z", "status", "Ready", "In Progress"),
		event("2026-03-01T10:15:00Z", "status", "In Progress", "In Review"),
	)
	issues := Verify(log, story(types.StatusDone), types.DefaultTransitions(), 0)

	require.Len(t, issues, 1)
	assert.Equal(t, result.RuleHistory, issues[0].Rule)
	assert.Contains(t, issues[0].Message, `declared status "Done"`)
	assert.Contains(t, issues[0].Message, `"In Review"`)
}

func TestReplayFromDriftTrustsTrackedState(t *testing.T) {
	log := writeLog(t,
		event("2026-03-01T10:00:00Z", "create", "", "Backlog"),
		// Declares from Ready, but replay tracked Backlog. The drift is
		// reported and legality is judged from Backlog, so the move to
		// Ready is legal.
		event("2026-03-01T10:05:00Z", "status", "Ready", "Ready"),
	)
	issues := Verify(log, story(types.StatusReady), types.DefaultTransitions(), 0)

	require.Len(t, issues, 1)
	assert.Equal(t, result.RuleHistory, issues[0].Rule)
	assert.Contains(t, issues[0].Message, "replay tracked")
}

func TestReplayMissingTargetDoesNotAdvance(t *testing.T) {
	log := writeLog(t,
		event("2026-03-01T10:00:00Z", "create", "", "Backlog"),
		event("2026-03-01T10:05:00Z", "status", "Backlog", ""),
		event("2026-03-01T10:10:00Z", "status", "", "Ready"),
	)
	issues := Verify(log, story(types.StatusReady), types.DefaultTransitions(), 0)

	require.Len(t, issues, 1)
	assert.Equal(t, result.RuleHistory, issues[0].Rule)
	assert.Contains(t, issues[0].Message, "no target status")
}

func TestReplayFirstEventMustBeCreate(t *testing.T) {
	log := writeLog(t,
		event("2026-03-01T10:00:00Z", "status", "Backlog", "Ready"),
	)
	issues := Verify(log, story(types.StatusReady), types.DefaultTransitions(), 0)
	assert.Contains(t, rulesOf(issues), result.RuleHistory)
}

func TestReplayMalformedHeadBeforeCreate(t *testing.T) {
	// A bad physical first line means the decoded create was not the log's
	// actual first entry; both that and the malformed line itself surface.
	log := writeLog(t,
		"{truncated",
		event("2026-03-01T10:00:00Z", "create", "", "Backlog"),
		event("2026-03-01T10:05:00Z", "status", "Backlog", "Ready"),
	)
	require.Len(t, log.Issues, 1)
	assert.True(t, log.LeadingMalformed)

	issues := Verify(log, story(types.StatusReady), types.DefaultTransitions(), 0)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "does not begin with")
}

func TestReplayMalformedHeadBeforeStatus(t *testing.T) {
	log := writeLog(t,
		"{truncated",
		event("2026-03-01T10:05:00Z", "status", "Backlog", "Ready"),
	)
	issues := Verify(log, story(types.StatusReady), types.DefaultTransitions(), 0)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, `first event is "status"`)
}

func TestReplayBadTimestampReported(t *testing.T) {
	log := writeLog(t,
		event("2026-03-01T10:00:00Z", "create", "", "Backlog"),
		event("not-a-time", "status", "Backlog", "Ready"),
	)
	issues := Verify(log, story(types.StatusReady), types.DefaultTransitions(), 0)

	require.Len(t, issues, 1)
	assert.Equal(t, result.RuleHistory, issues[0].Rule)
	assert.Contains(t, issues[0].Message, "timestamp")
}

func TestReplayStaleUpdatedAt(t *testing.T) {
	log := writeLog(t,
		event("2026-03-01T10:00:00Z", "create", "", "Backlog"),
		event("2026-03-01T14:00:00Z", "status", "Backlog", "Ready"),
	)
	item := story(types.StatusReady)
	item.UpdatedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	issues := Verify(log, item, types.DefaultTransitions(), 0)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "predates")
}

func TestReplayWithinToleranceNotStale(t *testing.T) {
	log := writeLog(t,
		event("2026-03-01T10:00:00Z", "create", "", "Backlog"),
	)
	item := story(types.StatusBacklog)
	item.UpdatedAt = time.Date(2026, 3, 1, 9, 59, 59, 500000000, time.UTC)

	issues := Verify(log, item, types.DefaultTransitions(), 0)
	assert.Empty(t, issues)
}

func TestReadMissingFile(t *testing.T) {
	log := Read(filepath.Join(t.TempDir(), "absent.jsonl"), "history/absent.jsonl", DefaultLimits())

	assert.True(t, log.Missing)
	require.Len(t, log.Issues, 1)
	assert.Equal(t, result.RuleHistory, log.Issues[0].Rule)
	assert.Contains(t, log.Issues[0].Message, "missing")

	// Missing history skips replay entirely.
	assert.Empty(t, Verify(log, story(types.StatusBacklog), types.DefaultTransitions(), 0))
}

func TestReadEmptyFileDistinctFromMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	log := Read(path, "history/empty.jsonl", DefaultLimits())
	assert.False(t, log.Missing)
	require.Len(t, log.Issues, 1)
	assert.Contains(t, log.Issues[0].Message, "no valid events")
}

func TestReadMalformedLineSkipped(t *testing.T) {
	log := writeLog(t,
		event("2026-03-01T10:00:00Z", "create", "", "Backlog"),
		"{not json",
		event("2026-03-01T10:05:00Z", "status", "Backlog", "Ready"),
	)
	require.Len(t, log.Issues, 1)
	assert.Contains(t, log.Issues[0].Message, "line 2")
	assert.Len(t, log.Events, 2)
}

func TestReadEventCap(t *testing.T) {
	lines := make([]string, 0, 12)
	lines = append(lines, event("2026-03-01T10:00:00Z", "create", "", "Backlog"))
	for i := 0; i < 11; i++ {
		lines = append(lines, event("2026-03-01T10:05:00Z", "note", "", ""))
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "big.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0600))

	log := Read(path, "history/big.jsonl", Limits{MaxEvents: 10, MaxLineBytes: 1 << 16})
	require.Len(t, log.Issues, 1)
	assert.Contains(t, log.Issues[0].Message, "exceeds 10 events")
	assert.Len(t, log.Events, 10)
}
