package validate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyboard/tally/internal/config"
	"github.com/tallyboard/tally/internal/result"
)

// permissive schemas: the end-to-end tests exercise the cross-reference
// and replay rules, not structural validation.
var schemaKinds = []string{"item", "sprint", "taxonomy", "users", "repos", "backlog", "next-sprint", "transitions"}

func write(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, kind := range schemaKinds {
		write(t, dir, filepath.Join("schema", kind+".schema.json"), "{}")
	}
	write(t, dir, "taxonomy.yml", "components: [core]\nlabels: [p1]\n")
	write(t, dir, "users.yml", "users:\n  - id: alice\n")
	write(t, dir, "repos.yml", "repos:\n  - id: app\n")

	write(t, dir, "items/epic-1.yml", `
id: epic-1
type: epic
title: Theme
status: Backlog
components: [core]
created_at: 2026-03-01T09:00:00Z
updated_at: 2026-03-01T09:00:00Z
`)
	write(t, dir, "items/story-1.yml", `
id: story-1
type: story
title: First story
status: In Progress
assignee: alice
components: [core]
labels: [p1]
parent: epic-1
sprint: sprint-1
created_at: 2026-03-01T09:00:00Z
updated_at: 2026-03-01T10:10:00Z
`)
	write(t, dir, "sprints/sprint-1.yml", `
id: sprint-1
end_date: "2026-03-15"
scope:
  epics: [epic-1]
  stories: [story-1]
`)
	write(t, dir, "history/epic-1.jsonl",
		`{"ts":"2026-03-01T09:00:00Z","actor":"alice","op":"create","to":"Backlog"}`+"\n")
	write(t, dir, "history/story-1.jsonl",
		`{"ts":"2026-03-01T09:00:00Z","actor":"alice","op":"create","to":"Backlog"}`+"\n"+
			`{"ts":"2026-03-01T10:00:00Z","actor":"alice","op":"status","from":"Backlog","to":"Ready"}`+"\n"+
			`{"ts":"2026-03-01T10:10:00Z","actor":"alice","op":"status","from":"Ready","to":"In Progress"}`+"\n")
	return dir
}

func run(t *testing.T, dir string) *result.Result {
	t.Helper()
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	res, err := Run(context.Background(), dir, cfg)
	require.NoError(t, err)
	return res
}

func TestRunCleanWorkspace(t *testing.T) {
	res := run(t, workspace(t))

	assert.Empty(t, res.Errors)
	assert.True(t, res.OK())
	assert.Contains(t, res.CheckedFiles, "items/story-1.yml")
	assert.Contains(t, res.CheckedFiles, filepath.Join("history", "story-1.jsonl"))
}

func TestRunIdempotent(t *testing.T) {
	dir := workspace(t)
	// Add a few defects so the runs have issues to order.
	write(t, dir, "items/bug-9.yml", "id: bug-9\ntitle: Orphan\nstatus: In Progress\n")
	write(t, dir, "backlog.yml", "items: [story-404]\n")

	first := run(t, dir)
	second := run(t, dir)
	assert.Equal(t, first, second)
}

func TestRunCollectsAcrossRules(t *testing.T) {
	dir := workspace(t)
	// bug-9: no components, no parent, unknown assignee, no history file.
	write(t, dir, "items/bug-9.yml", `
id: bug-9
title: Orphan
status: Backlog
assignee: mallory
created_at: 2026-03-01T09:00:00Z
updated_at: 2026-03-01T09:00:00Z
`)

	res := run(t, dir)
	require.False(t, res.OK())

	rules := map[string]int{}
	for _, is := range res.Errors {
		rules[is.Rule]++
	}
	assert.Equal(t, 1, rules[result.RuleComponents])
	assert.Equal(t, 1, rules[result.RulePeople])
	assert.Equal(t, 1, rules[result.RuleParent])
	assert.Equal(t, 1, rules[result.RuleHistory]) // missing history file

	// One bad item does not disturb the healthy ones.
	for _, is := range res.Errors {
		assert.NotEqual(t, "items/story-1.yml", is.File)
	}
}

func TestRunReplayFindingsSurface(t *testing.T) {
	dir := workspace(t)
	// story-1's log now ends one state short of its declared status.
	write(t, dir, "history/story-1.jsonl",
		`{"ts":"2026-03-01T09:00:00Z","actor":"alice","op":"create","to":"Backlog"}`+"\n"+
			`{"ts":"2026-03-01T10:00:00Z","actor":"alice","op":"status","from":"Backlog","to":"Ready"}`+"\n")

	res := run(t, dir)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, result.RuleHistory, res.Errors[0].Rule)
	assert.Contains(t, res.Errors[0].Message, `declared status "In Progress"`)
}

func TestRunIssuesSortedDeterministically(t *testing.T) {
	dir := workspace(t)
	write(t, dir, "backlog.yml", "items: [zz-404, story-404]\n")

	res := run(t, dir)
	require.Len(t, res.Errors, 2)
	// Same file and rule: message order decides.
	assert.Contains(t, res.Errors[0].Message, "story-404")
	assert.Contains(t, res.Errors[1].Message, "zz-404")
}

func TestRunMissingSchemaDirFails(t *testing.T) {
	dir := workspace(t)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "schema")))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	_, err = Run(context.Background(), dir, cfg)
	require.Error(t, err)
}

func TestRunInvalidSignatureReported(t *testing.T) {
	dir := workspace(t)
	write(t, dir, "tally.yml", "signing_key_file: signing.key\n")
	write(t, dir, "signing.key", "workspace-secret")
	write(t, dir, "items/epic-1.yml", `
id: epic-1
type: epic
title: Theme
status: Backlog
components: [core]
created_at: 2026-03-01T09:00:00Z
updated_at: 2026-03-01T09:00:00Z
provenance:
  signed_by: alice
  signature: deadbeef
`)

	res := run(t, dir)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, result.RuleSignature, res.Errors[0].Rule)
	assert.Equal(t, "items/epic-1.yml", res.Errors[0].File)
}

func TestRunStaleHistoryCountsAsIssueNotError(t *testing.T) {
	dir := workspace(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "history", "epic-1.jsonl")))

	res := run(t, dir)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, result.RuleHistory, res.Errors[0].Rule)
	assert.Contains(t, res.Errors[0].Message, "missing")
}
