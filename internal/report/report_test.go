package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyboard/tally/internal/result"
)

func sample() *result.Result {
	return &result.Result{
		CheckedFiles: []string{"items/bug-1.yml", "items/story-1.yml"},
		Errors: []result.Issue{
			{File: "items/bug-1.yml", Rule: result.RuleParent, Message: "bug must declare a parent"},
			{File: "items/bug-1.yml", Rule: result.RulePeople, Message: `unknown assignee "mallory"`},
			{File: "items/story-1.yml", Rule: result.RuleComponents, Message: "components list is empty"},
		},
	}
}

func TestJSONRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, sample()))

	var decoded result.Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded.Errors, 3)
	assert.Equal(t, "items/bug-1.yml", decoded.Errors[0].File)
}

func TestHumanGroupsByFile(t *testing.T) {
	var buf bytes.Buffer
	Human(&buf, sample(), false)
	out := buf.String()

	// Each file header appears once, with its issues beneath it.
	assert.Equal(t, 1, strings.Count(out, "items/bug-1.yml\n"))
	assert.Equal(t, 1, strings.Count(out, "items/story-1.yml\n"))
	assert.Contains(t, out, "bug must declare a parent")
	assert.Contains(t, out, "3 issues in 2 files checked")
}

func TestHumanCleanRun(t *testing.T) {
	var buf bytes.Buffer
	Human(&buf, &result.Result{CheckedFiles: []string{"items/story-1.yml"}}, false)
	assert.Contains(t, buf.String(), "1 files checked, no issues")
}
