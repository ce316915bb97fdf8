// Package result defines the issue and result types shared by every
// validation layer. Issues are collected, never thrown: a full run always
// produces one Result holding everything that was found.
package result

import "sort"

// Rule constants categorize issues by the check that produced them.
const (
	RuleParse      = "parse"
	RuleIO         = "io"
	RuleSchema     = "schema"
	RuleSignature  = "signature"
	RuleTicket     = "ticket"
	RuleComponents = "components"
	RuleLabels     = "labels"
	RulePeople     = "people"
	RuleParent     = "parent"
	RuleSprint     = "sprint"
	RuleDueDate    = "due-date"
	RuleCode       = "code"
	RuleHistory    = "history"
	RuleTransition = "transition"
	RuleCompletion = "completion"
	RuleScope      = "scope"
	RuleBacklog    = "backlog"
)

// Issue is a single validation finding. File is workspace-relative.
type Issue struct {
	File    string `json:"file"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Result is the outcome of one full validation pass.
type Result struct {
	CheckedFiles []string `json:"checked_files"`
	Errors       []Issue  `json:"errors"`
}

// OK reports whether the pass found no issues.
func (r *Result) OK() bool {
	return len(r.Errors) == 0
}

// Add appends issues to the result.
func (r *Result) Add(issues ...Issue) {
	r.Errors = append(r.Errors, issues...)
}

// Sort orders checked files lexically and issues by file, then rule, then
// message, so repeated runs over unchanged input produce identical output.
func (r *Result) Sort() {
	sort.Strings(r.CheckedFiles)
	sort.SliceStable(r.Errors, func(i, j int) bool {
		a, b := r.Errors[i], r.Errors[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		return a.Message < b.Message
	})
}
