package validate

import (
	"fmt"

	"github.com/tallyboard/tally/internal/result"
	"github.com/tallyboard/tally/internal/types"
)

// itemRule is one per-item check. Every rule runs to completion for every
// item; a single item can surface findings from many rules at once.
type itemRule func(item *types.WorkItem, ctx *Context) []result.Issue

// itemRules is the fixed rule set applied to each canonical item.
var itemRules = []itemRule{
	checkComponents,
	checkLabels,
	checkPeople,
	checkParent,
	checkSprint,
	checkDueDate,
	checkCodeRepos,
}

func checkComponents(item *types.WorkItem, ctx *Context) []result.Issue {
	var issues []result.Issue
	if len(item.Components) == 0 {
		issues = append(issues, result.Issue{
			File:    item.SourcePath,
			Rule:    result.RuleComponents,
			Message: "components list is empty",
		})
	}
	for _, c := range item.Components {
		if !ctx.Components[c] {
			issues = append(issues, result.Issue{
				File:    item.SourcePath,
				Rule:    result.RuleComponents,
				Message: fmt.Sprintf("unknown component %q", c),
			})
		}
	}
	return issues
}

func checkLabels(item *types.WorkItem, ctx *Context) []result.Issue {
	var issues []result.Issue
	for _, l := range item.Labels {
		if !ctx.Labels[l] {
			issues = append(issues, result.Issue{
				File:    item.SourcePath,
				Rule:    result.RuleLabels,
				Message: fmt.Sprintf("unknown label %q", l),
			})
		}
	}
	return issues
}

func checkPeople(item *types.WorkItem, ctx *Context) []result.Issue {
	var issues []result.Issue
	if item.Assignee != "" && !ctx.Users[item.Assignee] {
		issues = append(issues, result.Issue{
			File:    item.SourcePath,
			Rule:    result.RulePeople,
			Message: fmt.Sprintf("unknown assignee %q", item.Assignee),
		})
	}
	for _, a := range item.Approvers {
		if !ctx.Users[a] {
			issues = append(issues, result.Issue{
				File:    item.SourcePath,
				Rule:    result.RulePeople,
				Message: fmt.Sprintf("unknown approver %q", a),
			})
		}
	}
	return issues
}

func checkParent(item *types.WorkItem, ctx *Context) []result.Issue {
	var issues []result.Issue
	if item.ParentID == "" {
		if item.Type.RequiresParent() {
			issues = append(issues, result.Issue{
				File:    item.SourcePath,
				Rule:    result.RuleParent,
				Message: fmt.Sprintf("%s must declare a parent", item.Type),
			})
		}
		return issues
	}

	expected := item.Type.ExpectedParentType()
	if expected == "" {
		issues = append(issues, result.Issue{
			File:    item.SourcePath,
			Rule:    result.RuleParent,
			Message: fmt.Sprintf("%s must not declare a parent", item.Type),
		})
		return issues
	}

	parent, ok := ctx.Items[item.ParentID]
	if !ok {
		issues = append(issues, result.Issue{
			File:    item.SourcePath,
			Rule:    result.RuleParent,
			Message: fmt.Sprintf("parent %q does not exist", item.ParentID),
		})
		return issues
	}
	if parent.Type != expected {
		issues = append(issues, result.Issue{
			File:    item.SourcePath,
			Rule:    result.RuleParent,
			Message: fmt.Sprintf("parent %q is a %s, expected %s", item.ParentID, parent.Type, expected),
		})
	}
	return issues
}

func checkSprint(item *types.WorkItem, ctx *Context) []result.Issue {
	if item.SprintID == "" {
		return nil
	}
	if _, ok := ctx.Sprints[item.SprintID]; !ok {
		return []result.Issue{{
			File:    item.SourcePath,
			Rule:    result.RuleSprint,
			Message: fmt.Sprintf("sprint %q does not exist", item.SprintID),
		}}
	}
	return nil
}

// checkDueDate enforces due-date ordering up the parent chain and against
// the sprint end date. Each comparator applies only when it resolves: a
// parent without a due date, an unparseable comparator, or a dangling
// reference is not a due-date finding here (dangling refs are the parent
// and sprint rules' findings).
func checkDueDate(item *types.WorkItem, ctx *Context) []result.Issue {
	if item.DueDate == "" {
		return nil
	}
	due, err := types.ParseDay(item.DueDate)
	if err != nil {
		return []result.Issue{{
			File:    item.SourcePath,
			Rule:    result.RuleDueDate,
			Message: fmt.Sprintf("due_date %q does not parse", item.DueDate),
		}}
	}

	var issues []result.Issue
	compare := func(other, what string) {
		limit, err := types.ParseDay(other)
		if err != nil {
			return
		}
		if due.After(limit) {
			issues = append(issues, result.Issue{
				File:    item.SourcePath,
				Rule:    result.RuleDueDate,
				Message: fmt.Sprintf("due_date %s exceeds %s %s", item.DueDate, what, other),
			})
		}
	}

	if parent, ok := ctx.Items[item.ParentID]; ok {
		if parent.DueDate != "" {
			compare(parent.DueDate, fmt.Sprintf("due_date of parent %s", parent.ID))
		}
		// One more hop: a subtask or bug is also bounded by the epic above
		// its story, whether or not the story carries a due date itself.
		if grand, ok := ctx.Items[parent.ParentID]; ok && grand.DueDate != "" {
			compare(grand.DueDate, fmt.Sprintf("due_date of epic %s", grand.ID))
		}
	}
	if sprint, ok := ctx.Sprints[item.SprintID]; ok && sprint.EndDate != "" {
		compare(sprint.EndDate, fmt.Sprintf("end_date of sprint %s", sprint.ID))
	}
	return issues
}

func checkCodeRepos(item *types.WorkItem, ctx *Context) []result.Issue {
	var issues []result.Issue

	code := item.Code
	if code == nil {
		code = &types.CodeBlock{}
	}

	for _, link := range code.Repos {
		if !ctx.Repos[link.RepoID] {
			issues = append(issues, result.Issue{
				File:    item.SourcePath,
				Rule:    result.RuleCode,
				Message: fmt.Sprintf("linked repo %q is not registered", link.RepoID),
			})
		}
		if link.Branch == "" {
			issues = append(issues, result.Issue{
				File:    item.SourcePath,
				Rule:    result.RuleCode,
				Message: fmt.Sprintf("repo link %q declares no branch", link.RepoID),
			})
		}
	}

	active := item.Status == types.StatusReady || item.Status == types.StatusInProgress
	needsLink := (active && code.AutoBranch) ||
		(item.Type.RequiresParent() && item.Status == types.StatusInProgress)
	if needsLink && len(code.Repos) == 0 {
		issues = append(issues, result.Issue{
			File:    item.SourcePath,
			Rule:    result.RuleCode,
			Message: fmt.Sprintf("%s in %q must link at least one repo", item.Type, item.Status),
		})
	}

	if item.Status == types.StatusDone {
		for _, link := range code.Repos {
			if link.PR != nil && link.PR.State != types.PRStateMerged {
				issues = append(issues, result.Issue{
					File:    item.SourcePath,
					Rule:    result.RuleCode,
					Message: fmt.Sprintf("item is Done but PR on %q is %q, expected %q", link.RepoID, link.PR.State, types.PRStateMerged),
				})
			}
		}
	}

	return issues
}
