package validate

import (
	"fmt"

	"github.com/tallyboard/tally/internal/result"
	"github.com/tallyboard/tally/internal/types"
)

// checkStoryCompletion guards terminal stories: a Done story may not have
// an unfinished subtask, and its bugs must be Done or Canceled.
func checkStoryCompletion(ctx *Context) []result.Issue {
	var issues []result.Issue
	for _, story := range ctx.Ordered {
		if story.Type != types.TypeStory || story.Status != types.StatusDone {
			continue
		}
		for _, child := range ctx.Children[story.ID] {
			switch child.Type {
			case types.TypeSubtask:
				if child.Status != types.StatusDone {
					issues = append(issues, result.Issue{
						File:    story.SourcePath,
						Rule:    result.RuleCompletion,
						Message: fmt.Sprintf("story is Done but subtask %s is %q", child.ID, child.Status),
					})
				}
			case types.TypeBug:
				if !child.Status.IsTerminal() {
					issues = append(issues, result.Issue{
						File:    story.SourcePath,
						Rule:    result.RuleCompletion,
						Message: fmt.Sprintf("story is Done but bug %s is %q", child.ID, child.Status),
					})
				}
			}
		}
	}
	return issues
}

// checkScopes verifies sprint scope membership: every listed id must
// resolve and must be of the type its section declares. Each offending id
// yields its own issue; the rest of the list is still checked.
func checkScopes(ctx *Context) []result.Issue {
	var issues []result.Issue
	for _, sprint := range ctx.OrderedSprints {
		for _, section := range sprint.Scope.ByType() {
			for _, id := range section.IDs {
				item, ok := ctx.Items[id]
				if !ok {
					issues = append(issues, result.Issue{
						File:    sprint.SourcePath,
						Rule:    result.RuleScope,
						Message: fmt.Sprintf("scope lists %q but no such item exists", id),
					})
					continue
				}
				if item.Type != section.Type {
					issues = append(issues, result.Issue{
						File:    sprint.SourcePath,
						Rule:    result.RuleScope,
						Message: fmt.Sprintf("scope lists %q as a %s but it is a %s", id, section.Type, item.Type),
					})
				}
			}
		}
	}
	return issues
}

// checkBacklog verifies that every backlog and next-sprint id resolves.
func checkBacklog(ctx *Context) []result.Issue {
	var issues []result.Issue
	for _, id := range ctx.Backlog.Items {
		if _, ok := ctx.Items[id]; !ok {
			issues = append(issues, result.Issue{
				File:    ctx.Backlog.SourcePath,
				Rule:    result.RuleBacklog,
				Message: fmt.Sprintf("backlog lists %q but no such item exists", id),
			})
		}
	}
	for _, id := range ctx.NextSprint.Candidates {
		if _, ok := ctx.Items[id]; !ok {
			issues = append(issues, result.Issue{
				File:    ctx.NextSprint.SourcePath,
				Rule:    result.RuleBacklog,
				Message: fmt.Sprintf("next-sprint lists %q but no such item exists", id),
			})
		}
	}
	return issues
}
