// Package validate implements the workspace consistency validator: the
// per-item rules, the aggregate rules, and the orchestrating full pass.
package validate

import (
	"fmt"

	"github.com/tallyboard/tally/internal/loader"
	"github.com/tallyboard/tally/internal/result"
	"github.com/tallyboard/tally/internal/types"
)

// Context is the precomputed lookup state every rule runs against. It is a
// pure function of the inventory: id-keyed indexes instead of an object
// graph, so rules do relation lookups and nothing owns anything else.
type Context struct {
	// Ordered holds the canonical items in first-seen order. When an id
	// is duplicated, the first-seen record stays canonical and later ones
	// appear only in the duplicate issues.
	Ordered []*types.WorkItem

	Items    map[string]*types.WorkItem
	Children map[string][]*types.WorkItem
	Sprints  map[string]*types.Sprint
	// OrderedSprints holds canonical sprints in first-seen order for
	// deterministic aggregate passes.
	OrderedSprints []*types.Sprint
	Repos          map[string]bool

	Components map[string]bool
	Labels     map[string]bool
	Users      map[string]bool

	Graph      types.TransitionGraph
	Backlog    *types.Backlog
	NextSprint *types.NextSprint
}

// Build indexes the inventory and reports duplicate item ids, one issue
// per duplicate occurrence. No side effects beyond the returned values.
func Build(inv *loader.Inventory) (*Context, []result.Issue) {
	ctx := &Context{
		Items:      make(map[string]*types.WorkItem, len(inv.Items)),
		Children:   make(map[string][]*types.WorkItem),
		Sprints:    make(map[string]*types.Sprint, len(inv.Sprints)),
		Repos:      make(map[string]bool, len(inv.Repos)),
		Components: make(map[string]bool, len(inv.Taxonomy.Components)),
		Labels:     make(map[string]bool, len(inv.Taxonomy.Labels)),
		Users:      make(map[string]bool, len(inv.Users)),
		Graph:      inv.Transitions,
		Backlog:    inv.Backlog,
		NextSprint: inv.NextSprint,
	}

	var issues []result.Issue
	for _, item := range inv.Items {
		if first, dup := ctx.Items[item.ID]; dup {
			issues = append(issues, result.Issue{
				File:    item.SourcePath,
				Rule:    result.RuleTicket,
				Message: fmt.Sprintf("duplicate id %q (first seen in %s)", item.ID, first.SourcePath),
			})
			continue
		}
		ctx.Items[item.ID] = item
		ctx.Ordered = append(ctx.Ordered, item)
	}
	// Child index over canonical items only, so duplicates cannot inject
	// phantom children.
	for _, item := range ctx.Ordered {
		if item.ParentID != "" {
			ctx.Children[item.ParentID] = append(ctx.Children[item.ParentID], item)
		}
	}

	for _, sprint := range inv.Sprints {
		if _, dup := ctx.Sprints[sprint.ID]; dup {
			issues = append(issues, result.Issue{
				File:    sprint.SourcePath,
				Rule:    result.RuleSprint,
				Message: fmt.Sprintf("duplicate sprint id %q", sprint.ID),
			})
			continue
		}
		ctx.Sprints[sprint.ID] = sprint
		ctx.OrderedSprints = append(ctx.OrderedSprints, sprint)
	}

	for _, repo := range inv.Repos {
		ctx.Repos[repo.ID] = true
	}
	for _, c := range inv.Taxonomy.Components {
		ctx.Components[c] = true
	}
	for _, l := range inv.Taxonomy.Labels {
		ctx.Labels[l] = true
	}
	for _, u := range inv.Users {
		ctx.Users[u.ID] = true
	}

	// Stand-ins so downstream rules never branch on nil.
	if ctx.Graph == nil {
		ctx.Graph = types.TransitionGraph{}
	}
	if ctx.Backlog == nil {
		ctx.Backlog = &types.Backlog{}
	}
	if ctx.NextSprint == nil {
		ctx.NextSprint = &types.NextSprint{}
	}

	return ctx, issues
}
