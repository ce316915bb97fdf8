package types

// TransitionGraph maps, per item type, each status to the set of statuses
// it may legally move to. Loaded once per validation run from
// transitions.yml, falling back to DefaultTransitions.
type TransitionGraph map[ItemType]map[Status][]Status

// Allowed returns the legal next statuses for an item of type t currently
// in status from. The second return is false when the graph has no entry
// for that type/status pair.
func (g TransitionGraph) Allowed(t ItemType, from Status) ([]Status, bool) {
	byStatus, ok := g[t]
	if !ok {
		return nil, false
	}
	next, ok := byStatus[from]
	return next, ok
}

// IsLegal reports whether moving an item of type t from one status to
// another is an edge of the graph.
func (g TransitionGraph) IsLegal(t ItemType, from, to Status) bool {
	next, ok := g.Allowed(t, from)
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// DefaultTransitions returns the built-in per-type transition graph used
// when the workspace ships no transitions.yml. Subtasks skip review; all
// other types go through In Review before Done.
func DefaultTransitions() TransitionGraph {
	reviewed := map[Status][]Status{
		StatusBacklog:    {StatusReady, StatusCanceled},
		StatusReady:      {StatusInProgress, StatusBacklog, StatusCanceled},
		StatusInProgress: {StatusInReview, StatusReady, StatusCanceled},
		StatusInReview:   {StatusDone, StatusInProgress, StatusCanceled},
		StatusDone:       {},
		StatusCanceled:   {StatusBacklog},
	}
	direct := map[Status][]Status{
		StatusBacklog:    {StatusReady, StatusCanceled},
		StatusReady:      {StatusInProgress, StatusBacklog, StatusCanceled},
		StatusInProgress: {StatusDone, StatusReady, StatusCanceled},
		StatusDone:       {},
		StatusCanceled:   {StatusBacklog},
	}
	return TransitionGraph{
		TypeEpic:    reviewed,
		TypeStory:   reviewed,
		TypeSubtask: direct,
		TypeBug:     reviewed,
	}
}
