// Package types defines core data structures for the tally workspace validator.
package types

import (
	"fmt"
	"strings"
	"time"
)

// WorkItem represents a trackable work item record loaded from items/<id>.yml.
type WorkItem struct {
	ID         string      `yaml:"id" json:"id"`
	Type       ItemType    `yaml:"type" json:"type"`
	Title      string      `yaml:"title" json:"title"`
	Status     Status      `yaml:"status" json:"status"`
	Assignee   string      `yaml:"assignee,omitempty" json:"assignee,omitempty"`
	Approvers  []string    `yaml:"approvers,omitempty" json:"approvers,omitempty"`
	Components []string    `yaml:"components,omitempty" json:"components,omitempty"`
	Labels     []string    `yaml:"labels,omitempty" json:"labels,omitempty"`
	ParentID   string      `yaml:"parent,omitempty" json:"parent,omitempty"`
	SprintID   string      `yaml:"sprint,omitempty" json:"sprint,omitempty"`
	DueDate    string      `yaml:"due_date,omitempty" json:"due_date,omitempty"`
	CreatedAt  time.Time   `yaml:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `yaml:"updated_at" json:"updated_at"`
	Code       *CodeBlock  `yaml:"code,omitempty" json:"code,omitempty"`
	Provenance *Provenance `yaml:"provenance,omitempty" json:"provenance,omitempty"`

	// SourcePath is the workspace-relative path the record was loaded from.
	// Internal: not part of the serialized record.
	SourcePath string `yaml:"-" json:"-"`
}

// CodeBlock groups an item's branching strategy and linked repositories.
type CodeBlock struct {
	AutoBranch bool       `yaml:"auto_branch,omitempty" json:"auto_branch,omitempty"`
	Repos      []RepoLink `yaml:"repos,omitempty" json:"repos,omitempty"`
}

// RepoLink ties an item to a branch in a registered repository.
type RepoLink struct {
	RepoID string       `yaml:"repo" json:"repo"`
	Branch string       `yaml:"branch,omitempty" json:"branch,omitempty"`
	PR     *PullRequest `yaml:"pr,omitempty" json:"pr,omitempty"`
}

// PullRequest is the tracked PR sub-record of a repo link.
type PullRequest struct {
	Number int    `yaml:"number,omitempty" json:"number,omitempty"`
	State  string `yaml:"state" json:"state"`
}

// PR state values as recorded by the forge sync.
const (
	PRStateOpen   = "open"
	PRStateClosed = "closed"
	PRStateMerged = "merged"
)

// Provenance is an optional signed-origin tag on a record.
type Provenance struct {
	SignedBy  string `yaml:"signed_by" json:"signed_by"`
	Signature string `yaml:"signature" json:"signature"`
}

// ItemType classifies a work item.
type ItemType string

// Work item type constants. The type doubles as the item's id prefix
// (e.g. "story-0042").
const (
	TypeEpic    ItemType = "epic"
	TypeStory   ItemType = "story"
	TypeSubtask ItemType = "subtask"
	TypeBug     ItemType = "bug"
)

// IsValid checks if the item type is one of the known kinds.
func (t ItemType) IsValid() bool {
	switch t {
	case TypeEpic, TypeStory, TypeSubtask, TypeBug:
		return true
	}
	return false
}

// RequiresParent reports whether items of this type must declare a parent.
func (t ItemType) RequiresParent() bool {
	return t == TypeSubtask || t == TypeBug
}

// ExpectedParentType returns the type an item's parent must have, or ""
// when the type has no parent constraint (epics are roots).
func (t ItemType) ExpectedParentType() ItemType {
	switch t {
	case TypeStory:
		return TypeEpic
	case TypeSubtask, TypeBug:
		return TypeStory
	}
	return ""
}

// TypeFromID extracts the type prefix from a type-prefixed item id like
// "story-0042". Returns "" when the id carries no recognizable prefix.
func TypeFromID(id string) ItemType {
	idx := strings.Index(id, "-")
	if idx <= 0 {
		return ""
	}
	t := ItemType(id[:idx])
	if !t.IsValid() {
		return ""
	}
	return t
}

// Status represents the workflow state of an item.
type Status string

// Workflow status constants.
const (
	StatusBacklog    Status = "Backlog"
	StatusReady      Status = "Ready"
	StatusInProgress Status = "In Progress"
	StatusInReview   Status = "In Review"
	StatusDone       Status = "Done"
	StatusCanceled   Status = "Canceled"
)

// IsValid checks if the status is one of the built-in workflow states.
func (s Status) IsValid() bool {
	switch s {
	case StatusBacklog, StatusReady, StatusInProgress, StatusInReview, StatusDone, StatusCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends the workflow.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusCanceled
}

// SetDefaults applies defaults for fields omitted in the YAML record.
func (w *WorkItem) SetDefaults() {
	if w.Status == "" {
		w.Status = StatusBacklog
	}
	if w.Type == "" {
		w.Type = TypeFromID(w.ID)
	}
}

// Validate checks record-level sanity that does not need workspace context.
// Cross-reference checks (parent, sprint, taxonomy) live in the validator.
func (w *WorkItem) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !w.Type.IsValid() {
		return fmt.Errorf("invalid item type: %s", w.Type)
	}
	if prefix := TypeFromID(w.ID); prefix != "" && prefix != w.Type {
		return fmt.Errorf("id prefix %q does not match type %q", prefix, w.Type)
	}
	return nil
}

// Sprint is a time-boxed iteration with a typed scope of assigned items.
type Sprint struct {
	ID        string    `yaml:"id" json:"id"`
	Name      string    `yaml:"name,omitempty" json:"name,omitempty"`
	StartDate string    `yaml:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate   string    `yaml:"end_date,omitempty" json:"end_date,omitempty"`
	Scope     ScopeList `yaml:"scope,omitempty" json:"scope,omitempty"`

	SourcePath string `yaml:"-" json:"-"`
}

// ScopeList holds the per-type id lists assigned to a sprint.
type ScopeList struct {
	Epics    []string `yaml:"epics,omitempty" json:"epics,omitempty"`
	Stories  []string `yaml:"stories,omitempty" json:"stories,omitempty"`
	Subtasks []string `yaml:"subtasks,omitempty" json:"subtasks,omitempty"`
	Bugs     []string `yaml:"bugs,omitempty" json:"bugs,omitempty"`
}

// ByType returns the scope sections paired with the type each section
// may contain, in a stable order.
func (s ScopeList) ByType() []ScopeSection {
	return []ScopeSection{
		{Type: TypeEpic, IDs: s.Epics},
		{Type: TypeStory, IDs: s.Stories},
		{Type: TypeSubtask, IDs: s.Subtasks},
		{Type: TypeBug, IDs: s.Bugs},
	}
}

// ScopeSection is one typed slice of a sprint scope.
type ScopeSection struct {
	Type ItemType
	IDs  []string
}

// Backlog is the globally ordered list of not-yet-sprinted item ids.
type Backlog struct {
	Items []string `yaml:"items,omitempty" json:"items,omitempty"`

	SourcePath string `yaml:"-" json:"-"`
}

// NextSprint holds the candidate item ids for the upcoming sprint.
type NextSprint struct {
	Candidates []string `yaml:"candidates,omitempty" json:"candidates,omitempty"`

	SourcePath string `yaml:"-" json:"-"`
}

// Taxonomy lists the components and labels valid in this workspace.
type Taxonomy struct {
	Components []string `yaml:"components,omitempty" json:"components,omitempty"`
	Labels     []string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// User is a known collaborator referenced by assignee/approver fields.
type User struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

// Repo is an entry in the workspace code-repository registry.
type Repo struct {
	ID  string `yaml:"id" json:"id"`
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
}

// DueDateLayout is the calendar-day format used by due_date and sprint
// start/end fields.
const DueDateLayout = "2006-01-02"

// ParseDay parses a calendar-day field.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DueDateLayout, s)
}
