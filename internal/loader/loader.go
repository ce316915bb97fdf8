// Package loader reads a tally workspace from disk into an in-memory
// inventory for validation. Loading is tolerant: a record that fails to
// parse becomes an issue on the inventory, not an abort. Only a workspace
// with nothing to validate at all is a hard error.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tallyboard/tally/internal/config"
	"github.com/tallyboard/tally/internal/result"
	"github.com/tallyboard/tally/internal/types"
)

// Document kinds, doubling as schema registry keys.
const (
	KindItem        = "item"
	KindSprint      = "sprint"
	KindTaxonomy    = "taxonomy"
	KindUsers       = "users"
	KindRepos       = "repos"
	KindBacklog     = "backlog"
	KindNextSprint  = "next-sprint"
	KindTransitions = "transitions"
)

// Document is one parsed workspace file: its relative path, inferred kind,
// and the raw decoded mapping used for schema and signature checks.
type Document struct {
	Path string
	Kind string
	Raw  map[string]any
}

// Inventory is everything the validator consumes, loaded in one pass.
// Backlog and NextSprint are nil when the workspace has none; Transitions
// falls back to the built-in graph.
type Inventory struct {
	Documents   []Document
	Items       []*types.WorkItem
	Sprints     []*types.Sprint
	Backlog     *types.Backlog
	NextSprint  *types.NextSprint
	Taxonomy    types.Taxonomy
	Users       []types.User
	Repos       []types.Repo
	Transitions types.TransitionGraph

	CheckedFiles []string
	Issues       []result.Issue
}

// Load reads the workspace rooted at dir using cfg's layout.
func Load(dir string, cfg *config.Config) (*Inventory, error) {
	inv := &Inventory{Transitions: types.DefaultTransitions()}

	inv.loadItems(dir, cfg.ItemsDir)
	inv.loadSprints(dir, cfg.SprintsDir)
	inv.loadTaxonomy(dir, cfg.TaxonomyFile)
	inv.loadUsers(dir, cfg.UsersFile)
	inv.loadRepos(dir, cfg.ReposFile)
	inv.loadBacklog(dir, cfg.BacklogFile)
	inv.loadNextSprint(dir, cfg.NextSprintFile)
	inv.loadTransitions(dir, cfg.TransitionsFile)

	if len(inv.Documents) == 0 {
		return nil, fmt.Errorf("workspace %s contains no documents", dir)
	}
	return inv, nil
}

// record reads and raw-decodes one YAML file, registering it as a checked
// document. Returns nil when the file could not be used; the issue is
// already on the inventory.
func (inv *Inventory) record(dir, rel, kind string) map[string]any {
	inv.CheckedFiles = append(inv.CheckedFiles, rel)

	data, err := os.ReadFile(filepath.Join(dir, rel)) // #nosec G304 -- path from workspace layout
	if err != nil {
		inv.Issues = append(inv.Issues, result.Issue{
			File:    rel,
			Rule:    result.RuleIO,
			Message: fmt.Sprintf("reading file: %v", err),
		})
		return nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		inv.Issues = append(inv.Issues, result.Issue{
			File:    rel,
			Rule:    result.RuleParse,
			Message: fmt.Sprintf("parsing YAML: %v", err),
		})
		return nil
	}
	if raw == nil {
		inv.Issues = append(inv.Issues, result.Issue{
			File:    rel,
			Rule:    result.RuleParse,
			Message: "file is empty",
		})
		return nil
	}

	inv.Documents = append(inv.Documents, Document{Path: rel, Kind: kind, Raw: raw})
	return raw
}

// decodeInto re-decodes raw into a typed record. Raw and typed decode from
// the same bytes, so a failure here means the record shape is wrong, not
// the YAML.
func (inv *Inventory) decodeInto(rel string, raw map[string]any, out any) bool {
	data, err := yaml.Marshal(raw)
	if err == nil {
		err = yaml.Unmarshal(data, out)
	}
	if err != nil {
		inv.Issues = append(inv.Issues, result.Issue{
			File:    rel,
			Rule:    result.RuleParse,
			Message: fmt.Sprintf("decoding record: %v", err),
		})
		return false
	}
	return true
}

func (inv *Inventory) loadItems(dir, itemsDir string) {
	for _, rel := range inv.listYAML(dir, itemsDir) {
		raw := inv.record(dir, rel, KindItem)
		if raw == nil {
			continue
		}
		item := &types.WorkItem{}
		if !inv.decodeInto(rel, raw, item) {
			continue
		}
		item.SetDefaults()
		item.SourcePath = rel
		if err := item.Validate(); err != nil {
			inv.Issues = append(inv.Issues, result.Issue{
				File:    rel,
				Rule:    result.RuleTicket,
				Message: err.Error(),
			})
		}
		inv.Items = append(inv.Items, item)
	}
}

func (inv *Inventory) loadSprints(dir, sprintsDir string) {
	for _, rel := range inv.listYAML(dir, sprintsDir) {
		raw := inv.record(dir, rel, KindSprint)
		if raw == nil {
			continue
		}
		sprint := &types.Sprint{}
		if !inv.decodeInto(rel, raw, sprint) {
			continue
		}
		sprint.SourcePath = rel
		inv.Sprints = append(inv.Sprints, sprint)
	}
}

func (inv *Inventory) loadTaxonomy(dir, rel string) {
	raw, ok := inv.optional(dir, rel, KindTaxonomy)
	if !ok {
		inv.Issues = append(inv.Issues, result.Issue{
			File:    rel,
			Rule:    result.RuleIO,
			Message: "taxonomy file missing; all component and label references will be unknown",
		})
		return
	}
	if raw != nil {
		inv.decodeInto(rel, raw, &inv.Taxonomy)
	}
}

func (inv *Inventory) loadUsers(dir, rel string) {
	raw, ok := inv.optional(dir, rel, KindUsers)
	if !ok {
		inv.Issues = append(inv.Issues, result.Issue{
			File:    rel,
			Rule:    result.RuleIO,
			Message: "users file missing; all assignee and approver references will be unknown",
		})
		return
	}
	if raw != nil {
		var doc struct {
			Users []types.User `yaml:"users"`
		}
		if inv.decodeInto(rel, raw, &doc) {
			inv.Users = doc.Users
		}
	}
}

func (inv *Inventory) loadRepos(dir, rel string) {
	raw, ok := inv.optional(dir, rel, KindRepos)
	if !ok {
		inv.Issues = append(inv.Issues, result.Issue{
			File:    rel,
			Rule:    result.RuleIO,
			Message: "repos file missing; all repo links will be unknown",
		})
		return
	}
	if raw != nil {
		var doc struct {
			Repos []types.Repo `yaml:"repos"`
		}
		if inv.decodeInto(rel, raw, &doc) {
			inv.Repos = doc.Repos
		}
	}
}

func (inv *Inventory) loadBacklog(dir, rel string) {
	raw, ok := inv.optional(dir, rel, KindBacklog)
	if !ok || raw == nil {
		return
	}
	backlog := &types.Backlog{SourcePath: rel}
	if inv.decodeInto(rel, raw, backlog) {
		inv.Backlog = backlog
	}
}

func (inv *Inventory) loadNextSprint(dir, rel string) {
	raw, ok := inv.optional(dir, rel, KindNextSprint)
	if !ok || raw == nil {
		return
	}
	next := &types.NextSprint{SourcePath: rel}
	if inv.decodeInto(rel, raw, next) {
		inv.NextSprint = next
	}
}

func (inv *Inventory) loadTransitions(dir, rel string) {
	raw, ok := inv.optional(dir, rel, KindTransitions)
	if !ok || raw == nil {
		return
	}
	custom := types.TransitionGraph{}
	if !inv.decodeInto(rel, raw, &custom) {
		return
	}
	// Overlay per listed type: a workspace customizing story transitions
	// keeps the built-in graphs for every type it does not mention.
	graph := types.DefaultTransitions()
	for typ, edges := range custom {
		graph[typ] = edges
	}
	inv.Transitions = graph
}

// optional loads a file that a workspace may legitimately lack. The bool
// reports whether the file exists; the map is nil when it existed but did
// not parse (already reported).
func (inv *Inventory) optional(dir, rel, kind string) (map[string]any, bool) {
	if _, err := os.Stat(filepath.Join(dir, rel)); os.IsNotExist(err) {
		return nil, false
	}
	return inv.record(dir, rel, kind), true
}

// listYAML enumerates the *.yml / *.yaml files of a workspace subdirectory
// in lexical order. A missing directory yields nothing; directory read
// failures surface as an io issue on the directory itself.
func (inv *Inventory) listYAML(dir, sub string) []string {
	entries, err := os.ReadDir(filepath.Join(dir, sub))
	if err != nil {
		if !os.IsNotExist(err) {
			inv.Issues = append(inv.Issues, result.Issue{
				File:    sub,
				Rule:    result.RuleIO,
				Message: fmt.Sprintf("reading directory: %v", err),
			})
		}
		return nil
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml") {
			files = append(files, filepath.Join(sub, name))
		}
	}
	sort.Strings(files)
	return files
}
