// Package schema compiles the workspace's JSON Schema files into a
// registry and validates loaded records against them.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tallyboard/tally/internal/result"
)

// printer renders schema violation messages.
var printer = message.NewPrinter(language.English)

// Registry holds the compiled schemas of one schema directory, keyed by
// record kind ("item", "sprint", ...). The key is the schema file's base
// name with the ".schema.json" suffix stripped.
type Registry struct {
	dir     string
	schemas map[string]*jsonschema.Schema
}

// Load compiles every *.schema.json under dir. A missing or empty schema
// directory is a hard error: without schemas nothing can be validated.
func Load(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading schema directory: %w", err)
	}

	reg := &Registry{dir: dir, schemas: make(map[string]*jsonschema.Schema)}
	compiler := jsonschema.NewCompiler()

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".schema.json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name)) // #nosec G304 -- enumerated from the schema dir
		if err != nil {
			return nil, fmt.Errorf("reading schema %s: %w", name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parsing schema %s: %w", name, err)
		}
		if err := compiler.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("adding schema %s: %w", name, err)
		}
		keys = append(keys, name)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no *.schema.json files in %s", dir)
	}

	for _, name := range keys {
		compiled, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compiling schema %s: %w", name, err)
		}
		key := strings.TrimSuffix(name, ".schema.json")
		reg.schemas[key] = compiled
	}
	return reg, nil
}

// cache memoizes compiled registries by schema-directory path. Compilation
// happens once per directory for the process lifetime; concurrent callers
// share the same construction through the per-entry Once.
var cache sync.Map // dir -> *cacheEntry

type cacheEntry struct {
	once sync.Once
	reg  *Registry
	err  error
}

// Cached returns the process-wide registry for dir, compiling it on first
// use.
func Cached(dir string) (*Registry, error) {
	v, _ := cache.LoadOrStore(dir, &cacheEntry{})
	entry := v.(*cacheEntry)
	entry.once.Do(func() {
		entry.reg, entry.err = Load(dir)
	})
	return entry.reg, entry.err
}

// Has reports whether the registry carries a schema for key.
func (r *Registry) Has(key string) bool {
	_, ok := r.schemas[key]
	return ok
}

// Validate checks doc against the schema for key and returns one issue per
// leaf violation, attributed to file. An unknown key yields a single
// schema issue rather than a panic: record kinds and schema files are
// maintained together, so a gap is a workspace defect, not a crash.
func (r *Registry) Validate(file, key string, doc any) []result.Issue {
	compiled, ok := r.schemas[key]
	if !ok {
		return []result.Issue{{
			File:    file,
			Rule:    result.RuleSchema,
			Message: fmt.Sprintf("no schema registered for kind %q", key),
		}}
	}

	// Round-trip through JSON so YAML-decoded values carry the numeric
	// types the validator expects.
	raw, err := json.Marshal(doc)
	if err != nil {
		return []result.Issue{{
			File:    file,
			Rule:    result.RuleSchema,
			Message: fmt.Sprintf("encoding record for schema check: %v", err),
		}}
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return []result.Issue{{
			File:    file,
			Rule:    result.RuleSchema,
			Message: fmt.Sprintf("decoding record for schema check: %v", err),
		}}
	}

	err = compiled.Validate(inst)
	if err == nil {
		return nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []result.Issue{{
			File:    file,
			Rule:    result.RuleSchema,
			Message: err.Error(),
		}}
	}

	var issues []result.Issue
	for _, leaf := range flatten(verr) {
		issues = append(issues, result.Issue{
			File:    file,
			Rule:    result.RuleSchema,
			Message: fmt.Sprintf("%s: %s", instancePath(leaf.InstanceLocation), leaf.ErrorKind.LocalizedString(printer)),
		})
	}
	return issues
}

// flatten walks the cause tree down to leaf violations.
func flatten(err *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(err.Causes) == 0 {
		return []*jsonschema.ValidationError{err}
	}
	var leaves []*jsonschema.ValidationError
	for _, cause := range err.Causes {
		leaves = append(leaves, flatten(cause)...)
	}
	return leaves
}

func instancePath(tokens []string) string {
	if len(tokens) == 0 {
		return "$"
	}
	return "$." + strings.Join(tokens, ".")
}
