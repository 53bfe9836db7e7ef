// Package catalog holds the taxonomy of resource-type patterns and the
// action verbs that are legal against them. The catalog is the ground truth
// for policy validation: loaded once per run, immutable afterward.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/polgov/polgov/core/infra/logging"
	"github.com/polgov/polgov/core/infra/schema"
	"github.com/polgov/polgov/core/policy"
)

const component = "catalog"

// WildcardAction is valid against every resource type.
const WildcardAction = "*"

// Entry is one resource-type pattern with its legal action verbs.
type Entry struct {
	Pattern string
	Actions []string

	matcher *policy.Matcher
	allowed map[string]bool
}

// Allows reports whether the verb is legal for this entry.
func (e *Entry) Allows(action string) bool {
	if action == WildcardAction {
		return true
	}
	return e.allowed[action]
}

// Catalog is an ordered set of entries. Lookups return the first entry whose
// pattern matches; entries are expected to be non-overlapping by convention
// and no further tie-break is defined.
type Catalog struct {
	Version string
	entries []Entry
}

// Entries returns the catalog entries in document order.
func (c *Catalog) Entries() []Entry { return c.entries }

// Match returns the first entry matching the resource specifier.
func (c *Catalog) Match(resource string) (*Entry, bool) {
	for i := range c.entries {
		if c.entries[i].matcher.Matches(resource) {
			return &c.entries[i], true
		}
	}
	return nil, false
}

// Load reads a catalog document from the given path. YAML and JSON are both
// accepted. An empty path yields the built-in default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	// #nosec G304 -- catalog path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return cat, nil
}

// Parse decodes and validates a catalog document, preserving the document
// order of its entries.
func Parse(data []byte) (*Catalog, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, fmt.Errorf("catalog document is empty")
	}

	var generic map[string]any
	if err := root.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := schema.ValidateCatalogDocument(generic); err != nil {
		return nil, fmt.Errorf("catalog document: %w", err)
	}

	cat := &Catalog{}
	if v, ok := generic["version"].(string); ok {
		cat.Version = v
	}

	resourcesNode, err := mappingValue(root.Content[0], "resources")
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for i := 0; i+1 < len(resourcesNode.Content); i += 2 {
		keyNode := resourcesNode.Content[i]
		valueNode := resourcesNode.Content[i+1]
		pattern := keyNode.Value
		if seen[pattern] {
			logging.Warn(component, "duplicate catalog pattern, first occurrence wins", "pattern", pattern)
			continue
		}
		seen[pattern] = true

		var actions []string
		if err := valueNode.Decode(&actions); err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", pattern, err)
		}
		entry, err := newEntry(pattern, actions)
		if err != nil {
			return nil, err
		}
		cat.entries = append(cat.entries, entry)
	}
	if len(cat.entries) == 0 {
		return nil, fmt.Errorf("catalog has no resource entries")
	}
	return cat, nil
}

func newEntry(pattern string, actions []string) (Entry, error) {
	matcher, err := policy.Compile(pattern)
	if err != nil {
		return Entry{}, fmt.Errorf("catalog entry %q: %w", pattern, err)
	}
	allowed := make(map[string]bool, len(actions))
	for _, a := range actions {
		allowed[a] = true
	}
	return Entry{Pattern: pattern, Actions: actions, matcher: matcher, allowed: allowed}, nil
}

func mappingValue(node *yaml.Node, key string) (*yaml.Node, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("catalog document is not a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1], nil
		}
	}
	return nil, fmt.Errorf("catalog document missing %q", key)
}
