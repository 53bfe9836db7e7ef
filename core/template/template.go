// Package template turns placeholder-bearing role templates into extraction
// patterns and pulls concrete attribute values out of existing role policies.
// A template is an ordinary role document whose resource specifiers may
// contain ${attr/<key>} placeholders.
package template

import (
	"fmt"
	"sort"

	"github.com/polgov/polgov/core/infra/logging"
	"github.com/polgov/polgov/core/policy"
)

const component = "template"

// Patterns maps attribute keys to their extraction matchers, deduplicated by
// compiled expression in first-appearance order.
type Patterns map[string][]*policy.Matcher

// Discover walks every resource specifier of the template and synthesizes a
// capture pattern per placeholder key it finds. Templates without
// placeholders yield an empty map; that is a valid static template.
func Discover(tmpl *policy.Role) (Patterns, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("template role required")
	}
	patterns := Patterns{}
	seen := map[string]map[string]bool{}
	for i := range tmpl.Policy {
		stmt := &tmpl.Policy[i]
		for _, resource := range append(append([]string(nil), stmt.Resources...), stmt.NotResources...) {
			for _, key := range policy.AttributeKeys(resource) {
				m, err := policy.CompileCapture(resource, key)
				if err != nil {
					return nil, fmt.Errorf("template %s: %w", tmpl.Key, err)
				}
				if seen[key] == nil {
					seen[key] = map[string]bool{}
				}
				if seen[key][m.String()] {
					continue
				}
				seen[key][m.String()] = true
				patterns[key] = append(patterns[key], m)
			}
		}
	}
	logging.Debug(component, "patterns discovered", "template", tmpl.Key, "keys", len(patterns))
	return patterns, nil
}

// Merge folds additional patterns into dst, keeping deduplication by
// expression text. Used when extracting against several templates at once.
func (p Patterns) Merge(other Patterns) {
	for key, matchers := range other {
		existing := map[string]bool{}
		for _, m := range p[key] {
			existing[m.String()] = true
		}
		for _, m := range matchers {
			if existing[m.String()] {
				continue
			}
			existing[m.String()] = true
			p[key] = append(p[key], m)
		}
	}
}

// Keys returns the attribute keys with at least one pattern.
func (p Patterns) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	return keys
}

// Values is a set of concrete attribute values per key.
type Values map[string]map[string]bool

// Add records a value under a key.
func (v Values) Add(key, value string) {
	if v[key] == nil {
		v[key] = map[string]bool{}
	}
	v[key][value] = true
}

// Merge folds another value set into v.
func (v Values) Merge(other Values) {
	for key, set := range other {
		for value := range set {
			v.Add(key, value)
		}
	}
}

// Sorted returns the values of a key in sorted order.
func (v Values) Sorted(key string) []string {
	set := v[key]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for value := range set {
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}

// Extract runs every pattern against every resource specifier of the role,
// negated lists included, and collects captured attribute values. For each
// (resource, key) pair the first matching pattern wins. Captures that are
// empty, a bare wildcard, or still carry a placeholder are discarded; keys
// that end up with no values are dropped.
func Extract(role *policy.Role, patterns Patterns) (Values, error) {
	if role == nil {
		return nil, fmt.Errorf("role required")
	}
	values := Values{}
	for i := range role.Policy {
		stmt := &role.Policy[i]
		for _, resource := range append(append([]string(nil), stmt.Resources...), stmt.NotResources...) {
			for key, matchers := range patterns {
				for _, m := range matchers {
					captured, ok := m.Capture(resource)
					if !ok {
						continue
					}
					if usable(captured) {
						values.Add(key, captured)
					}
					break
				}
			}
		}
	}
	logging.Debug(component, "extraction complete", "role", role.Key, "keys", len(values))
	return values, nil
}

// ExtractAll merges extraction results across several roles.
func ExtractAll(roles []*policy.Role, patterns Patterns) (Values, error) {
	values := Values{}
	for _, role := range roles {
		v, err := Extract(role, patterns)
		if err != nil {
			return nil, err
		}
		values.Merge(v)
	}
	return values, nil
}

// usable rejects captures that carry no information: empty strings, bare
// wildcards, and unresolved placeholders copied from another template.
func usable(captured string) bool {
	if captured == "" || captured == "*" {
		return false
	}
	return !policy.HasPlaceholder(captured)
}
