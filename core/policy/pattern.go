package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// Resource specifiers are colon-separated segments of the form
// type/name[;tag=value]. A name may be a literal, the wildcard *, or a
// placeholder ${attr/<key>}. Wildcards and placeholders never cross a colon
// boundary.

var (
	placeholderToken = regexp.MustCompile(`\$\{[^}]*\}`)
	attrToken        = regexp.MustCompile(`\$\{attr/([^}]+)\}`)
)

// Matcher is a compiled resource-specifier predicate. Matching is anchored
// and case-sensitive.
type Matcher struct {
	expr string
	re   *regexp.Regexp
}

// String returns the compiled expression; capture patterns are deduplicated
// by this text.
func (m *Matcher) String() string { return m.expr }

// Matches reports whether the normalized resource matches the pattern.
func (m *Matcher) Matches(resource string) bool {
	return m.re.MatchString(Normalize(resource))
}

// Capture applies a capture pattern to a raw resource and returns the bound
// value of the target placeholder.
func (m *Matcher) Capture(resource string) (string, bool) {
	groups := m.re.FindStringSubmatch(resource)
	if len(groups) < 2 {
		return "", false
	}
	return groups[1], true
}

// Normalize strips placeholder tokens and tag qualifiers from a resource
// specifier. Placeholders become wildcards; tag qualifiers are cosmetic and
// do not participate in resource-type matching. Qualifiers are segment
// scoped: everything from ';' to the next ':' is dropped.
func Normalize(specifier string) string {
	s := placeholderToken.ReplaceAllString(specifier, "*")
	if !strings.Contains(s, ";") {
		return s
	}
	segments := strings.Split(s, ":")
	for i, segment := range segments {
		if j := strings.Index(segment, ";"); j >= 0 {
			segments[i] = segment[:j]
		}
	}
	return strings.Join(segments, ":")
}

// Compile turns a resource-specifier pattern into a Matcher. The wildcard *
// matches any run of characters within a segment; a pattern with zero
// wildcards matches only the identical literal.
func Compile(pattern string) (*Matcher, error) {
	escaped := regexp.QuoteMeta(Normalize(pattern))
	expr := "^" + strings.ReplaceAll(escaped, `\*`, `[^:]*`) + "$"
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile resource pattern %q: %w", pattern, err)
	}
	return &Matcher{expr: expr, re: re}, nil
}

// Capture-pattern markers. Alphanumeric so they survive QuoteMeta.
const (
	markCaptureTarget = "__CAPTURE_TARGET__"
	markOtherAttr     = "__OTHER_ATTR__"
	markWildcard      = "__WILDCARD__"
)

// CompileCapture builds an extraction pattern from a template resource: the
// target key's placeholder captures a segment-bounded value, every other
// placeholder and literal wildcard matches without capturing.
func CompileCapture(templateResource, targetKey string) (*Matcher, error) {
	target := "${attr/" + targetKey + "}"
	if !strings.Contains(templateResource, target) {
		return nil, fmt.Errorf("template resource %q has no placeholder for key %q", templateResource, targetKey)
	}
	pattern := strings.ReplaceAll(templateResource, target, markCaptureTarget)
	pattern = placeholderToken.ReplaceAllString(pattern, markOtherAttr)
	pattern = strings.ReplaceAll(pattern, "*", markWildcard)
	pattern = regexp.QuoteMeta(pattern)
	pattern = strings.ReplaceAll(pattern, markCaptureTarget, `([^:]+)`)
	pattern = strings.ReplaceAll(pattern, markOtherAttr, `[^:]+`)
	pattern = strings.ReplaceAll(pattern, markWildcard, `[^:]*`)
	expr := "^" + pattern + "$"
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile capture pattern for key %q: %w", targetKey, err)
	}
	return &Matcher{expr: expr, re: re}, nil
}

// AttributeKeys returns the distinct placeholder keys referenced by a
// resource specifier, in order of first appearance.
func AttributeKeys(resource string) []string {
	matches := attrToken.FindAllStringSubmatch(resource, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		keys = append(keys, m[1])
	}
	return keys
}

// HasPlaceholder reports whether a value still contains an unresolved
// placeholder token.
func HasPlaceholder(value string) bool {
	return strings.Contains(value, "${")
}
