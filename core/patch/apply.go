package patch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/polgov/polgov/core/policy"
)

// Apply runs ops against a generic JSON tree and returns the result. The
// input may be mutated; callers needing the original must diff against a
// fresh copy.
func Apply(doc any, ops []Op) (any, error) {
	for i, op := range ops {
		updated, err := applyOne(doc, op)
		if err != nil {
			return nil, fmt.Errorf("op %d (%s %s): %w", i, op.Op, op.Path, err)
		}
		doc = updated
	}
	return doc, nil
}

func applyOne(doc any, op Op) (any, error) {
	switch op.Op {
	case OpAdd, OpRemove, OpReplace:
	default:
		return nil, fmt.Errorf("unsupported operation %q", op.Op)
	}
	tokens, err := parsePointer(op.Path)
	if err != nil {
		return nil, err
	}
	value := op.Value
	if op.Op != OpRemove {
		// Detach the value from the source document the diff was taken
		// against.
		value, err = policy.ToDocument(op.Value)
		if err != nil {
			return nil, err
		}
	}
	return applyAt(doc, tokens, op.Op, value)
}

func applyAt(node any, tokens []string, kind string, value any) (any, error) {
	if len(tokens) == 0 {
		if kind == OpRemove {
			return nil, fmt.Errorf("cannot remove the document root")
		}
		return value, nil
	}
	token := tokens[0]
	switch t := node.(type) {
	case map[string]any:
		if len(tokens) == 1 {
			return applyMapLeaf(t, token, kind, value)
		}
		child, ok := t[token]
		if !ok {
			return nil, fmt.Errorf("missing member %q", token)
		}
		updated, err := applyAt(child, tokens[1:], kind, value)
		if err != nil {
			return nil, err
		}
		t[token] = updated
		return t, nil
	case []any:
		if len(tokens) == 1 {
			return applySliceLeaf(t, token, kind, value)
		}
		idx, err := sliceIndex(token, len(t)-1)
		if err != nil {
			return nil, err
		}
		updated, err := applyAt(t[idx], tokens[1:], kind, value)
		if err != nil {
			return nil, err
		}
		t[idx] = updated
		return t, nil
	default:
		return nil, fmt.Errorf("path traverses a non-container value at %q", token)
	}
}

func applyMapLeaf(m map[string]any, token, kind string, value any) (any, error) {
	switch kind {
	case OpAdd:
		m[token] = value
	case OpReplace:
		if _, ok := m[token]; !ok {
			return nil, fmt.Errorf("missing member %q", token)
		}
		m[token] = value
	case OpRemove:
		if _, ok := m[token]; !ok {
			return nil, fmt.Errorf("missing member %q", token)
		}
		delete(m, token)
	}
	return m, nil
}

func applySliceLeaf(s []any, token, kind string, value any) (any, error) {
	switch kind {
	case OpAdd:
		if token == "-" {
			return append(s, value), nil
		}
		idx, err := sliceIndex(token, len(s))
		if err != nil {
			return nil, err
		}
		s = append(s, nil)
		copy(s[idx+1:], s[idx:])
		s[idx] = value
		return s, nil
	case OpReplace:
		idx, err := sliceIndex(token, len(s)-1)
		if err != nil {
			return nil, err
		}
		s[idx] = value
		return s, nil
	case OpRemove:
		idx, err := sliceIndex(token, len(s)-1)
		if err != nil {
			return nil, err
		}
		return append(s[:idx], s[idx+1:]...), nil
	}
	return s, nil
}

func sliceIndex(token string, max int) (int, error) {
	idx, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("invalid array index %q", token)
	}
	if idx < 0 || idx > max {
		return 0, fmt.Errorf("array index %d out of range", idx)
	}
	return idx, nil
}

func parsePointer(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("invalid pointer %q", path)
	}
	raw := strings.Split(path[1:], "/")
	tokens := make([]string, len(raw))
	for i, r := range raw {
		tokens[i] = unescapeToken(r)
	}
	return tokens, nil
}
