// Package patch computes and applies structural patches between policy
// documents. Patches are lists of add/remove/replace operations addressed by
// JSON pointers; every generated patch pair is round-trip verified before it
// is persisted, so an artifact that exists is an artifact that applies.
package patch

import (
	"sort"
	"strconv"
	"strings"

	"github.com/polgov/polgov/core/policy"
)

// Operation kinds.
const (
	OpAdd     = "add"
	OpRemove  = "remove"
	OpReplace = "replace"
)

// Op is a single patch operation.
type Op struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// Diff computes the operations that transform document a into document b.
// Both arguments must be generic JSON trees (see policy.ToDocument).
// Diff(b, a) yields the reverse patch.
func Diff(a, b any) []Op {
	var ops []Op
	diffValue("", a, b, &ops)
	return ops
}

func diffValue(path string, a, b any, ops *[]Op) {
	if policy.Equal(a, b) {
		return
	}
	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	if aIsMap && bIsMap {
		diffMap(path, am, bm, ops)
		return
	}
	as, aIsSlice := a.([]any)
	bs, bIsSlice := b.([]any)
	if aIsSlice && bIsSlice {
		diffSlice(path, as, bs, ops)
		return
	}
	*ops = append(*ops, Op{Op: OpReplace, Path: path, Value: b})
}

func diffMap(path string, a, b map[string]any, ops *[]Op) {
	for _, key := range sortedKeys(a) {
		child := path + "/" + escapeToken(key)
		if bv, ok := b[key]; ok {
			diffValue(child, a[key], bv, ops)
		} else {
			*ops = append(*ops, Op{Op: OpRemove, Path: child})
		}
	}
	for _, key := range sortedKeys(b) {
		if _, ok := a[key]; !ok {
			*ops = append(*ops, Op{Op: OpAdd, Path: path + "/" + escapeToken(key), Value: b[key]})
		}
	}
}

func diffSlice(path string, a, b []any, ops *[]Op) {
	common := len(a)
	if len(b) < common {
		common = len(b)
	}
	for i := 0; i < common; i++ {
		diffValue(path+"/"+strconv.Itoa(i), a[i], b[i], ops)
	}
	// Shrink from the tail so every remove addresses a live index.
	for i := len(a) - 1; i >= len(b); i-- {
		*ops = append(*ops, Op{Op: OpRemove, Path: path + "/" + strconv.Itoa(i)})
	}
	for i := len(a); i < len(b); i++ {
		*ops = append(*ops, Op{Op: OpAdd, Path: path + "/" + strconv.Itoa(i), Value: b[i]})
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func escapeToken(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	return strings.ReplaceAll(token, "/", "~1")
}

func unescapeToken(token string) string {
	token = strings.ReplaceAll(token, "~1", "/")
	return strings.ReplaceAll(token, "~0", "~")
}
