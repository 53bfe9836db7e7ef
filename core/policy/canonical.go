package policy

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ResourceHash returns a stable content hash of a statement's resource list.
// Statements are identified by this hash during patching because array
// indexes are unstable across edits. Two statements within one policy must
// not share a resource list; the patch engine checks this precondition.
func ResourceHash(s *Statement) (string, error) {
	resources := s.ResourceList()
	if len(resources) == 0 {
		return "", fmt.Errorf("statement has no resources to hash")
	}
	sorted := append([]string(nil), resources...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, ", ")))
	return hex.EncodeToString(sum[:]), nil
}

// CanonicalJSON encodes a value as JSON with sorted object keys, so that
// structurally equal documents encode to identical bytes.
func CanonicalJSON(value any) ([]byte, error) {
	var buf bytes.Buffer
	if err := appendCanonical(&buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Equal reports whether two values are structurally identical under
// canonical JSON encoding.
func Equal(a, b any) bool {
	ca, err := CanonicalJSON(a)
	if err != nil {
		return false
	}
	cb, err := CanonicalJSON(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

func appendCanonical(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case map[string]any:
		return appendCanonicalMap(buf, v)
	case []any:
		return appendCanonicalSlice(buf, v)
	case []string:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = val
		}
		return appendCanonicalSlice(buf, out)
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return fmt.Errorf("decode raw json: %w", err)
		}
		return appendCanonical(buf, decoded)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode canonical json: %w", err)
		}
		buf.Write(encoded)
		return nil
	}
}

func appendCanonicalMap(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, _ := json.Marshal(k)
		buf.Write(keyBytes)
		buf.WriteByte(':')
		if err := appendCanonical(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func appendCanonicalSlice(buf *bytes.Buffer, items []any) error {
	buf.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := appendCanonical(buf, item); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// ToDocument converts a typed value into the generic JSON tree used by the
// patch engine for structural diffing.
func ToDocument(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
