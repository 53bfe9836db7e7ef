package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseOrderedEntries(t *testing.T) {
	doc := []byte(`
resources:
  "proj/*:env/*":
    - createEnvironment
  "proj/*":
    - createProject
    - viewProject
`)
	cat, err := Parse(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	entries := cat.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Pattern != "proj/*:env/*" {
		t.Fatalf("document order lost: first entry %q", entries[0].Pattern)
	}
}

func TestMatchFirstEntryWins(t *testing.T) {
	doc := []byte(`
resources:
  "proj/*:env/*":
    - createEnvironment
  "proj/*":
    - createProject
`)
	cat, err := Parse(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	entry, ok := cat.Match("proj/p1:env/e1")
	if !ok {
		t.Fatalf("expected a match")
	}
	if entry.Pattern != "proj/*:env/*" {
		t.Fatalf("expected first matching entry, got %q", entry.Pattern)
	}
	if _, ok := cat.Match("unknown/x"); ok {
		t.Fatalf("expected no match for unknown resource type")
	}
}

func TestEntryAllows(t *testing.T) {
	cat, err := Parse([]byte("resources:\n  \"proj/*\":\n    - createProject\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	entry, _ := cat.Match("proj/p1")
	if !entry.Allows("createProject") {
		t.Fatalf("expected listed action to be allowed")
	}
	if entry.Allows("deleteProject") {
		t.Fatalf("expected unlisted action to be rejected")
	}
	if !entry.Allows(WildcardAction) {
		t.Fatalf("wildcard action is always valid")
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not a mapping":   "- a\n- b\n",
		"missing section": "version: \"1\"\n",
		"empty resources": "resources: {}\n",
		"bad verb list":   "resources:\n  \"proj/*\": {x: 1}\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected parse error", name)
		}
	}
}

func TestParseAcceptsJSON(t *testing.T) {
	doc := []byte(`{"resources": {"proj/*": ["createProject"]}}`)
	cat, err := Parse(doc)
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if _, ok := cat.Match("proj/p1"); !ok {
		t.Fatalf("expected match from json catalog")
	}
}

func TestLoadFromFileAndDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte("resources:\n  \"proj/*\":\n    - createProject\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cat, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cat.Entries()) != 1 {
		t.Fatalf("unexpected entries: %d", len(cat.Entries()))
	}

	def, err := Load("")
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if _, ok := def.Match("proj/p1:env/e1:flag/f1"); !ok {
		t.Fatalf("default catalog should cover flag resources")
	}
}
