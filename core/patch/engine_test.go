package patch

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/polgov/polgov/core/infra/artifacts"
	"github.com/polgov/polgov/core/linter"
	"github.com/polgov/polgov/core/policy"
)

func testEngine(t *testing.T) (*Engine, *artifacts.FileStore) {
	t.Helper()
	store, err := artifacts.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	clock := func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return NewEngine(store).WithClock(clock), store
}

func TestFixStripsInvalidActions(t *testing.T) {
	engine, store := testEngine(t)
	roles := []*policy.Role{{
		Key: "writer",
		Policy: []policy.Statement{{
			Effect:    policy.EffectAllow,
			Actions:   []string{"createProject", "deleteProject"},
			Resources: []string{"proj/*"},
		}},
	}}
	report := linter.Report{"writer": {{
		Resources: []string{"proj/*"},
		Actions:   []string{"deleteProject"},
		Effect:    policy.EffectAllow,
	}}}

	result, err := engine.Fix(context.Background(), roles, report)
	if err != nil {
		t.Fatalf("fix: %v", err)
	}
	if len(result.Fixed) != 1 || result.Fixed[0] != "writer" {
		t.Fatalf("unexpected result: %+v", result)
	}

	var patched Document
	if _, err := store.Get(context.Background(), "writer.patched", &patched); err != nil {
		t.Fatalf("get patched: %v", err)
	}
	if len(patched.Policy) != 1 {
		t.Fatalf("unexpected patched policy: %+v", patched.Policy)
	}
	got := patched.Policy[0].Actions
	if len(got) != 1 || got[0] != "createProject" {
		t.Fatalf("invalid action not stripped: %v", got)
	}
	if patched.Type != KindPatchedPolicy || patched.CreatedAt.IsZero() {
		t.Fatalf("unexpected artifact envelope: %+v", patched)
	}

	// The input role must be untouched.
	if len(roles[0].Policy[0].Actions) != 2 {
		t.Fatalf("fix mutated its input: %+v", roles[0].Policy)
	}
}

func TestFixPatchPairRoundTrips(t *testing.T) {
	engine, store := testEngine(t)
	original := []policy.Statement{
		{Effect: policy.EffectAllow, Actions: []string{"createProject", "badVerb"}, Resources: []string{"proj/*"}},
		{Effect: policy.EffectDeny, Actions: []string{"onlyBadVerb"}, Resources: []string{"team/*"}},
		{Effect: policy.EffectAllow, Actions: []string{"viewProject"}, Resources: []string{"proj/keep"}},
	}
	roles := []*policy.Role{{Key: "mixed", Policy: original}}
	report := linter.Report{"mixed": {
		{Resources: []string{"proj/*"}, Actions: []string{"badVerb"}, Effect: policy.EffectAllow},
		{Resources: []string{"team/*"}, Actions: []string{"onlyBadVerb"}, Effect: policy.EffectDeny},
	}}

	if _, err := engine.Fix(context.Background(), roles, report); err != nil {
		t.Fatalf("fix: %v", err)
	}

	var fwd, rev, patched Document
	ctx := context.Background()
	if _, err := store.Get(ctx, "mixed.patch", &fwd); err != nil {
		t.Fatalf("get patch: %v", err)
	}
	if _, err := store.Get(ctx, "mixed.reverse-patch", &rev); err != nil {
		t.Fatalf("get reverse: %v", err)
	}
	if _, err := store.Get(ctx, "mixed.patched", &patched); err != nil {
		t.Fatalf("get patched: %v", err)
	}

	after, err := ApplyToPolicy(original, fwd.Patch)
	if err != nil {
		t.Fatalf("apply forward: %v", err)
	}
	if !policy.Equal(after, patched.Policy) {
		t.Fatalf("forward patch does not reproduce patched policy:\n got  %+v\n want %+v", after, patched.Policy)
	}
	restored, err := ApplyToPolicy(after, rev.Patch)
	if err != nil {
		t.Fatalf("apply reverse: %v", err)
	}
	if !policy.Equal(restored, original) {
		t.Fatalf("reverse patch does not restore original:\n got  %+v\n want %+v", restored, original)
	}
}

func TestFixSkipsRoleThatWouldBeEmptied(t *testing.T) {
	engine, store := testEngine(t)
	roles := []*policy.Role{{
		Key: "hollow",
		Policy: []policy.Statement{{
			Effect:    policy.EffectAllow,
			Actions:   []string{"badVerb"},
			Resources: []string{"proj/*"},
		}},
	}}
	report := linter.Report{"hollow": {{
		Resources: []string{"proj/*"}, Actions: []string{"badVerb"}, Effect: policy.EffectAllow,
	}}}

	result, err := engine.Fix(context.Background(), roles, report)
	if err != nil {
		t.Fatalf("fix: %v", err)
	}
	if len(result.Fixed) != 0 {
		t.Fatalf("emptied role must not be fixed: %+v", result)
	}
	if _, ok := result.Skipped["hollow"]; !ok {
		t.Fatalf("expected skip entry: %+v", result)
	}
	names, err := store.List(context.Background(), "hollow")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("skipped role must leave no artifacts: %v", names)
	}
}

func TestFixFailsOnHashCollision(t *testing.T) {
	engine, store := testEngine(t)
	// Same resource list twice; statement identity is ambiguous.
	roles := []*policy.Role{{
		Key: "twins",
		Policy: []policy.Statement{
			{Effect: policy.EffectAllow, Actions: []string{"badVerb", "createProject"}, Resources: []string{"proj/*"}},
			{Effect: policy.EffectDeny, Actions: []string{"viewProject"}, Resources: []string{"proj/*"}},
		},
	}}
	report := linter.Report{"twins": {{
		Resources: []string{"proj/*"}, Actions: []string{"badVerb"}, Effect: policy.EffectAllow,
	}}}

	result, err := engine.Fix(context.Background(), roles, report)
	if err != nil {
		t.Fatalf("fix: %v", err)
	}
	reason, ok := result.Failed["twins"]
	if !ok {
		t.Fatalf("expected failure entry: %+v", result)
	}
	if !strings.Contains(reason, ErrHashCollision.Error()) {
		t.Fatalf("unexpected failure reason: %s", reason)
	}
	names, err := store.List(context.Background(), "twins")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("failed role must leave no artifacts: %v", names)
	}
}

func TestFixWritesGuardRole(t *testing.T) {
	engine, store := testEngine(t)
	roles := []*policy.Role{
		{Key: "b-role", Policy: []policy.Statement{{Effect: policy.EffectAllow, Actions: []string{"createProject", "bad"}, Resources: []string{"proj/*"}}}},
		{Key: "a-role", Policy: []policy.Statement{{Effect: policy.EffectAllow, Actions: []string{"createTeam", "bad"}, Resources: []string{"team/*"}}}},
	}
	report := linter.Report{
		"b-role": {{Resources: []string{"proj/*"}, Actions: []string{"bad"}, Effect: policy.EffectAllow}},
		"a-role": {{Resources: []string{"team/*"}, Actions: []string{"bad"}, Effect: policy.EffectAllow}},
	}
	if _, err := engine.Fix(context.Background(), roles, report); err != nil {
		t.Fatalf("fix: %v", err)
	}

	var guard policy.Role
	if _, err := store.Get(context.Background(), GuardRoleKey+".json", &guard); err != nil {
		t.Fatalf("get guard role: %v", err)
	}
	if guard.Key != GuardRoleKey || len(guard.Policy) != 1 {
		t.Fatalf("unexpected guard role: %+v", guard)
	}
	stmt := guard.Policy[0]
	if len(stmt.Actions) != 1 || stmt.Actions[0] != "updatePolicy" {
		t.Fatalf("guard role must grant only updatePolicy: %+v", stmt)
	}
	want := []string{"role/a-role", "role/b-role"}
	if len(stmt.Resources) != 2 || stmt.Resources[0] != want[0] || stmt.Resources[1] != want[1] {
		t.Fatalf("guard role resources: got %v want %v", stmt.Resources, want)
	}
}

func TestFixReportsUnknownRole(t *testing.T) {
	engine, _ := testEngine(t)
	report := linter.Report{"ghost": {{Resources: []string{"proj/*"}, Actions: []string{"x"}, Effect: policy.EffectAllow}}}
	result, err := engine.Fix(context.Background(), nil, report)
	if err != nil {
		t.Fatalf("fix: %v", err)
	}
	if _, ok := result.Failed["ghost"]; !ok {
		t.Fatalf("expected failure for missing role: %+v", result)
	}
}

func TestFixRequiresFindings(t *testing.T) {
	engine, _ := testEngine(t)
	if _, err := engine.Fix(context.Background(), nil, linter.Report{}); err == nil {
		t.Fatalf("expected error for empty report")
	}
}
