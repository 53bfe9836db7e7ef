package linter

import (
	"reflect"
	"testing"

	"github.com/polgov/polgov/core/catalog"
	"github.com/polgov/polgov/core/policy"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse([]byte(`
resources:
  "proj/*:env/*":
    - createEnvironment
    - updateApiKey
  "proj/*":
    - createProject
    - viewProject
`))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

func TestValidateFlagsIllegalActions(t *testing.T) {
	roles := []*policy.Role{{
		Key: "writer",
		Policy: []policy.Statement{{
			Effect:    policy.EffectAllow,
			Actions:   []string{"createProject", "deleteProject"},
			Resources: []string{"proj/*"},
		}},
	}}
	report, err := New(testCatalog(t)).Validate(roles)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	findings, ok := report["writer"]
	if !ok || len(findings) != 1 {
		t.Fatalf("expected one finding for writer, got %+v", report)
	}
	want := InvalidStatement{
		Resources: []string{"proj/*"},
		Actions:   []string{"deleteProject"},
		Effect:    policy.EffectAllow,
	}
	if !reflect.DeepEqual(findings[0], want) {
		t.Fatalf("finding mismatch:\n got  %+v\n want %+v", findings[0], want)
	}
}

func TestValidateOmitsCleanRoles(t *testing.T) {
	roles := []*policy.Role{
		{
			Key: "clean",
			Policy: []policy.Statement{{
				Effect:    policy.EffectAllow,
				Actions:   []string{"createProject", "viewProject"},
				Resources: []string{"proj/*"},
			}},
		},
		{
			Key: "dirty",
			Policy: []policy.Statement{{
				Effect:    policy.EffectDeny,
				Actions:   []string{"launchRocket"},
				Resources: []string{"proj/*"},
			}},
		},
	}
	report, err := New(testCatalog(t)).Validate(roles)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, ok := report["clean"]; ok {
		t.Fatalf("clean role must not appear in the report")
	}
	if len(report) != 1 {
		t.Fatalf("unexpected report size: %+v", report)
	}
}

func TestValidateUnknownResourceFlagsWholeStatement(t *testing.T) {
	roles := []*policy.Role{{
		Key: "ops",
		Policy: []policy.Statement{{
			Effect:    policy.EffectAllow,
			Actions:   []string{"doThing", "doOtherThing"},
			Resources: []string{"widget/*"},
		}},
	}}
	report, err := New(testCatalog(t)).Validate(roles)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	findings := report["ops"]
	if len(findings) != 1 {
		t.Fatalf("expected one finding, got %+v", report)
	}
	if !reflect.DeepEqual(findings[0].Actions, []string{"doThing", "doOtherThing"}) {
		t.Fatalf("unknown resource must keep the original action list: %+v", findings[0])
	}
}

func TestValidateWildcardActionAlwaysValid(t *testing.T) {
	roles := []*policy.Role{{
		Key: "admin",
		Policy: []policy.Statement{{
			Effect:    policy.EffectAllow,
			Actions:   []string{"*"},
			Resources: []string{"proj/*"},
		}},
	}}
	report, err := New(testCatalog(t)).Validate(roles)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(report) != 0 {
		t.Fatalf("wildcard action must validate: %+v", report)
	}
}

func TestValidateNotActionsAndNotResources(t *testing.T) {
	roles := []*policy.Role{{
		Key: "restricted",
		Policy: []policy.Statement{{
			Effect:       policy.EffectDeny,
			NotActions:   []string{"viewProject", "forbiddenVerb"},
			NotResources: []string{"proj/sandbox"},
		}},
	}}
	report, err := New(testCatalog(t)).Validate(roles)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	findings := report["restricted"]
	if len(findings) != 1 {
		t.Fatalf("expected negated lists to be validated, got %+v", report)
	}
	if !reflect.DeepEqual(findings[0].Actions, []string{"forbiddenVerb"}) {
		t.Fatalf("unexpected actions: %+v", findings[0])
	}
	if !reflect.DeepEqual(findings[0].Resources, []string{"proj/sandbox"}) {
		t.Fatalf("finding must carry the negated resource list: %+v", findings[0])
	}
}

func TestValidateDeduplicatesWithinStatement(t *testing.T) {
	roles := []*policy.Role{{
		Key: "dup",
		Policy: []policy.Statement{{
			Effect:    policy.EffectAllow,
			Actions:   []string{"badVerb", "badVerb", "createProject", "badVerb"},
			Resources: []string{"proj/*"},
		}},
	}}
	report, err := New(testCatalog(t)).Validate(roles)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	findings := report["dup"]
	if len(findings) != 1 || !reflect.DeepEqual(findings[0].Actions, []string{"badVerb"}) {
		t.Fatalf("duplicate invalid actions must be reported once: %+v", report)
	}
}

func TestValidateFirstResourceDecidesClassification(t *testing.T) {
	// updateApiKey is legal for env resources; the first specifier is a
	// project, so the env specifier never participates.
	roles := []*policy.Role{{
		Key: "mixed",
		Policy: []policy.Statement{{
			Effect:    policy.EffectAllow,
			Actions:   []string{"updateApiKey"},
			Resources: []string{"proj/p1", "proj/p1:env/e1"},
		}},
	}}
	report, err := New(testCatalog(t)).Validate(roles)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	findings := report["mixed"]
	if len(findings) != 1 {
		t.Fatalf("expected classification against first resource: %+v", report)
	}
	if !reflect.DeepEqual(findings[0].Resources, []string{"proj/p1", "proj/p1:env/e1"}) {
		t.Fatalf("finding must keep the full resource list: %+v", findings[0])
	}
}

func TestValidateRequiresRoles(t *testing.T) {
	if _, err := New(testCatalog(t)).Validate(nil); err == nil {
		t.Fatalf("expected an error for an empty role set")
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	roles := []*policy.Role{{
		Key: "repeat",
		Policy: []policy.Statement{{
			Effect:    policy.EffectAllow,
			Actions:   []string{"createProject", "deleteProject"},
			Resources: []string{"proj/*"},
		}},
	}}
	v := New(testCatalog(t))
	first, err := v.Validate(roles)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	second, err := v.Validate(roles)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("validation mutated its input:\n first  %+v\n second %+v", first, second)
	}
}
