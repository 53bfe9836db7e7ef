package teams

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/polgov/polgov/core/infra/artifacts"
	"github.com/polgov/polgov/core/policy"
)

type recordedCall struct {
	kind   string
	key    string
	values []string
}

type recordingUpdater struct {
	calls  []recordedCall
	failOn string
}

func (r *recordingUpdater) AssignRoles(_ context.Context, _ string, roles []string) error {
	if r.failOn == KindAddCustomRoles {
		return fmt.Errorf("boom")
	}
	r.calls = append(r.calls, recordedCall{kind: KindAddCustomRoles, values: roles})
	return nil
}

func (r *recordingUpdater) AddRoleAttribute(_ context.Context, _ string, key string, values []string) error {
	if r.failOn == KindAddRoleAttribute {
		return fmt.Errorf("boom")
	}
	r.calls = append(r.calls, recordedCall{kind: KindAddRoleAttribute, key: key, values: values})
	return nil
}

func (r *recordingUpdater) UpdateRoleAttribute(_ context.Context, _ string, key string, values []string) error {
	if r.failOn == KindUpdateRoleAttribute {
		return fmt.Errorf("boom")
	}
	r.calls = append(r.calls, recordedCall{kind: KindUpdateRoleAttribute, key: key, values: values})
	return nil
}

func TestApplyExecutesInstructionsInOrder(t *testing.T) {
	composer, store := testComposer(t)
	ctx := context.Background()
	if out := composer.Compose(ctx, testSnapshot(), "platform", []*policy.Role{projectTemplate()}); out.Status != StatusComposed {
		t.Fatalf("compose: %+v", out)
	}

	updater := &recordingUpdater{}
	patch, err := Apply(ctx, store, updater, "platform")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if patch.TeamKey != "platform" {
		t.Fatalf("unexpected patch: %+v", patch)
	}
	if len(updater.calls) != 3 || updater.calls[0].kind != KindAddCustomRoles {
		t.Fatalf("unexpected call sequence: %+v", updater.calls)
	}
	if updater.calls[1].key != "environment" || !reflect.DeepEqual(updater.calls[1].values, []string{"prod", "staging"}) {
		t.Fatalf("unexpected attribute call: %+v", updater.calls[1])
	}
}

func TestApplyAbortsOnFirstFailure(t *testing.T) {
	composer, store := testComposer(t)
	ctx := context.Background()
	if out := composer.Compose(ctx, testSnapshot(), "platform", []*policy.Role{projectTemplate()}); out.Status != StatusComposed {
		t.Fatalf("compose: %+v", out)
	}

	updater := &recordingUpdater{failOn: KindAddRoleAttribute}
	if _, err := Apply(ctx, store, updater, "platform"); err == nil {
		t.Fatalf("expected apply to fail")
	}
	// Role assignment ran; nothing after the failing instruction did.
	if len(updater.calls) != 1 || updater.calls[0].kind != KindAddCustomRoles {
		t.Fatalf("unexpected call sequence: %+v", updater.calls)
	}
}

func TestApplyRejectsForeignArtifacts(t *testing.T) {
	composer, store := testComposer(t)
	ctx := context.Background()
	if out := composer.Compose(ctx, testSnapshot(), "platform", []*policy.Role{projectTemplate()}); out.Status != StatusComposed {
		t.Fatalf("compose: %+v", out)
	}
	// Store a document for team "other" under a name that Latest will pick
	// up for "platform".
	var patch Patch
	name, err := Latest(ctx, store, "platform")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if _, err := store.Get(ctx, name, &patch); err != nil {
		t.Fatalf("get: %v", err)
	}
	patch.TeamKey = "other"
	if err := store.Put(ctx, name, patch, artifacts.Metadata{Kind: PatchType}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := Apply(ctx, store, &recordingUpdater{}, "platform"); err == nil {
		t.Fatalf("expected team key mismatch to fail")
	}
}

func TestApplyWithoutArtifactsFails(t *testing.T) {
	_, store := testComposer(t)
	if _, err := Apply(context.Background(), store, &recordingUpdater{}, "platform"); err == nil {
		t.Fatalf("expected error without artifacts")
	}
}

func TestAnalyzeCoverage(t *testing.T) {
	cov, err := AnalyzeCoverage(testSnapshot(), []*policy.Role{projectTemplate()})
	if err != nil {
		t.Fatalf("coverage: %v", err)
	}
	tc, ok := cov.Teams["platform"]
	if !ok {
		t.Fatalf("platform missing from coverage: %+v", cov)
	}
	if !reflect.DeepEqual(tc.Values["project"], []string{"acme"}) {
		t.Fatalf("unexpected project coverage: %+v", tc)
	}
	if !reflect.DeepEqual(cov.TeamsWithoutRoles, []string{"bare", "stale"}) {
		t.Fatalf("teams without roles: %v", cov.TeamsWithoutRoles)
	}
}

func TestRoleDistribution(t *testing.T) {
	snap := testSnapshot()
	snap.Teams[0].CustomRoles = append(snap.Teams[0].CustomRoles, "platform-writer")
	dist := RoleDistribution(snap)
	if dist["platform-writer"] != 2 {
		t.Fatalf("duplicate role keys within a team must count once: %+v", dist)
	}
	if dist["gone-role"] != 1 {
		t.Fatalf("unexpected distribution: %+v", dist)
	}
}
