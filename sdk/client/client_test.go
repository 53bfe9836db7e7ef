package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/polgov/polgov/core/patch"
)

func rolePayload(key string) string {
	return fmt.Sprintf(`{"key":%q,"policy":[{"effect":"allow","actions":["viewProject"],"resources":["proj/*"]}]}`, key)
}

func TestListRolesFollowsPagination(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/roles" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("after") == "" {
			fmt.Fprintf(w, `{"items":[%s],"_links":{"next":{"href":"%s/roles?after=1"}}}`,
				rolePayload("first"), srv.URL)
			return
		}
		fmt.Fprintf(w, `{"items":[%s],"_links":{}}`, rolePayload("second"))
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	roles, err := c.ListRoles(context.Background())
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	if len(roles) != 2 || roles[0].Key != "first" || roles[1].Key != "second" {
		t.Fatalf("unexpected roles: %+v", roles)
	}
}

func TestGetRoleRejectsMalformedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"policy":[]}`)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "k").GetRole(context.Background(), "writer"); err == nil {
		t.Fatalf("expected validation error for role without key")
	}
}

func TestThrottledRequestRetriesAfterHint(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, rolePayload("writer"))
	}))
	defer srv.Close()

	role, err := New(srv.URL, "k").GetRole(context.Background(), "writer")
	if err != nil {
		t.Fatalf("get role: %v", err)
	}
	if role.Key != "writer" {
		t.Fatalf("unexpected role: %+v", role)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected one retry, got %d requests", hits.Load())
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "k").GetRole(context.Background(), "writer"); err == nil {
		t.Fatalf("expected error")
	}
	if hits.Load() != 1 {
		t.Fatalf("4xx must not retry, got %d requests", hits.Load())
	}
}

func TestServerErrorsRetryUpToAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "busy", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "k").GetRole(context.Background(), "writer"); err == nil {
		t.Fatalf("expected error")
	}
	if hits.Load() != defaultAttempts {
		t.Fatalf("expected %d attempts, got %d", defaultAttempts, hits.Load())
	}
}

func TestUpdateRolePolicyRebasesPaths(t *testing.T) {
	var captured []patch.Op
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/roles/writer" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ops := []patch.Op{{Op: patch.OpRemove, Path: "/0/actions/1"}}
	if err := New(srv.URL, "k").UpdateRolePolicy(context.Background(), "writer", ops); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(captured) != 1 || captured[0].Path != "/policy/0/actions/1" {
		t.Fatalf("operations must be rebased under /policy: %+v", captured)
	}
}

func TestTeamSemanticPatchShape(t *testing.T) {
	var body struct {
		Instructions []semanticInstruction `json:"instructions"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/teams/platform" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	if err := c.AddRoleAttribute(context.Background(), "platform", "project", []string{"acme"}); err != nil {
		t.Fatalf("add attribute: %v", err)
	}
	if len(body.Instructions) != 1 {
		t.Fatalf("expected one instruction: %+v", body)
	}
	inst := body.Instructions[0]
	if inst.Kind != "addRoleAttribute" || inst.Key != "project" || len(inst.Values) != 1 {
		t.Fatalf("unexpected instruction: %+v", inst)
	}
}

func TestFetchSnapshotEnriches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/teams":
			fmt.Fprint(w, `{"items":[{"key":"platform","custom_roles":["writer"]}],"_links":{}}`)
		case "/roles":
			fmt.Fprintf(w, `{"items":[%s],"_links":{}}`, rolePayload("writer"))
		case "/members":
			fmt.Fprint(w, `{"items":[{"id":"m1","email":"ada@example.com","custom_roles":["writer"]}],"_links":{}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	snap, err := New(srv.URL, "k").FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	role, ok := snap.Role("writer")
	if !ok {
		t.Fatalf("writer missing from snapshot")
	}
	if role.TotalAssigned != 2 || !role.IsAssigned {
		t.Fatalf("snapshot not enriched: %+v", role)
	}
	if snap.FetchedAt.IsZero() {
		t.Fatalf("fetch date must be set")
	}
}
