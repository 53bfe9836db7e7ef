package patch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/polgov/polgov/core/infra/artifacts"
	"github.com/polgov/polgov/core/infra/logging"
	"github.com/polgov/polgov/core/infra/metrics"
	"github.com/polgov/polgov/core/linter"
	"github.com/polgov/polgov/core/policy"
)

const component = "patch"

// Artifact document kinds.
const (
	KindPolicyPatch   = "policy-patch"
	KindPatchedPolicy = "patched-policy"
	KindReversePatch  = "reverse-policy-patch"
	KindGuardRole     = "custom-role"
)

// GuardRoleKey names the generated role that permits applying the patches
// and nothing else.
const GuardRoleKey = "limited-update-policy-role"

var (
	// ErrHashCollision means two statements in one policy share a resource
	// list, so statement identity is ambiguous and the role cannot be
	// patched safely.
	ErrHashCollision = errors.New("statement resource-hash collision")
	// ErrRoundTrip means a generated patch pair failed verification.
	ErrRoundTrip = errors.New("patch round-trip verification failed")
)

// Document is the persisted shape of every patch artifact.
type Document struct {
	Key       string             `json:"key"`
	Type      string             `json:"type"`
	CreatedAt time.Time          `json:"created_at"`
	Patch     []Op               `json:"patch,omitempty"`
	Policy    []policy.Statement `json:"policy,omitempty"`
}

// Result summarizes a fix run.
type Result struct {
	Fixed   []string          `json:"fixed"`
	Skipped map[string]string `json:"skipped"`
	Failed  map[string]string `json:"failed"`
}

// Engine turns validation findings into verified patch artifacts.
type Engine struct {
	store   artifacts.Store
	metrics metrics.Metrics
	now     func() time.Time
}

// NewEngine returns an engine persisting through the given store.
func NewEngine(store artifacts.Store) *Engine {
	return &Engine{store: store, metrics: metrics.Noop{}, now: time.Now}
}

// WithMetrics wires a metrics recorder; nil keeps the no-op recorder.
func (e *Engine) WithMetrics(m metrics.Metrics) *Engine {
	if m != nil {
		e.metrics = m
	}
	return e
}

// WithClock overrides the timestamp source, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// Fix builds patch artifacts for every role named in the report. Roles are
// never mutated; the remote policies stay untouched until an operator applies
// the generated patches. A storage failure aborts the run, everything else is
// recorded per role in the result.
func (e *Engine) Fix(ctx context.Context, roles []*policy.Role, report linter.Report) (*Result, error) {
	if len(report) == 0 {
		return nil, fmt.Errorf("nothing to fix: report is empty")
	}
	byKey := make(map[string]*policy.Role, len(roles))
	for _, r := range roles {
		byKey[r.Key] = r
	}
	result := &Result{Skipped: map[string]string{}, Failed: map[string]string{}}
	for _, key := range sortedReportKeys(report) {
		role, ok := byKey[key]
		if !ok {
			e.fail(result, key, "role not present in input set")
			continue
		}
		if err := e.fixRole(ctx, role, report[key], result); err != nil {
			return nil, err
		}
	}
	if len(result.Fixed) > 0 {
		if err := e.persistGuardRole(ctx, result.Fixed); err != nil {
			return nil, err
		}
	}
	logging.Info(component, "fix run complete",
		"fixed", len(result.Fixed), "skipped", len(result.Skipped), "failed", len(result.Failed))
	return result, nil
}

func (e *Engine) fixRole(ctx context.Context, role *policy.Role, findings []linter.InvalidStatement, result *Result) error {
	invalidByHash, err := indexFindings(findings)
	if err != nil {
		e.fail(result, role.Key, err.Error())
		return nil
	}
	if err := checkHashes(role); err != nil {
		e.fail(result, role.Key, err.Error())
		return nil
	}

	fixed, err := strippedPolicy(role, invalidByHash)
	if err != nil {
		e.fail(result, role.Key, err.Error())
		return nil
	}
	if len(fixed) == 0 {
		logging.Warn(component, "fix would empty the policy, skipping role", "role", role.Key)
		e.metrics.IncPatchResult("skipped")
		result.Skipped[role.Key] = "fix would remove every statement"
		return nil
	}

	forward, reverse, err := verifiedPatchPair(role.Policy, fixed)
	if err != nil {
		e.fail(result, role.Key, err.Error())
		return nil
	}

	createdAt := e.now().UTC()
	puts := []struct {
		name string
		doc  Document
	}{
		{role.Key + ".patch", Document{Key: role.Key, Type: KindPolicyPatch, CreatedAt: createdAt, Patch: forward}},
		{role.Key + ".patched", Document{Key: role.Key, Type: KindPatchedPolicy, CreatedAt: createdAt, Policy: fixed}},
		{role.Key + ".reverse-patch", Document{Key: role.Key, Type: KindReversePatch, CreatedAt: createdAt, Patch: reverse}},
	}
	for _, p := range puts {
		meta := artifacts.Metadata{Kind: p.doc.Type, Retention: artifacts.RetentionAudit, CreatedAt: createdAt}
		if err := e.store.Put(ctx, p.name, p.doc, meta); err != nil {
			return fmt.Errorf("persist %s: %w", p.name, err)
		}
	}
	e.metrics.IncPatchResult("generated")
	result.Fixed = append(result.Fixed, role.Key)
	logging.Info(component, "patch artifacts written", "role", role.Key, "forward_ops", len(forward))
	return nil
}

func (e *Engine) fail(result *Result, key, reason string) {
	logging.Error(component, "role cannot be patched", "role", key, "reason", reason)
	e.metrics.IncPatchResult("failed")
	result.Failed[key] = reason
}

func (e *Engine) persistGuardRole(ctx context.Context, fixedKeys []string) error {
	keys := append([]string(nil), fixedKeys...)
	sort.Strings(keys)
	resources := make([]string, len(keys))
	for i, k := range keys {
		resources[i] = "role/" + k
	}
	guard := policy.Role{
		Key:         GuardRoleKey,
		Name:        "Limited update-policy role",
		Description: "Grants updatePolicy on the roles covered by the generated patches, nothing else.",
		Policy: []policy.Statement{{
			Effect:    policy.EffectAllow,
			Actions:   []string{"updatePolicy"},
			Resources: resources,
		}},
	}
	createdAt := e.now().UTC()
	meta := artifacts.Metadata{Kind: KindGuardRole, Retention: artifacts.RetentionAudit, CreatedAt: createdAt}
	if err := e.store.Put(ctx, GuardRoleKey+".json", guard, meta); err != nil {
		return fmt.Errorf("persist guard role: %w", err)
	}
	return nil
}

// indexFindings maps resource-list hashes to the set of invalid actions.
func indexFindings(findings []linter.InvalidStatement) (map[string]map[string]bool, error) {
	out := make(map[string]map[string]bool, len(findings))
	for _, f := range findings {
		stmt := policy.Statement{Resources: f.Resources}
		h, err := policy.ResourceHash(&stmt)
		if err != nil {
			return nil, fmt.Errorf("finding without resources: %w", err)
		}
		set := out[h]
		if set == nil {
			set = map[string]bool{}
			out[h] = set
		}
		for _, a := range f.Actions {
			set[a] = true
		}
	}
	return out, nil
}

// checkHashes guarantees statement identity is unambiguous before any edit.
func checkHashes(role *policy.Role) error {
	seen := map[string]int{}
	for i := range role.Policy {
		h, err := policy.ResourceHash(&role.Policy[i])
		if err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
		if prev, ok := seen[h]; ok {
			return fmt.Errorf("%w: statements %d and %d share a resource list", ErrHashCollision, prev, i)
		}
		seen[h] = i
	}
	return nil
}

// strippedPolicy returns a copy of the role's policy with invalid actions
// removed; statements left without actions are dropped.
func strippedPolicy(role *policy.Role, invalidByHash map[string]map[string]bool) ([]policy.Statement, error) {
	clone := role.Clone()
	var out []policy.Statement
	for i := range clone.Policy {
		stmt := clone.Policy[i]
		h, err := policy.ResourceHash(&stmt)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		invalid, flagged := invalidByHash[h]
		if !flagged {
			out = append(out, stmt)
			continue
		}
		var kept []string
		for _, a := range stmt.ActionList() {
			if !invalid[a] {
				kept = append(kept, a)
			}
		}
		if len(kept) == 0 {
			continue
		}
		stmt.SetActionList(kept)
		out = append(out, stmt)
	}
	return out, nil
}

// verifiedPatchPair diffs both directions and proves the pair round-trips
// before anything is persisted.
func verifiedPatchPair(original, fixed []policy.Statement) (forward, reverse []Op, err error) {
	origDoc, err := policy.ToDocument(original)
	if err != nil {
		return nil, nil, err
	}
	fixedDoc, err := policy.ToDocument(fixed)
	if err != nil {
		return nil, nil, err
	}
	forward = Diff(origDoc, fixedDoc)
	reverse = Diff(fixedDoc, origDoc)

	scratch, err := policy.ToDocument(original)
	if err != nil {
		return nil, nil, err
	}
	patched, err := Apply(scratch, forward)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: forward apply: %v", ErrRoundTrip, err)
	}
	if !policy.Equal(patched, fixedDoc) {
		return nil, nil, fmt.Errorf("%w: forward patch does not reproduce the fixed policy", ErrRoundTrip)
	}
	restored, err := Apply(patched, reverse)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reverse apply: %v", ErrRoundTrip, err)
	}
	if !policy.Equal(restored, origDoc) {
		return nil, nil, fmt.Errorf("%w: reverse patch does not restore the original policy", ErrRoundTrip)
	}
	return forward, reverse, nil
}

// ApplyToPolicy applies ops to a typed statement list and decodes the result
// back into statements.
func ApplyToPolicy(statements []policy.Statement, ops []Op) ([]policy.Statement, error) {
	doc, err := policy.ToDocument(statements)
	if err != nil {
		return nil, err
	}
	patched, err := Apply(doc, ops)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(patched)
	if err != nil {
		return nil, fmt.Errorf("encode patched policy: %w", err)
	}
	var out []policy.Statement
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode patched policy: %w", err)
	}
	for i := range out {
		if err := out[i].Validate(); err != nil {
			return nil, fmt.Errorf("patched statement %d: %w", i, err)
		}
	}
	return out, nil
}

func sortedReportKeys(report linter.Report) []string {
	keys := make([]string, 0, len(report))
	for k := range report {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
