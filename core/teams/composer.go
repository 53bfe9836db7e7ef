// Package teams composes per-team patch instruction documents: given the
// role templates a team should converge to and the attribute values mined
// from the team's existing roles, it emits the ordered instructions an
// applier (or an operator) executes against the account.
package teams

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/polgov/polgov/core/directory"
	"github.com/polgov/polgov/core/infra/artifacts"
	"github.com/polgov/polgov/core/infra/logging"
	"github.com/polgov/polgov/core/infra/metrics"
	"github.com/polgov/polgov/core/policy"
	"github.com/polgov/polgov/core/template"
)

const component = "teams"

// Instruction kinds, executed in document order. Role assignment always
// comes first so attribute bindings never reference roles the team does not
// hold yet.
const (
	KindAddCustomRoles      = "addCustomRoles"
	KindAddRoleAttribute    = "addRoleAttribute"
	KindUpdateRoleAttribute = "updateRoleAttribute"
)

// Outcome statuses.
const (
	StatusComposed = "composed"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
)

// Skip and failure reasons.
const (
	ReasonTeamNotFound    = "team_not_found"
	ReasonNoAssignedRoles = "no_assigned_roles"
	ReasonNoRoleObjects   = "no_role_objects_in_cache"
)

// Instruction is one step of a team patch.
type Instruction struct {
	Kind   string   `json:"kind"`
	Roles  []string `json:"roles,omitempty"`
	Key    string   `json:"key,omitempty"`
	Values []string `json:"values,omitempty"`
}

// Patch is the persisted team patch document.
type Patch struct {
	TeamKey         string              `json:"team_key"`
	TemplateSources []string            `json:"template_sources"`
	Type            string              `json:"type"`
	CreatedAt       time.Time           `json:"created_at"`
	RolesAnalyzed   []string            `json:"roles_analyzed"`
	ExtractedValues map[string][]string `json:"extracted_values"`
	Instructions    []Instruction       `json:"instructions"`
}

// PatchType is the document type marker checked on apply.
const PatchType = "team-patch"

// Outcome reports what happened for one team.
type Outcome struct {
	TeamKey  string `json:"team_key"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Artifact string `json:"artifact,omitempty"`
}

// Composer builds and persists team patches.
type Composer struct {
	store   artifacts.Store
	metrics metrics.Metrics
	now     func() time.Time
}

// NewComposer returns a composer persisting through the given store.
func NewComposer(store artifacts.Store) *Composer {
	return &Composer{store: store, metrics: metrics.Noop{}, now: time.Now}
}

// WithMetrics wires a metrics recorder; nil keeps the no-op recorder.
func (c *Composer) WithMetrics(m metrics.Metrics) *Composer {
	if m != nil {
		c.metrics = m
	}
	return c
}

// WithClock overrides the timestamp source, for tests.
func (c *Composer) WithClock(now func() time.Time) *Composer {
	if now != nil {
		c.now = now
	}
	return c
}

// Compose builds the patch for one team. A missing team is a failure, not a
// skip: the caller asked for it by key, so silence would hide a typo. Every
// other error while processing the team, a bad template or a failed artifact
// write included, is recorded as a failed outcome so one team never takes
// down a batch.
func (c *Composer) Compose(ctx context.Context, snap *directory.Snapshot, teamKey string, templates []*policy.Role) *Outcome {
	team, ok := snap.Team(teamKey)
	if !ok {
		return c.outcome(teamKey, StatusFailed, ReasonTeamNotFound, "")
	}
	if len(team.CustomRoles) == 0 {
		return c.outcome(teamKey, StatusSkipped, ReasonNoAssignedRoles, "")
	}
	roles, missing := snap.RolesForTeam(teamKey)
	if len(roles) == 0 {
		logging.Warn(component, "team roles missing from snapshot", "team", teamKey, "missing", missing)
		return c.outcome(teamKey, StatusSkipped, ReasonNoRoleObjects, "")
	}

	patterns := template.Patterns{}
	sources := make([]string, 0, len(templates))
	for _, tmpl := range templates {
		p, err := template.Discover(tmpl)
		if err != nil {
			return c.outcome(teamKey, StatusFailed, err.Error(), "")
		}
		patterns.Merge(p)
		sources = append(sources, tmpl.Key)
	}
	// A static template yields no patterns and no values; the patch then
	// carries only the role assignment, which still grants the role.
	values, err := template.ExtractAll(roles, patterns)
	if err != nil {
		return c.outcome(teamKey, StatusFailed, err.Error(), "")
	}

	doc := c.buildPatch(team, sources, roles, values)
	name := fmt.Sprintf("%s_%s_patch.json", teamKey, artifacts.Timestamp(doc.CreatedAt))
	meta := artifacts.Metadata{Kind: PatchType, Retention: artifacts.RetentionAudit, CreatedAt: doc.CreatedAt}
	if err := c.store.Put(ctx, name, doc, meta); err != nil {
		return c.outcome(teamKey, StatusFailed, fmt.Sprintf("persist team patch %s: %v", name, err), "")
	}
	logging.Info(component, "team patch written",
		"team", teamKey, "artifact", name, "instructions", len(doc.Instructions))
	return c.outcome(teamKey, StatusComposed, "", name)
}

// ComposeAll builds patches for every listed team. No per-team failure
// aborts the batch; every team gets an outcome.
func (c *Composer) ComposeAll(ctx context.Context, snap *directory.Snapshot, teamKeys []string, templates []*policy.Role) []Outcome {
	if len(teamKeys) == 0 {
		teamKeys = snap.TeamKeys()
	}
	outcomes := make([]Outcome, 0, len(teamKeys))
	for _, key := range teamKeys {
		outcomes = append(outcomes, *c.Compose(ctx, snap, key, templates))
	}
	return outcomes
}

func (c *Composer) buildPatch(team *directory.Team, sources []string, roles []*policy.Role, values template.Values) Patch {
	analyzed := make([]string, 0, len(roles))
	for _, r := range roles {
		analyzed = append(analyzed, r.Key)
	}
	sort.Strings(analyzed)
	sort.Strings(sources)

	extracted := map[string][]string{}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
		extracted[key] = values.Sorted(key)
	}
	sort.Strings(keys)

	instructions := []Instruction{{Kind: KindAddCustomRoles, Roles: sources}}
	for _, key := range keys {
		kind := KindAddRoleAttribute
		if _, bound := team.RoleAttributes[key]; bound {
			kind = KindUpdateRoleAttribute
		}
		instructions = append(instructions, Instruction{Kind: kind, Key: key, Values: extracted[key]})
	}

	return Patch{
		TeamKey:         team.Key,
		TemplateSources: sources,
		Type:            PatchType,
		CreatedAt:       c.now().UTC(),
		RolesAnalyzed:   analyzed,
		ExtractedValues: extracted,
		Instructions:    instructions,
	}
}

func (c *Composer) outcome(teamKey, status, reason, artifact string) *Outcome {
	c.metrics.IncTeamPatchResult(status)
	switch status {
	case StatusSkipped:
		logging.Info(component, "team skipped", "team", teamKey, "reason", reason)
	case StatusFailed:
		logging.Error(component, "team patch failed", "team", teamKey, "reason", reason)
	}
	return &Outcome{TeamKey: teamKey, Status: status, Reason: reason, Artifact: artifact}
}

// Latest returns the name of the newest patch artifact for a team. Artifact
// names embed a UTC timestamp, so lexicographic order is chronological.
func Latest(ctx context.Context, store artifacts.Store, teamKey string) (string, error) {
	names, err := store.List(ctx, teamKey+"_")
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no patch artifacts for team %s", teamKey)
	}
	return names[len(names)-1], nil
}
