// Package linter validates role policies against the action catalog and
// reports the statements that carry unknown or illegal action verbs.
package linter

import (
	"fmt"

	"github.com/polgov/polgov/core/catalog"
	"github.com/polgov/polgov/core/infra/logging"
	"github.com/polgov/polgov/core/infra/metrics"
	"github.com/polgov/polgov/core/policy"
)

const component = "linter"

// ReportArtifact is the artifact name the validation report is stored under.
const ReportArtifact = "invalid-actions-report.json"

// InvalidStatement is one flagged statement: the statement's resource
// specifiers plus the subset of its actions that failed validation. For a
// statement whose resource type is unknown to the catalog the full action
// list is reported.
type InvalidStatement struct {
	Resources []string `json:"resources"`
	Actions   []string `json:"actions"`
	Effect    string   `json:"effect"`
}

// Report maps role keys to their invalid statements. Roles whose policies
// validate cleanly are absent.
type Report map[string][]InvalidStatement

// Validator checks role policies against a catalog.
type Validator struct {
	cat     *catalog.Catalog
	metrics metrics.Metrics
}

// New returns a Validator over the given catalog.
func New(cat *catalog.Catalog) *Validator {
	return &Validator{cat: cat, metrics: metrics.Noop{}}
}

// WithMetrics wires a metrics recorder; nil keeps the no-op recorder.
func (v *Validator) WithMetrics(m metrics.Metrics) *Validator {
	if m != nil {
		v.metrics = m
	}
	return v
}

// Validate walks every statement of every role. Classification looks at a
// statement's first resource specifier only: policies that mix resource
// types in one statement are not a supported shape and the remainder is
// ignored deliberately.
func (v *Validator) Validate(roles []*policy.Role) (Report, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("no roles to validate")
	}
	report := Report{}
	for _, role := range roles {
		v.metrics.IncRolesValidated()
		invalid := v.validateRole(role)
		if len(invalid) > 0 {
			report[role.Key] = invalid
		}
	}
	logging.Info(component, "validation complete",
		"roles", len(roles), "roles_with_findings", len(report))
	return report, nil
}

func (v *Validator) validateRole(role *policy.Role) []InvalidStatement {
	var findings []InvalidStatement
	for i := range role.Policy {
		stmt := &role.Policy[i]
		resources := stmt.ResourceList()
		if len(resources) == 0 {
			continue
		}
		entry, ok := v.cat.Match(resources[0])
		if !ok {
			// Unknown resource type: no verb can be checked, so the
			// whole statement is flagged as-is.
			logging.Debug(component, "unknown resource type",
				"role", role.Key, "resource", resources[0])
			findings = append(findings, v.finding(stmt, stmt.ActionList()))
			continue
		}
		bad := invalidActions(stmt.ActionList(), entry)
		if len(bad) > 0 {
			findings = append(findings, v.finding(stmt, bad))
		}
	}
	return findings
}

func (v *Validator) finding(stmt *policy.Statement, actions []string) InvalidStatement {
	v.metrics.IncInvalidStatements(stmt.Effect)
	return InvalidStatement{
		Resources: append([]string(nil), stmt.ResourceList()...),
		Actions:   append([]string(nil), actions...),
		Effect:    stmt.Effect,
	}
}

// invalidActions returns the statement's actions the entry does not allow,
// deduplicated, in first-appearance order.
func invalidActions(actions []string, entry *catalog.Entry) []string {
	var bad []string
	seen := map[string]bool{}
	for _, action := range actions {
		if entry.Allows(action) || seen[action] {
			continue
		}
		seen[action] = true
		bad = append(bad, action)
	}
	return bad
}
