package policy

import (
	"encoding/json"
	"fmt"

	"github.com/polgov/polgov/core/infra/schema"
)

// Statement effects.
const (
	EffectAllow = "allow"
	EffectDeny  = "deny"
)

// Statement is one entry of a role policy. Exactly one of Actions/NotActions
// and exactly one of Resources/NotResources is populated; an absent field
// means "not specified", never an empty allow.
type Statement struct {
	Effect       string   `json:"effect"`
	Actions      []string `json:"actions,omitempty"`
	NotActions   []string `json:"notActions,omitempty"`
	Resources    []string `json:"resources,omitempty"`
	NotResources []string `json:"notResources,omitempty"`
}

// ActionList returns whichever of actions/notActions is populated.
func (s *Statement) ActionList() []string {
	if len(s.Actions) > 0 {
		return s.Actions
	}
	return s.NotActions
}

// ResourceList returns whichever of resources/notResources is populated.
func (s *Statement) ResourceList() []string {
	if len(s.Resources) > 0 {
		return s.Resources
	}
	return s.NotResources
}

// SetActionList replaces whichever of actions/notActions is populated.
func (s *Statement) SetActionList(actions []string) {
	if len(s.Actions) > 0 {
		s.Actions = actions
		return
	}
	s.NotActions = actions
}

// Validate checks the exactly-one-of pairs and the effect value.
func (s *Statement) Validate() error {
	if s.Effect != EffectAllow && s.Effect != EffectDeny {
		return fmt.Errorf("statement effect must be allow or deny, got %q", s.Effect)
	}
	if len(s.Actions) > 0 && len(s.NotActions) > 0 {
		return fmt.Errorf("statement has both actions and notActions")
	}
	if len(s.Actions) == 0 && len(s.NotActions) == 0 {
		return fmt.Errorf("statement has neither actions nor notActions")
	}
	if len(s.Resources) > 0 && len(s.NotResources) > 0 {
		return fmt.Errorf("statement has both resources and notResources")
	}
	if len(s.Resources) == 0 && len(s.NotResources) == 0 {
		return fmt.Errorf("statement has neither resources nor notResources")
	}
	return nil
}

// Role is a custom role document. The assignment facts are computed by the
// directory layer; the engine reads them and never mutates them.
type Role struct {
	Key         string      `json:"key"`
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	Policy      []Statement `json:"policy"`

	Teams         []string `json:"teams,omitempty"`
	Members       []string `json:"members,omitempty"`
	TotalTeams    int      `json:"total_teams,omitempty"`
	TotalMembers  int      `json:"total_members,omitempty"`
	TotalAssigned int      `json:"total_assigned,omitempty"`
	IsAssigned    bool     `json:"is_assigned,omitempty"`
}

// ParseRole decodes and validates a role document, failing fast on
// malformed input rather than deep inside the pattern logic.
func ParseRole(data []byte) (*Role, error) {
	if err := schema.ValidateRoleDocument(json.RawMessage(data)); err != nil {
		return nil, fmt.Errorf("role document: %w", err)
	}
	var role Role
	if err := json.Unmarshal(data, &role); err != nil {
		return nil, fmt.Errorf("decode role document: %w", err)
	}
	if err := role.Validate(); err != nil {
		return nil, fmt.Errorf("role %s: %w", role.Key, err)
	}
	return &role, nil
}

// Validate checks the role key and every statement.
func (r *Role) Validate() error {
	if r.Key == "" {
		return fmt.Errorf("role key required")
	}
	for i := range r.Policy {
		if err := r.Policy[i].Validate(); err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}
	return nil
}

// Clone returns a deep copy of the role.
func (r *Role) Clone() *Role {
	out := *r
	out.Policy = make([]Statement, len(r.Policy))
	for i, s := range r.Policy {
		cs := s
		cs.Actions = append([]string(nil), s.Actions...)
		cs.NotActions = append([]string(nil), s.NotActions...)
		cs.Resources = append([]string(nil), s.Resources...)
		cs.NotResources = append([]string(nil), s.NotResources...)
		out.Policy[i] = cs
	}
	out.Teams = append([]string(nil), r.Teams...)
	out.Members = append([]string(nil), r.Members...)
	return &out
}
