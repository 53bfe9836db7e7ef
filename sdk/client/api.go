package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/polgov/polgov/core/directory"
	"github.com/polgov/polgov/core/infra/logging"
	"github.com/polgov/polgov/core/patch"
	"github.com/polgov/polgov/core/policy"
)

const component = "client"

// ListRoles fetches every custom role, following pagination.
func (c *Client) ListRoles(ctx context.Context) ([]*policy.Role, error) {
	var roles []*policy.Role
	err := c.listPages(ctx, "/roles", func(item json.RawMessage) error {
		role, err := policy.ParseRole(item)
		if err != nil {
			return err
		}
		roles = append(roles, role)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	logging.Debug(component, "roles fetched", "count", len(roles))
	return roles, nil
}

// GetRole fetches one role by key.
func (c *Client) GetRole(ctx context.Context, key string) (*policy.Role, error) {
	if key == "" {
		return nil, fmt.Errorf("role key required")
	}
	var raw json.RawMessage
	if err := c.get(ctx, "/roles/"+url.PathEscape(key), &raw); err != nil {
		return nil, fmt.Errorf("get role %s: %w", key, err)
	}
	return policy.ParseRole(raw)
}

// UpdateRolePolicy applies patch operations to a role's policy on the
// server. The operations address the policy array, so they are rebased under
// /policy before submission.
func (c *Client) UpdateRolePolicy(ctx context.Context, key string, ops []patch.Op) error {
	if key == "" {
		return fmt.Errorf("role key required")
	}
	if len(ops) == 0 {
		return fmt.Errorf("no operations to apply")
	}
	rebased := make([]patch.Op, len(ops))
	for i, op := range ops {
		op.Path = "/policy" + op.Path
		rebased[i] = op
	}
	if err := c.mutate(ctx, http.MethodPatch, "/roles/"+url.PathEscape(key), rebased, nil); err != nil {
		return fmt.Errorf("update role %s: %w", key, err)
	}
	logging.Info(component, "role policy updated", "role", key, "ops", len(ops))
	return nil
}

// CreateRole creates a custom role.
func (c *Client) CreateRole(ctx context.Context, role *policy.Role) error {
	if err := role.Validate(); err != nil {
		return err
	}
	if err := c.mutate(ctx, http.MethodPost, "/roles", role, nil); err != nil {
		return fmt.Errorf("create role %s: %w", role.Key, err)
	}
	return nil
}

// ListTeams fetches every team, following pagination.
func (c *Client) ListTeams(ctx context.Context) ([]directory.Team, error) {
	var teams []directory.Team
	err := c.listPages(ctx, "/teams", func(item json.RawMessage) error {
		var team directory.Team
		if err := json.Unmarshal(item, &team); err != nil {
			return fmt.Errorf("decode team: %w", err)
		}
		teams = append(teams, team)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return teams, nil
}

// GetTeam fetches one team by key.
func (c *Client) GetTeam(ctx context.Context, key string) (*directory.Team, error) {
	if key == "" {
		return nil, fmt.Errorf("team key required")
	}
	var team directory.Team
	if err := c.get(ctx, "/teams/"+url.PathEscape(key), &team); err != nil {
		return nil, fmt.Errorf("get team %s: %w", key, err)
	}
	return &team, nil
}

// ListTeamRoles fetches the custom roles bound to a team.
func (c *Client) ListTeamRoles(ctx context.Context, key string) ([]*policy.Role, error) {
	var roles []*policy.Role
	err := c.listPages(ctx, "/teams/"+url.PathEscape(key)+"/roles", func(item json.RawMessage) error {
		role, err := policy.ParseRole(item)
		if err != nil {
			return err
		}
		roles = append(roles, role)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list team roles %s: %w", key, err)
	}
	return roles, nil
}

// ListMembers fetches every account member, following pagination.
func (c *Client) ListMembers(ctx context.Context) ([]directory.Member, error) {
	var members []directory.Member
	err := c.listPages(ctx, "/members", func(item json.RawMessage) error {
		var m directory.Member
		if err := json.Unmarshal(item, &m); err != nil {
			return fmt.Errorf("decode member: %w", err)
		}
		members = append(members, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// FetchSnapshot pulls teams, roles and members in one pass and enriches the
// result with assignment facts.
func (c *Client) FetchSnapshot(ctx context.Context) (*directory.Snapshot, error) {
	teams, err := c.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := c.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	members, err := c.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	snap := &directory.Snapshot{
		Teams:     teams,
		Roles:     roles,
		Members:   members,
		FetchedAt: time.Now().UTC(),
	}
	snap.Enrich()
	logging.Info(component, "directory snapshot fetched",
		"teams", len(teams), "roles", len(roles), "members", len(members))
	return snap, nil
}

// semanticInstruction is the server-side team mutation shape.
type semanticInstruction struct {
	Kind   string   `json:"kind"`
	Values []string `json:"values,omitempty"`
	Key    string   `json:"key,omitempty"`
}

func (c *Client) patchTeam(ctx context.Context, teamKey string, inst semanticInstruction) error {
	body := struct {
		Instructions []semanticInstruction `json:"instructions"`
	}{Instructions: []semanticInstruction{inst}}
	if err := c.mutate(ctx, http.MethodPatch, "/teams/"+url.PathEscape(teamKey), body, nil); err != nil {
		return fmt.Errorf("patch team %s: %w", teamKey, err)
	}
	return nil
}

// AssignRoles binds custom roles to a team.
func (c *Client) AssignRoles(ctx context.Context, teamKey string, roles []string) error {
	return c.patchTeam(ctx, teamKey, semanticInstruction{Kind: "addCustomRoles", Values: roles})
}

// AddRoleAttribute creates an attribute binding on a team.
func (c *Client) AddRoleAttribute(ctx context.Context, teamKey, key string, values []string) error {
	return c.patchTeam(ctx, teamKey, semanticInstruction{Kind: "addRoleAttribute", Key: key, Values: values})
}

// UpdateRoleAttribute replaces an attribute binding on a team.
func (c *Client) UpdateRoleAttribute(ctx context.Context, teamKey, key string, values []string) error {
	return c.patchTeam(ctx, teamKey, semanticInstruction{Kind: "updateRoleAttribute", Key: key, Values: values})
}
