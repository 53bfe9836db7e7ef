// Package directory models the account directory: teams, members and the
// custom roles assigned to them. A Snapshot is one consistent fetch of the
// directory, enriched with assignment facts that the validator and the team
// patch composer read.
package directory

import (
	"sort"
	"time"

	"github.com/polgov/polgov/core/infra/logging"
	"github.com/polgov/polgov/core/policy"
)

const component = "directory"

// Team is one team of the account.
type Team struct {
	Key         string   `json:"key"`
	Name        string   `json:"name,omitempty"`
	Members     []string `json:"members,omitempty"`
	CustomRoles []string `json:"custom_roles,omitempty"`
	// Projects the team has write access to; drives the coverage and
	// suggestion reports.
	Projects []string `json:"projects,omitempty"`
	// RoleAttributes are the team's current attribute bindings, keyed by
	// attribute name.
	RoleAttributes map[string][]string `json:"role_attributes,omitempty"`
}

// Member is one account member. Role is the built-in role; CustomRoles are
// direct assignments outside of teams.
type Member struct {
	ID          string   `json:"id"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role,omitempty"`
	CustomRoles []string `json:"custom_roles,omitempty"`
	Teams       []string `json:"teams,omitempty"`
}

// Snapshot is one consistent fetch of the directory.
type Snapshot struct {
	Teams     []Team         `json:"teams"`
	Roles     []*policy.Role `json:"roles"`
	Members   []Member       `json:"members"`
	FetchedAt time.Time      `json:"fetch_date"`

	AssignedRoles     []string `json:"assigned_roles,omitempty"`
	UnassignedRoles   []string `json:"unassigned_roles,omitempty"`
	TeamsWithRoles    []string `json:"teams_with_roles,omitempty"`
	TeamsWithoutRoles []string `json:"teams_without_roles,omitempty"`
}

// Age returns how long ago the snapshot was fetched.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// Expired reports whether the snapshot is older than ttl.
func (s *Snapshot) Expired(now time.Time, ttl time.Duration) bool {
	return s.FetchedAt.IsZero() || s.Age(now) > ttl
}

// Team returns the team with the given key.
func (s *Snapshot) Team(key string) (*Team, bool) {
	for i := range s.Teams {
		if s.Teams[i].Key == key {
			return &s.Teams[i], true
		}
	}
	return nil, false
}

// Role returns the role with the given key.
func (s *Snapshot) Role(key string) (*policy.Role, bool) {
	for _, r := range s.Roles {
		if r.Key == key {
			return r, true
		}
	}
	return nil, false
}

// RolesForTeam returns the role objects bound to a team. Keys without a role
// object in the snapshot are returned separately so callers can report them.
func (s *Snapshot) RolesForTeam(key string) (roles []*policy.Role, missing []string) {
	team, ok := s.Team(key)
	if !ok {
		return nil, nil
	}
	for _, roleKey := range team.CustomRoles {
		if role, ok := s.Role(roleKey); ok {
			roles = append(roles, role)
		} else {
			missing = append(missing, roleKey)
		}
	}
	return roles, missing
}

// Enrich computes assignment facts on every role: which teams carry it,
// which members hold it directly, and the derived counts. It also fills the
// snapshot's assigned/unassigned role key lists and the teams-with-roles
// split. Enrich is idempotent.
func (s *Snapshot) Enrich() {
	teamsByRole := map[string][]string{}
	for _, team := range s.Teams {
		for _, roleKey := range team.CustomRoles {
			teamsByRole[roleKey] = append(teamsByRole[roleKey], team.Key)
		}
	}
	membersByRole := map[string][]string{}
	for _, member := range s.Members {
		id := member.Email
		if id == "" {
			id = member.ID
		}
		for _, roleKey := range member.CustomRoles {
			membersByRole[roleKey] = append(membersByRole[roleKey], id)
		}
	}

	s.AssignedRoles = s.AssignedRoles[:0]
	s.UnassignedRoles = s.UnassignedRoles[:0]
	for _, role := range s.Roles {
		role.Teams = sortedUnique(teamsByRole[role.Key])
		role.Members = sortedUnique(membersByRole[role.Key])
		role.TotalTeams = len(role.Teams)
		role.TotalMembers = len(role.Members)
		role.TotalAssigned = role.TotalTeams + role.TotalMembers
		role.IsAssigned = role.TotalAssigned > 0
		if role.IsAssigned {
			s.AssignedRoles = append(s.AssignedRoles, role.Key)
		} else {
			s.UnassignedRoles = append(s.UnassignedRoles, role.Key)
		}
	}
	sort.Strings(s.AssignedRoles)
	sort.Strings(s.UnassignedRoles)

	s.TeamsWithRoles = s.TeamsWithRoles[:0]
	s.TeamsWithoutRoles = s.TeamsWithoutRoles[:0]
	for _, team := range s.Teams {
		if len(team.CustomRoles) > 0 {
			s.TeamsWithRoles = append(s.TeamsWithRoles, team.Key)
		} else {
			s.TeamsWithoutRoles = append(s.TeamsWithoutRoles, team.Key)
		}
	}
	sort.Strings(s.TeamsWithRoles)
	sort.Strings(s.TeamsWithoutRoles)

	logging.Debug(component, "snapshot enriched",
		"roles", len(s.Roles), "assigned", len(s.AssignedRoles), "unassigned", len(s.UnassignedRoles),
		"teams_with_roles", len(s.TeamsWithRoles))
}

// TeamKeys returns every team key in sorted order.
func (s *Snapshot) TeamKeys() []string {
	keys := make([]string, 0, len(s.Teams))
	for _, t := range s.Teams {
		keys = append(keys, t.Key)
	}
	sort.Strings(keys)
	return keys
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
