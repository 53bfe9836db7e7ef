package teams

import (
	"fmt"
	"sort"

	"github.com/polgov/polgov/core/directory"
	"github.com/polgov/polgov/core/policy"
	"github.com/polgov/polgov/core/template"
)

// TeamCoverage is what one team's roles yield under the template patterns.
type TeamCoverage struct {
	Roles  []string            `json:"roles"`
	Values map[string][]string `json:"values,omitempty"`
}

// Coverage summarizes template coverage across the account.
type Coverage struct {
	Teams             map[string]TeamCoverage `json:"teams"`
	TeamsWithoutRoles []string                `json:"teams_without_roles,omitempty"`
}

// AnalyzeCoverage extracts attribute values per team without writing any
// artifacts. It backs the read-only analyze/coverage commands.
func AnalyzeCoverage(snap *directory.Snapshot, templates []*policy.Role) (*Coverage, error) {
	patterns := template.Patterns{}
	for _, tmpl := range templates {
		p, err := template.Discover(tmpl)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", tmpl.Key, err)
		}
		patterns.Merge(p)
	}

	cov := &Coverage{Teams: map[string]TeamCoverage{}}
	for _, key := range snap.TeamKeys() {
		roles, _ := snap.RolesForTeam(key)
		if len(roles) == 0 {
			cov.TeamsWithoutRoles = append(cov.TeamsWithoutRoles, key)
			continue
		}
		values, err := template.ExtractAll(roles, patterns)
		if err != nil {
			return nil, err
		}
		tc := TeamCoverage{Values: map[string][]string{}}
		for _, r := range roles {
			tc.Roles = append(tc.Roles, r.Key)
		}
		sort.Strings(tc.Roles)
		for vk := range values {
			tc.Values[vk] = values.Sorted(vk)
		}
		cov.Teams[key] = tc
	}
	sort.Strings(cov.TeamsWithoutRoles)
	return cov, nil
}

// RoleDistribution counts, per role key, how many teams carry the role.
func RoleDistribution(snap *directory.Snapshot) map[string]int {
	dist := map[string]int{}
	for _, team := range snap.Teams {
		seen := map[string]bool{}
		for _, roleKey := range team.CustomRoles {
			if seen[roleKey] {
				continue
			}
			seen[roleKey] = true
			dist[roleKey]++
		}
	}
	return dist
}
