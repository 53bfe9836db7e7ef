package teams

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/polgov/polgov/core/directory"
)

// TeamFacts is the slice of team data the coverage and suggestion reports
// carry per team.
type TeamFacts struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	MemberCount  int    `json:"member_count"`
	ProjectCount int    `json:"project_count"`
}

// CoverageSummary counts how many teams carry at least one custom role.
type CoverageSummary struct {
	TotalTeams             int     `json:"total_teams"`
	TeamsWithRoles         int     `json:"teams_with_roles"`
	TeamsWithoutRoles      int     `json:"teams_without_roles"`
	TeamCoveragePercentage float64 `json:"team_coverage_percentage"`
}

// RoleUtilization counts how many roles are assigned to anything at all.
type RoleUtilization struct {
	TotalRoles                int     `json:"total_roles"`
	AssignedRoles             int     `json:"assigned_roles"`
	UnassignedRoles           int     `json:"unassigned_roles"`
	RoleUtilizationPercentage float64 `json:"role_utilization_percentage"`
}

// CoverageReport is the account-wide role coverage document.
type CoverageReport struct {
	Summary           CoverageSummary `json:"summary"`
	Roles             RoleUtilization `json:"roles"`
	TeamsWithoutRoles []TeamFacts     `json:"teams_without_roles"`
	TeamsWithRoles    []string        `json:"teams_with_roles"`
	UnassignedRoles   []string        `json:"unassigned_roles"`
	GeneratedAt       time.Time       `json:"generated_at"`
}

// BuildCoverageReport summarizes role coverage across the account: how many
// teams hold custom roles, how many roles are assigned anywhere, and which
// teams and roles fall through.
func BuildCoverageReport(snap *directory.Snapshot, now time.Time) *CoverageReport {
	withRoles := len(snap.TeamsWithRoles)
	total := len(snap.Teams)
	totalRoles := len(snap.Roles)
	assigned := len(snap.AssignedRoles)

	return &CoverageReport{
		Summary: CoverageSummary{
			TotalTeams:             total,
			TeamsWithRoles:         withRoles,
			TeamsWithoutRoles:      total - withRoles,
			TeamCoveragePercentage: percentage(withRoles, total),
		},
		Roles: RoleUtilization{
			TotalRoles:                totalRoles,
			AssignedRoles:             assigned,
			UnassignedRoles:           len(snap.UnassignedRoles),
			RoleUtilizationPercentage: percentage(assigned, totalRoles),
		},
		TeamsWithoutRoles: teamsWithoutRoles(snap),
		TeamsWithRoles:    append([]string{}, snap.TeamsWithRoles...),
		UnassignedRoles:   append([]string{}, snap.UnassignedRoles...),
		GeneratedAt:       now,
	}
}

// Recommendation is one actionable suggestion in a suggestion report.
type Recommendation struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Suggestions pairs teams that look like they should hold roles with the
// roles nobody holds.
type Suggestions struct {
	TeamsNeedingRoles  []TeamFacts      `json:"teams_needing_roles"`
	UnderutilizedRoles []string         `json:"underutilized_roles"`
	Recommendations    []Recommendation `json:"recommendations"`
}

// SuggestRoleAssignments flags teams with project access but no custom
// roles, lists the roles assigned to nothing, and recommends pairing the two
// when both exist.
func SuggestRoleAssignments(snap *directory.Snapshot) *Suggestions {
	s := &Suggestions{
		TeamsNeedingRoles:  []TeamFacts{},
		UnderutilizedRoles: append([]string{}, snap.UnassignedRoles...),
		Recommendations:    []Recommendation{},
	}
	for _, facts := range teamsWithoutRoles(snap) {
		if facts.ProjectCount > 0 {
			s.TeamsNeedingRoles = append(s.TeamsNeedingRoles, facts)
		}
	}
	if len(s.TeamsNeedingRoles) > 0 && len(s.UnderutilizedRoles) > 0 {
		s.Recommendations = append(s.Recommendations, Recommendation{
			Type: "assignment_opportunity",
			Message: fmt.Sprintf(
				"Consider assigning roles from %d unassigned roles to %d teams that have project access but no roles",
				len(s.UnderutilizedRoles), len(s.TeamsNeedingRoles)),
		})
	}
	return s
}

func teamsWithoutRoles(snap *directory.Snapshot) []TeamFacts {
	facts := []TeamFacts{}
	for i := range snap.Teams {
		team := &snap.Teams[i]
		if len(team.CustomRoles) > 0 {
			continue
		}
		name := team.Name
		if name == "" {
			name = team.Key
		}
		facts = append(facts, TeamFacts{
			Key:          team.Key,
			Name:         name,
			MemberCount:  len(team.Members),
			ProjectCount: len(team.Projects),
		})
	}
	sort.Slice(facts, func(i, j int) bool { return facts[i].Key < facts[j].Key })
	return facts
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*100*100) / 100
}
