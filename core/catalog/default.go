package catalog

// Built-in catalog used when no document is supplied. Mirrors the common
// resource taxonomy of the managed platform; operators override it with
// CATALOG_PATH for accounts using extended resource types.
const defaultCatalogYAML = `
version: "1"
resources:
  "proj/*":
    - createProject
    - deleteProject
    - updateProjectName
    - updateTags
    - viewProject
  "proj/*:env/*":
    - createEnvironment
    - deleteEnvironment
    - updateApiKey
    - updateMobileKey
    - updateName
    - updateTags
  "proj/*:env/*:flag/*":
    - createFlag
    - deleteFlag
    - updateOn
    - updateRules
    - updateTargets
    - updateFallthrough
    - updateOffVariation
  "proj/*:env/*:segment/*":
    - createSegment
    - deleteSegment
    - updateIncluded
    - updateExcluded
    - updateRules
  "proj/*:metric/*":
    - createMetric
    - deleteMetric
    - updateName
    - updateDescription
  "member/*":
    - createMember
    - deleteMember
    - updateRole
    - updateCustomRole
  "team/*":
    - createTeam
    - deleteTeam
    - updateTeamName
    - updateTeamDescription
    - updateTeamMembers
    - updateTeamCustomRoles
  "role/*":
    - createRole
    - deleteRole
    - updateName
    - updateDescription
    - updatePolicy
    - updateMembers
  "application/*":
    - createApplication
    - deleteApplication
    - updateApplicationDescription
`

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse([]byte(defaultCatalogYAML))
}
