package schema

import "embed"

// Embedded schemas for the structured documents the engine consumes and
// produces. Catalog and role documents are validated on load; team patch
// documents are validated before submission to the remote API.
const (
	catalogSchemaFile   = "schemas/resource_actions.schema.json"
	roleSchemaFile      = "schemas/role.schema.json"
	teamPatchSchemaFile = "schemas/team_patch.schema.json"
)

//go:embed schemas/*.json
var documentSchemaFS embed.FS

// ValidateCatalogDocument validates a decoded resource-actions document.
func ValidateCatalogDocument(value any) error {
	return validateEmbedded("resource_actions", catalogSchemaFile, value)
}

// ValidateRoleDocument validates a decoded role document.
func ValidateRoleDocument(value any) error {
	return validateEmbedded("role", roleSchemaFile, value)
}

// ValidateTeamPatchDocument validates a decoded team patch document.
func ValidateTeamPatchDocument(value any) error {
	return validateEmbedded("team_patch", teamPatchSchemaFile, value)
}

func validateEmbedded(id, file string, value any) error {
	data, err := documentSchemaFS.ReadFile(file)
	if err != nil {
		return err
	}
	return ValidateSchema(id, data, value)
}
