package schema

import "testing"

func TestValidateSchemaRejectsEmpty(t *testing.T) {
	if err := ValidateSchema("x", nil, map[string]any{}); err == nil {
		t.Fatalf("expected error for empty schema")
	}
}

func TestValidateCatalogDocument(t *testing.T) {
	doc := map[string]any{
		"resources": map[string]any{
			"proj/*": []any{"createProject", "viewProject"},
		},
	}
	if err := ValidateCatalogDocument(doc); err != nil {
		t.Fatalf("valid catalog rejected: %v", err)
	}

	bad := map[string]any{"resources": []any{"proj/*"}}
	if err := ValidateCatalogDocument(bad); err == nil {
		t.Fatalf("expected error for malformed catalog")
	}
}

func TestValidateRoleDocument(t *testing.T) {
	doc := []byte(`{"key":"writer","policy":[{"effect":"allow","actions":["createProject"],"resources":["proj/*"]}]}`)
	if err := ValidateRoleDocument(doc); err != nil {
		t.Fatalf("valid role rejected: %v", err)
	}
	missingKey := []byte(`{"policy":[]}`)
	if err := ValidateRoleDocument(missingKey); err == nil {
		t.Fatalf("expected error for role without key")
	}
}

func TestValidateTeamPatchDocument(t *testing.T) {
	doc := []byte(`{
		"team_key": "platform",
		"type": "team-patch",
		"instructions": [{"kind": "addCustomRoles", "values": ["writer-template"]}]
	}`)
	if err := ValidateTeamPatchDocument(doc); err != nil {
		t.Fatalf("valid team patch rejected: %v", err)
	}
	noInstructions := []byte(`{"team_key":"platform","type":"team-patch","instructions":[]}`)
	if err := ValidateTeamPatchDocument(noInstructions); err == nil {
		t.Fatalf("expected error for empty instructions")
	}
}
