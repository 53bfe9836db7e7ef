package policy

import "testing"

func TestParseRoleValid(t *testing.T) {
	data := []byte(`{
		"key": "writer",
		"name": "Writer",
		"policy": [
			{"effect": "allow", "actions": ["createProject"], "resources": ["proj/*"]}
		]
	}`)
	role, err := ParseRole(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if role.Key != "writer" || len(role.Policy) != 1 {
		t.Fatalf("unexpected role: %+v", role)
	}
}

func TestParseRoleRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"missing key":       `{"policy":[]}`,
		"bad effect":        `{"key":"r","policy":[{"effect":"maybe","actions":["a"],"resources":["proj/*"]}]}`,
		"both action pairs": `{"key":"r","policy":[{"effect":"allow","actions":["a"],"notActions":["b"],"resources":["proj/*"]}]}`,
		"no resources":      `{"key":"r","policy":[{"effect":"allow","actions":["a"]}]}`,
		"not json":          `{`,
	}
	for name, doc := range cases {
		if _, err := ParseRole([]byte(doc)); err == nil {
			t.Fatalf("%s: expected parse error", name)
		}
	}
}

func TestStatementListAccessors(t *testing.T) {
	s := Statement{Effect: EffectDeny, NotActions: []string{"deleteProject"}, NotResources: []string{"proj/a"}}
	if got := s.ActionList(); len(got) != 1 || got[0] != "deleteProject" {
		t.Fatalf("unexpected action list: %v", got)
	}
	if got := s.ResourceList(); len(got) != 1 || got[0] != "proj/a" {
		t.Fatalf("unexpected resource list: %v", got)
	}
	s.SetActionList([]string{"viewProject"})
	if len(s.NotActions) != 1 || s.NotActions[0] != "viewProject" {
		t.Fatalf("SetActionList must write the populated side: %+v", s)
	}
	if s.Actions != nil {
		t.Fatalf("actions side must stay empty")
	}
}

func TestRoleCloneIsDeep(t *testing.T) {
	role := &Role{Key: "r", Policy: []Statement{{Effect: EffectAllow, Actions: []string{"a"}, Resources: []string{"proj/*"}}}}
	clone := role.Clone()
	clone.Policy[0].Actions[0] = "mutated"
	if role.Policy[0].Actions[0] != "a" {
		t.Fatalf("clone must not share action slices")
	}
}
