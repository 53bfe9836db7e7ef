package teams

import (
	"context"
	"fmt"

	"github.com/polgov/polgov/core/infra/artifacts"
	"github.com/polgov/polgov/core/infra/logging"
	"github.com/polgov/polgov/core/infra/schema"
)

// TeamUpdater executes instructions against the account. The SDK client
// implements it; tests substitute a recorder.
type TeamUpdater interface {
	AssignRoles(ctx context.Context, teamKey string, roles []string) error
	AddRoleAttribute(ctx context.Context, teamKey, key string, values []string) error
	UpdateRoleAttribute(ctx context.Context, teamKey, key string, values []string) error
}

// Apply loads the newest patch artifact for the team, validates it and
// executes its instructions in order. The first failing instruction aborts:
// instructions are ordered so a partial application never leaves attribute
// bindings without their roles.
func Apply(ctx context.Context, store artifacts.Store, updater TeamUpdater, teamKey string) (*Patch, error) {
	name, err := Latest(ctx, store, teamKey)
	if err != nil {
		return nil, err
	}
	var patch Patch
	if _, err := store.Get(ctx, name, &patch); err != nil {
		return nil, err
	}
	if err := schema.ValidateTeamPatchDocument(patch); err != nil {
		return nil, fmt.Errorf("artifact %s: %w", name, err)
	}
	if patch.Type != PatchType {
		return nil, fmt.Errorf("artifact %s is %q, not a team patch", name, patch.Type)
	}
	if patch.TeamKey != teamKey {
		return nil, fmt.Errorf("artifact %s belongs to team %s", name, patch.TeamKey)
	}

	for i, inst := range patch.Instructions {
		if err := applyInstruction(ctx, updater, teamKey, inst); err != nil {
			return nil, fmt.Errorf("instruction %d (%s): %w", i, inst.Kind, err)
		}
	}
	logging.Info(component, "team patch applied",
		"team", teamKey, "artifact", name, "instructions", len(patch.Instructions))
	return &patch, nil
}

func applyInstruction(ctx context.Context, updater TeamUpdater, teamKey string, inst Instruction) error {
	switch inst.Kind {
	case KindAddCustomRoles:
		return updater.AssignRoles(ctx, teamKey, inst.Roles)
	case KindAddRoleAttribute:
		return updater.AddRoleAttribute(ctx, teamKey, inst.Key, inst.Values)
	case KindUpdateRoleAttribute:
		return updater.UpdateRoleAttribute(ctx, teamKey, inst.Key, inst.Values)
	default:
		return fmt.Errorf("unknown instruction kind %q", inst.Kind)
	}
}
