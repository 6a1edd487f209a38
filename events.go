package shield

import (
	"context"

	"github.com/google/uuid"
)

// MutationKind names a write to roles, privileges or their links.
type MutationKind string

const (
	MutationRoleCreated       MutationKind = "role.created"
	MutationRoleUpdated       MutationKind = "role.updated"
	MutationRoleDeleted       MutationKind = "role.deleted"
	MutationRolesPurged       MutationKind = "role.purged"
	MutationPrivilegeCreated  MutationKind = "privilege.created"
	MutationPrivilegeUpdated  MutationKind = "privilege.updated"
	MutationPrivilegeDeleted  MutationKind = "privilege.deleted"
	MutationPrivilegesPurged  MutationKind = "privilege.purged"
	MutationRoleAssigned      MutationKind = "user_role.created"
	MutationRoleRevoked       MutationKind = "user_role.deleted"
	MutationPrivilegeAttached MutationKind = "privilege_role.created"
	MutationPrivilegeDetached MutationKind = "privilege_role.deleted"
	MutationUserDeleted       MutationKind = "user.deleted"
)

// MutationEvent describes a committed (or about to be committed) change and
// the users whose authorization it may alter. UserIDs is computed inside the
// mutating transaction, so it still reflects links that the change removes.
type MutationEvent struct {
	Kind        MutationKind
	RoleID      uuid.UUID
	PrivilegeID uuid.UUID
	UserIDs     []uuid.UUID
	// All marks changes whose reach cannot be listed, e.g. purges.
	All bool
}

// MutationHandler consumes mutation events synchronously.
type MutationHandler interface {
	Handle(ctx context.Context, event MutationEvent) error
}

// MutationHandlerFunc adapts a function to MutationHandler.
type MutationHandlerFunc func(ctx context.Context, event MutationEvent) error

// Handle implements MutationHandler.
func (f MutationHandlerFunc) Handle(ctx context.Context, event MutationEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
