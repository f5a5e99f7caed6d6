package domain

import (
	"context"

	"github.com/google/uuid"
)

type Role string

const (
	RoleBuyer       Role = "BUYER"
	RoleSupplier    Role = "SUPPLIER"
	RoleSiteManager Role = "SITE_MANAGER"
	RoleAdmin       Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSupplier, RoleSiteManager, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller of a core operation.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

func (a Actor) Is(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// IsStaff reports whether the actor operates sites rather than renting from them.
func (a Actor) IsStaff() bool {
	return a.Is(RoleSiteManager, RoleAdmin)
}

// Require fails with a PermissionError unless the actor holds one of roles.
func (a Actor) Require(action string, roles ...Role) error {
	if a.Is(roles...) {
		return nil
	}
	return PermissionError("role %q may not %s", a.Role, action)
}

// SystemActor is used by scheduled jobs and provider callbacks.
var SystemActor = Actor{Role: RoleAdmin}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
