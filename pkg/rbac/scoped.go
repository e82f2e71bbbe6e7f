package rbac

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/contextkeys"
)

// Access describes one guarded operation on tenant-owned data
type Access struct {
	Principal  uuid.UUID
	Tenant     uuid.UUID
	Capability Capability
}

// AccessFromContext builds an Access for the authenticated principal of ctx
func AccessFromContext(ctx context.Context, tenant uuid.UUID, capability Capability) (Access, error) {
	principal, ok := contextkeys.GetPrincipalID(ctx)
	if !ok {
		return Access{}, fmt.Errorf("%w: unauthenticated", ErrUnauthorized)
	}
	return Access{Principal: principal, Tenant: tenant, Capability: capability}, nil
}

// Scoped is the data access chokepoint. fn only runs once the guard admitted
// the access and receives the caller's active membership. Every resource
// service reads and writes tenant-owned rows through it.
func Scoped[T any](ctx context.Context, g *Guard, a Access, fn func(ctx context.Context, m *Membership) (T, error)) (T, error) {
	var zero T
	if a.Tenant == uuid.Nil {
		return zero, fmt.Errorf("%w: missing tenant", ErrUnauthorized)
	}

	m, err := g.Require(ctx, a.Principal, a.Tenant, a.Capability)
	if err != nil {
		return zero, err
	}
	return fn(ctx, m)
}

// ScopedExec is Scoped for operations without a result
func ScopedExec(ctx context.Context, g *Guard, a Access, fn func(ctx context.Context, m *Membership) error) error {
	_, err := Scoped(ctx, g, a, func(ctx context.Context, m *Membership) (struct{}, error) {
		return struct{}{}, fn(ctx, m)
	})
	return err
}
