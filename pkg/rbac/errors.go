package rbac

import "errors"

var (
	// ErrUnauthorized is returned when the caller has no active membership in the
	// tenant or lacks the required capability
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidRole is returned for role strings outside the fixed enumeration
	ErrInvalidRole = errors.New("invalid role")

	// ErrEmptyCapabilitySet is returned when defaulting still yields no capabilities
	ErrEmptyCapabilitySet = errors.New("capability set is empty")

	// ErrDuplicateMembership is returned when a concurrent insert already created
	// the (tenant, principal) membership. Callers should re-fetch.
	ErrDuplicateMembership = errors.New("membership already exists")

	// ErrMembershipNotFound is returned when no membership exists for the pair
	ErrMembershipNotFound = errors.New("membership not found")

	// ErrLastOwner is returned when a change would leave a tenant without an active owner
	ErrLastOwner = errors.New("tenant must keep at least one active owner")
)
