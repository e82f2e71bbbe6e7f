package orgs

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/rbac"
)

// Tenant is an isolated business account
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Principal is an authenticated identity, independent of any tenant
type Principal struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// InvitationStatus represents the state of an invitation
type InvitationStatus string

const (
	StatusPending   InvitationStatus = "pending"
	StatusAccepted  InvitationStatus = "accepted"
	StatusDeclined  InvitationStatus = "declined"
	StatusExpired   InvitationStatus = "expired"
	StatusCancelled InvitationStatus = "cancelled"
)

// Terminal reports whether no transition can leave the status
func (s InvitationStatus) Terminal() bool {
	return s != StatusPending
}

// Contact is how an invitee is reached. At least one field is set.
type Contact struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Normalize trims both fields and lowercases the email
func (c Contact) Normalize() Contact {
	return Contact{
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
		Phone: strings.TrimSpace(c.Phone),
	}
}

// Empty reports whether neither email nor phone is present
func (c Contact) Empty() bool {
	n := c.Normalize()
	return n.Email == "" && n.Phone == ""
}

// Invitation is a pending proposal to create a membership
type Invitation struct {
	ID           uuid.UUID          `json:"id"`
	TenantID     uuid.UUID          `json:"tenant_id"`
	InviterID    uuid.UUID          `json:"inviter_id"`
	Role         rbac.Role          `json:"role"`
	Capabilities rbac.CapabilitySet `json:"capabilities"`
	Contact      Contact            `json:"contact"`
	Status       InvitationStatus   `json:"status"`
	TokenHash    string             `json:"-"`
	CreatedAt    time.Time          `json:"created_at"`
	ExpiresAt    time.Time          `json:"expires_at"`
	ResolvedAt   *time.Time         `json:"resolved_at,omitempty"`
	ResolvedBy   *uuid.UUID         `json:"resolved_by,omitempty"`
}

// ExpiredAt reports whether the invitation is past its expiry at now
func (i *Invitation) ExpiredAt(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// CreateInvitationRequest carries the inputs of Workflow.Create
type CreateInvitationRequest struct {
	TenantID     uuid.UUID
	InviterID    uuid.UUID
	Role         rbac.Role
	Capabilities rbac.CapabilitySet
	Contact      Contact
	TTL          time.Duration
}
