package rbac

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Role represents a membership role within a tenant
type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleEmployee   Role = "employee"
	RoleContractor Role = "contractor"
	RoleViewer     Role = "viewer"
)

// Roles returns the fixed role enumeration, broadest first
func Roles() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleManager, RoleEmployee, RoleContractor, RoleViewer}
}

// Valid reports whether the role is part of the enumeration
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleManager, RoleEmployee, RoleContractor, RoleViewer:
		return true
	}
	return false
}

// Capability names one permitted operation class
type Capability string

// Wildcard grants every capability
const Wildcard Capability = "*"

const (
	CapViewContacts      Capability = "view_contacts"
	CapCreateContacts    Capability = "create_contacts"
	CapEditContacts      Capability = "edit_contacts"
	CapDeleteContacts    Capability = "delete_contacts"
	CapViewJobs          Capability = "view_jobs"
	CapCreateJobs        Capability = "create_jobs"
	CapEditJobs          Capability = "edit_jobs"
	CapDeleteJobs        Capability = "delete_jobs"
	CapAssignJobs        Capability = "assign_jobs"
	CapViewActivities    Capability = "view_activities"
	CapCreateActivities  Capability = "create_activities"
	CapManageDocuments   Capability = "manage_documents"
	CapManageWebsite     Capability = "manage_website"
	CapManageProducts    Capability = "manage_products"
	CapViewReports       Capability = "view_reports"
	CapInviteTeamMembers Capability = "invite_team_members"
	CapManageTeam        Capability = "manage_team"
	CapManageSettings    Capability = "manage_settings"
	CapManageBilling     Capability = "manage_billing"
)

// CapabilitySet is a normalized (sorted, de-duplicated) set of capability tokens.
// A set containing the wildcard is collapsed to exactly {"*"}.
type CapabilitySet []Capability

// NewCapabilitySet builds a normalized set from the given tokens
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	seen := make(map[Capability]struct{}, len(caps))
	out := make(CapabilitySet, 0, len(caps))
	for _, c := range caps {
		if c == "" {
			continue
		}
		if c == Wildcard {
			return CapabilitySet{Wildcard}
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsWildcard reports whether the set grants everything
func (s CapabilitySet) IsWildcard() bool {
	return len(s) == 1 && s[0] == Wildcard
}

// Grants reports whether the set contains the wildcard or the given capability
func (s CapabilitySet) Grants(c Capability) bool {
	for _, have := range s {
		if have == Wildcard || have == c {
			return true
		}
	}
	return false
}

// Covers reports whether every capability in other is granted by s
func (s CapabilitySet) Covers(other CapabilitySet) bool {
	if s.IsWildcard() {
		return true
	}
	if other.IsWildcard() {
		return false
	}
	for _, c := range other {
		if !s.Grants(c) {
			return false
		}
	}
	return true
}

// Equal reports whether both sets hold the same tokens after normalization
func (s CapabilitySet) Equal(other CapabilitySet) bool {
	a, b := NewCapabilitySet(s...), NewCapabilitySet(other...)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Strings returns the tokens as plain strings
func (s CapabilitySet) Strings() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = string(c)
	}
	return out
}

// Value stores the set as a JSON array
func (s CapabilitySet) Value() (driver.Value, error) {
	data, err := json.Marshal(NewCapabilitySet(s...))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan reads a JSON array column
func (s *CapabilitySet) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = CapabilitySet{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported capability set column type %T", src)
	}

	var caps []Capability
	if err := json.Unmarshal(raw, &caps); err != nil {
		return fmt.Errorf("failed to unmarshal capabilities: %w", err)
	}
	*s = NewCapabilitySet(caps...)
	return nil
}

// Membership binds a principal to a tenant with a role and capability set
type Membership struct {
	ID           uuid.UUID     `json:"id"`
	TenantID     uuid.UUID     `json:"tenant_id"`
	PrincipalID  uuid.UUID     `json:"principal_id"`
	Role         Role          `json:"role"`
	Capabilities CapabilitySet `json:"capabilities"`
	Active       bool          `json:"active"`
	InvitedBy    *uuid.UUID    `json:"invited_by,omitempty"`
	JoinedAt     time.Time     `json:"joined_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed    bool       `json:"allowed"`
	Reason     string     `json:"reason,omitempty"`
	Role       Role       `json:"role,omitempty"`
	Capability Capability `json:"capability,omitempty"`
	CheckedAt  time.Time  `json:"checked_at"`
}

// Deny reasons
const (
	ReasonNoMembership      = "no membership"
	ReasonInactive          = "membership inactive"
	ReasonMissingCapability = "capability not granted"
	ReasonWildcard          = "wildcard"
	ReasonGranted           = "capability granted"
	ReasonSelf              = "self"
	ReasonSharedTenant      = "shared active tenant"
	ReasonNoSharedTenant    = "no shared active tenant"
)
