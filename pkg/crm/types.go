package crm

import (
	"time"

	"github.com/google/uuid"
)

// RelationshipStatus is where a contact stands with the business
type RelationshipStatus string

const (
	StatusProspect      RelationshipStatus = "prospect"
	StatusQualifiedLead RelationshipStatus = "qualified_lead"
	StatusCustomer      RelationshipStatus = "customer"
	StatusInactive      RelationshipStatus = "inactive"
)

// Valid reports whether s is a known relationship status
func (s RelationshipStatus) Valid() bool {
	switch s {
	case StatusProspect, StatusQualifiedLead, StatusCustomer, StatusInactive:
		return true
	}
	return false
}

// Contact is a customer or lead of a tenant
type Contact struct {
	ID                 uuid.UUID          `json:"id"`
	TenantID           uuid.UUID          `json:"tenant_id"`
	Name               string             `json:"name"`
	Email              string             `json:"email,omitempty"`
	Phone              string             `json:"phone,omitempty"`
	RelationshipStatus RelationshipStatus `json:"relationship_status"`
	CreatedBy          uuid.UUID          `json:"created_by"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// ContactInput carries the fields of a new contact
type ContactInput struct {
	Name               string             `json:"name"`
	Email              string             `json:"email,omitempty"`
	Phone              string             `json:"phone,omitempty"`
	RelationshipStatus RelationshipStatus `json:"relationship_status,omitempty"`
}

// ContactPatch is a partial update; nil fields are left alone. Reason is
// stored with the history record of a status change.
type ContactPatch struct {
	Name               *string             `json:"name,omitempty"`
	Email              *string             `json:"email,omitempty"`
	Phone              *string             `json:"phone,omitempty"`
	RelationshipStatus *RelationshipStatus `json:"relationship_status,omitempty"`
	Reason             string              `json:"reason,omitempty"`
}

// JobStatus is the progress of a job
type JobStatus string

const (
	JobNew        JobStatus = "new"
	JobScheduled  JobStatus = "scheduled"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
)

// Valid reports whether s is a known job status
func (s JobStatus) Valid() bool {
	switch s {
	case JobNew, JobScheduled, JobInProgress, JobCompleted, JobCancelled:
		return true
	}
	return false
}

// Job is a unit of field work identified by a per-tenant job number
type Job struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	Number      string     `json:"number"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      JobStatus  `json:"status"`
	ContactID   *uuid.UUID `json:"contact_id,omitempty"`
	AssigneeID  *uuid.UUID `json:"assignee_id,omitempty"`
	CreatedBy   uuid.UUID  `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// JobInput carries the fields of a new job
type JobInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	ContactID   *uuid.UUID `json:"contact_id,omitempty"`
	AssigneeID  *uuid.UUID `json:"assignee_id,omitempty"`
}

// JobPatch is a partial update of a job. Unassign clears the assignee.
type JobPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *JobStatus `json:"status,omitempty"`
	AssigneeID  *uuid.UUID `json:"assignee_id,omitempty"`
	Unassign    bool       `json:"unassign,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func sameUUID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
