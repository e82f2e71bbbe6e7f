package audit

import (
	"time"

	"github.com/google/uuid"
)

// Entity types with a history sequence
const (
	EntityContact = "contact"
	EntityJob     = "job"
)

// Tracked fields
const (
	FieldRelationshipStatus = "relationship_status"
	FieldStatus             = "status"
	FieldAssignee           = "assignee"
	FieldCreated            = "created"
)

// EntityRef identifies the entity owning a history sequence
type EntityRef struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Type     string    `json:"entity_type"`
	ID       uuid.UUID `json:"entity_id"`
}

// Record is one immutable entry of an entity's history
type Record struct {
	ID         int64     `json:"id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
	Field      string    `json:"field"`
	FromValue  string    `json:"from_value"`
	ToValue    string    `json:"to_value"`
	Reason     string    `json:"reason,omitempty"`
	ActorID    uuid.UUID `json:"actor_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Entity returns the reference of the entity the record belongs to
func (r *Record) Entity() EntityRef {
	return EntityRef{TenantID: r.TenantID, Type: r.EntityType, ID: r.EntityID}
}

// Change describes a value transition of one tracked field
type Change struct {
	Entity  EntityRef
	Field   string
	From    string
	To      string
	Reason  string
	ActorID uuid.UUID
}
