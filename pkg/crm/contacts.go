package crm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/audit"
	"github.com/platinummonkey/hearth/pkg/observability"
	"github.com/platinummonkey/hearth/pkg/rbac"
	"github.com/platinummonkey/hearth/pkg/storage"
	"go.opentelemetry.io/otel/attribute"
)

// Contacts manages the contacts of tenants. Relationship status changes are
// recorded in the audit trail in the same unit of work as the update.
type Contacts struct {
	store  ContactStore
	trail  *audit.Trail
	guard  *rbac.Guard
	uow    storage.UnitOfWork
	hooks  *storage.HookChain[Contact]
	logger *observability.Logger
	now    func() time.Time
}

// NewContacts creates the contact service
func NewContacts(store ContactStore, trail *audit.Trail, guard *rbac.Guard, uow storage.UnitOfWork, logger *observability.Logger) *Contacts {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	s := &Contacts{
		store:  store,
		trail:  trail,
		guard:  guard,
		uow:    uow,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.hooks = storage.NewHookChain[Contact]().
		Use("stamp", func(ctx context.Context, before, after *Contact) error {
			after.UpdatedAt = s.now()
			return nil
		}).
		Use("audit", s.recordStatusChange)
	return s
}

func (s *Contacts) recordStatusChange(ctx context.Context, before, after *Contact) error {
	if before == nil {
		return nil
	}
	_, err := s.trail.Record(ctx, audit.Change{
		Entity:  audit.EntityRef{TenantID: after.TenantID, Type: audit.EntityContact, ID: after.ID},
		Field:   audit.FieldRelationshipStatus,
		From:    string(before.RelationshipStatus),
		To:      string(after.RelationshipStatus),
		Reason:  reasonFrom(ctx),
		ActorID: actorFrom(ctx),
	})
	return err
}

func normalizeContact(name, email, phone string) (string, string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	return name, strings.ToLower(strings.TrimSpace(email)), strings.TrimSpace(phone), nil
}

// Create adds a contact to tenant; requires create_contacts. The status
// defaults to prospect.
func (s *Contacts) Create(ctx context.Context, actor, tenant uuid.UUID, in ContactInput) (*Contact, error) {
	name, email, phone, err := normalizeContact(in.Name, in.Email, in.Phone)
	if err != nil {
		return nil, err
	}
	status := in.RelationshipStatus
	if status == "" {
		status = StatusProspect
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown relationship status %q", ErrInvalidInput, status)
	}

	return rbac.Scoped(ctx, s.guard, rbac.Access{Principal: actor, Tenant: tenant, Capability: rbac.CapCreateContacts},
		func(ctx context.Context, _ *rbac.Membership) (*Contact, error) {
			now := s.now()
			c := &Contact{
				ID:                 uuid.New(),
				TenantID:           tenant,
				Name:               name,
				Email:              email,
				Phone:              phone,
				RelationshipStatus: status,
				CreatedBy:          actor,
				CreatedAt:          now,
				UpdatedAt:          now,
			}
			if err := s.store.Create(ctx, c); err != nil {
				return nil, err
			}
			s.logger.WithFields(map[string]interface{}{
				"tenant_id":  tenant.String(),
				"contact_id": c.ID.String(),
			}).Info("contact created")
			return c, nil
		})
}

// Get returns a contact of tenant; requires view_contacts
func (s *Contacts) Get(ctx context.Context, actor, tenant, id uuid.UUID) (*Contact, error) {
	return rbac.Scoped(ctx, s.guard, rbac.Access{Principal: actor, Tenant: tenant, Capability: rbac.CapViewContacts},
		func(ctx context.Context, _ *rbac.Membership) (*Contact, error) {
			return s.store.Get(ctx, tenant, id, false)
		})
}

// List returns the contacts of tenant; requires view_contacts
func (s *Contacts) List(ctx context.Context, actor, tenant uuid.UUID) ([]*Contact, error) {
	return rbac.Scoped(ctx, s.guard, rbac.Access{Principal: actor, Tenant: tenant, Capability: rbac.CapViewContacts},
		func(ctx context.Context, _ *rbac.Membership) ([]*Contact, error) {
			return s.store.List(ctx, tenant)
		})
}

// Update applies patch to a contact; requires edit_contacts. A changed
// relationship status appends one history record, atomically with the update.
func (s *Contacts) Update(ctx context.Context, actor, tenant, id uuid.UUID, patch ContactPatch) (*Contact, error) {
	ctx, span := observability.Tracer().Start(ctx, "crm.Contacts.Update")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenant.String()), attribute.String("contact_id", id.String()))

	if patch.RelationshipStatus != nil && !patch.RelationshipStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown relationship status %q", ErrInvalidInput, *patch.RelationshipStatus)
	}

	var updated *Contact
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		return rbac.ScopedExec(ctx, s.guard, rbac.Access{Principal: actor, Tenant: tenant, Capability: rbac.CapEditContacts},
			func(ctx context.Context, _ *rbac.Membership) error {
				before, err := s.store.Get(ctx, tenant, id, true)
				if err != nil {
					return err
				}

				after := *before
				name, email, phone := after.Name, after.Email, after.Phone
				if patch.Name != nil {
					name = *patch.Name
				}
				if patch.Email != nil {
					email = *patch.Email
				}
				if patch.Phone != nil {
					phone = *patch.Phone
				}
				if after.Name, after.Email, after.Phone, err = normalizeContact(name, email, phone); err != nil {
					return err
				}
				if patch.RelationshipStatus != nil {
					after.RelationshipStatus = *patch.RelationshipStatus
				}

				if err := s.hooks.Run(withChange(ctx, actor, patch.Reason), before, &after); err != nil {
					return err
				}
				if err := s.store.Update(ctx, &after); err != nil {
					return err
				}
				updated = &after
				return nil
			})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// History returns the audit records of a contact; requires view_contacts
func (s *Contacts) History(ctx context.Context, actor, tenant, id uuid.UUID) ([]audit.Record, error) {
	return rbac.Scoped(ctx, s.guard, rbac.Access{Principal: actor, Tenant: tenant, Capability: rbac.CapViewContacts},
		func(ctx context.Context, _ *rbac.Membership) ([]audit.Record, error) {
			if _, err := s.store.Get(ctx, tenant, id, false); err != nil {
				return nil, err
			}
			return s.trail.History(ctx, audit.EntityRef{TenantID: tenant, Type: audit.EntityContact, ID: id})
		})
}
