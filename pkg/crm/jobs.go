package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/hearth/pkg/audit"
	"github.com/platinummonkey/hearth/pkg/observability"
	"github.com/platinummonkey/hearth/pkg/rbac"
	"github.com/platinummonkey/hearth/pkg/sequence"
	"github.com/platinummonkey/hearth/pkg/storage"
	"go.opentelemetry.io/otel/attribute"
)

// JobPrefix is the sequence prefix of job numbers
const JobPrefix = "JOB"

// Jobs manages the jobs of tenants. Job numbers come from the sequence
// service; status and assignee changes are recorded in the audit trail.
type Jobs struct {
	store    JobStore
	contacts ContactStore
	numbers  *sequence.Service
	trail    *audit.Trail
	guard    *rbac.Guard
	uow      storage.UnitOfWork
	hooks    *storage.HookChain[Job]
	logger   *observability.Logger
	now      func() time.Time
}

// NewJobs creates the job service
func NewJobs(store JobStore, contacts ContactStore, numbers *sequence.Service, trail *audit.Trail, guard *rbac.Guard, uow storage.UnitOfWork, logger *observability.Logger) *Jobs {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	s := &Jobs{
		store:    store,
		contacts: contacts,
		numbers:  numbers,
		trail:    trail,
		guard:    guard,
		uow:      uow,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.hooks = storage.NewHookChain[Job]().
		Use("stamp", func(ctx context.Context, before, after *Job) error {
			if before != nil {
				after.UpdatedAt = s.now()
			}
			return nil
		}).
		Use("audit", s.recordChanges)
	return s
}

func (s *Jobs) recordChanges(ctx context.Context, before, after *Job) error {
	ref := audit.EntityRef{TenantID: after.TenantID, Type: audit.EntityJob, ID: after.ID}
	change := func(field, from, to string) audit.Change {
		return audit.Change{Entity: ref, Field: field, From: from, To: to, Reason: reasonFrom(ctx), ActorID: actorFrom(ctx)}
	}

	if before == nil {
		changes := []audit.Change{change(audit.FieldCreated, "", after.Number)}
		if after.AssigneeID != nil {
			changes = append(changes, change(audit.FieldAssignee, "", after.AssigneeID.String()))
		}
		for _, c := range changes {
			if _, err := s.trail.Record(ctx, c); err != nil {
				return err
			}
		}
		return nil
	}

	changes := []audit.Change{
		change(audit.FieldStatus, string(before.Status), string(after.Status)),
		change(audit.FieldAssignee, uuidString(before.AssigneeID), uuidString(after.AssigneeID)),
	}
	for _, c := range changes {
		if _, err := s.trail.Record(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// checkAssignee requires assignee to hold an active membership in tenant
func (s *Jobs) checkAssignee(ctx context.Context, tenant uuid.UUID, assignee *uuid.UUID) error {
	if assignee == nil {
		return nil
	}
	if _, err := s.guard.Member(ctx, *assignee, tenant); err != nil {
		if errors.Is(err, rbac.ErrUnauthorized) {
			return fmt.Errorf("%w: %s is not an active member", ErrInvalidAssignee, assignee)
		}
		return err
	}
	return nil
}

// checkContact requires contact to belong to tenant
func (s *Jobs) checkContact(ctx context.Context, tenant uuid.UUID, contact *uuid.UUID) error {
	if contact == nil {
		return nil
	}
	_, err := s.contacts.Get(ctx, tenant, *contact, false)
	return err
}

// Create opens a job in tenant; requires create_jobs, plus assign_jobs when
// an assignee is given. The job number is drawn before the unit of work, so a
// failed create leaves a gap in the numbering.
func (s *Jobs) Create(ctx context.Context, actor, tenant uuid.UUID, in JobInput) (*Job, error) {
	ctx, span := observability.Tracer().Start(ctx, "crm.Jobs.Create")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenant.String()))

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	m, err := s.guard.Require(ctx, actor, tenant, rbac.CapCreateJobs)
	if err != nil {
		return nil, err
	}
	if in.AssigneeID != nil && !rbac.Evaluate(m, rbac.CapAssignJobs).Allowed {
		return nil, fmt.Errorf("%w: %s", rbac.ErrUnauthorized, rbac.CapAssignJobs)
	}

	number, err := s.numbers.Next(ctx, tenant, JobPrefix)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("job_number", number))

	var job *Job
	err = s.uow.Do(ctx, func(ctx context.Context) error {
		return rbac.ScopedExec(ctx, s.guard, rbac.Access{Principal: actor, Tenant: tenant, Capability: rbac.CapCreateJobs},
			func(ctx context.Context, _ *rbac.Membership) error {
				if err := s.checkContact(ctx, tenant, in.ContactID); err != nil {
					return err
				}
				if err := s.checkAssignee(ctx, tenant, in.AssigneeID); err != nil {
					return err
				}

				now := s.now()
				j := &Job{
					ID:          uuid.New(),
					TenantID:    tenant,
					Number:      number,
					Title:       title,
					Description: strings.TrimSpace(in.Description),
					Status:      JobNew,
					ContactID:   in.ContactID,
					AssigneeID:  in.AssigneeID,
					CreatedBy:   actor,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				if err := s.hooks.Run(withChange(ctx, actor, ""), nil, j); err != nil {
					return err
				}
				if err := s.store.Create(ctx, j); err != nil {
					return err
				}
				job = j
				return nil
			})
	})
	if err != nil {
		s.logger.WithError(err).WithField("job_number", number).Warn("job create failed, number left unused")
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"tenant_id":  tenant.String(),
		"job_id":     job.ID.String(),
		"job_number": job.Number,
	}).Info("job created")
	return job, nil
}

// Get returns a job of tenant; requires view_jobs
func (s *Jobs) Get(ctx context.Context, actor, tenant, id uuid.UUID) (*Job, error) {
	return rbac.Scoped(ctx, s.guard, rbac.Access{Principal: actor, Tenant: tenant, Capability: rbac.CapViewJobs},
		func(ctx context.Context, _ *rbac.Membership) (*Job, error) {
			return s.store.Get(ctx, tenant, id, false)
		})
}

// List returns the jobs of tenant; requires view_jobs
func (s *Jobs) List(ctx context.Context, actor, tenant uuid.UUID) ([]*Job, error) {
	return rbac.Scoped(ctx, s.guard, rbac.Access{Principal: actor, Tenant: tenant, Capability: rbac.CapViewJobs},
		func(ctx context.Context, _ *rbac.Membership) ([]*Job, error) {
			return s.store.List(ctx, tenant)
		})
}

// Update applies patch to a job; requires edit_jobs, and assign_jobs when
// the assignee changes
func (s *Jobs) Update(ctx context.Context, actor, tenant, id uuid.UUID, patch JobPatch) (*Job, error) {
	ctx, span := observability.Tracer().Start(ctx, "crm.Jobs.Update")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenant.String()), attribute.String("job_id", id.String()))

	if patch.Status != nil && !patch.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown job status %q", ErrInvalidInput, *patch.Status)
	}
	if patch.Unassign && patch.AssigneeID != nil {
		return nil, fmt.Errorf("%w: assignee_id and unassign are exclusive", ErrInvalidInput)
	}

	var updated *Job
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		return rbac.ScopedExec(ctx, s.guard, rbac.Access{Principal: actor, Tenant: tenant, Capability: rbac.CapEditJobs},
			func(ctx context.Context, m *rbac.Membership) error {
				before, err := s.store.Get(ctx, tenant, id, true)
				if err != nil {
					return err
				}

				after := *before
				if patch.Title != nil {
					after.Title = strings.TrimSpace(*patch.Title)
					if after.Title == "" {
						return fmt.Errorf("%w: title is required", ErrInvalidInput)
					}
				}
				if patch.Description != nil {
					after.Description = strings.TrimSpace(*patch.Description)
				}
				if patch.Status != nil {
					after.Status = *patch.Status
				}
				switch {
				case patch.Unassign:
					after.AssigneeID = nil
				case patch.AssigneeID != nil:
					assignee := *patch.AssigneeID
					after.AssigneeID = &assignee
				}

				if !sameUUID(before.AssigneeID, after.AssigneeID) {
					if !rbac.Evaluate(m, rbac.CapAssignJobs).Allowed {
						return fmt.Errorf("%w: %s", rbac.ErrUnauthorized, rbac.CapAssignJobs)
					}
					if err := s.checkAssignee(ctx, tenant, after.AssigneeID); err != nil {
						return err
					}
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

// History returns the audit records of a job; requires view_jobs
func (s *Jobs) History(ctx context.Context, actor, tenant, id uuid.UUID) ([]audit.Record, error) {
	return rbac.Scoped(ctx, s.guard, rbac.Access{Principal: actor, Tenant: tenant, Capability: rbac.CapViewJobs},
		func(ctx context.Context, _ *rbac.Membership) ([]audit.Record, error) {
			if _, err := s.store.Get(ctx, tenant, id, false); err != nil {
				return nil, err
			}
			return s.trail.History(ctx, audit.EntityRef{TenantID: tenant, Type: audit.EntityJob, ID: id})
		})
}

// ReconcileJobNumbers raises the job counter of tenant to at least the
// highest number already stored, e.g. after restoring jobs from a backup or
// moving the counter to a fresh Redis. It returns the resulting floor.
func ReconcileJobNumbers(ctx context.Context, store JobStore, numbers *sequence.Service, tenant uuid.UUID) (int64, error) {
	jobs, err := store.List(ctx, tenant)
	if err != nil {
		return 0, err
	}
	existing := make([]string, 0, len(jobs))
	for _, j := range jobs {
		existing = append(existing, j.Number)
	}
	return numbers.Reconcile(ctx, tenant, JobPrefix, existing)
}

// ReconcileAllJobNumbers reconciles the job counter of every tenant holding
// jobs. A counter that lost its state, such as a Redis restarted without
// persistence, resumes after the highest stored number instead of reissuing.
func ReconcileAllJobNumbers(ctx context.Context, store JobStore, numbers *sequence.Service) (int, error) {
	tenants, err := store.Tenants(ctx)
	if err != nil {
		return 0, err
	}
	for _, tenant := range tenants {
		if _, err := ReconcileJobNumbers(ctx, store, numbers, tenant); err != nil {
			return 0, fmt.Errorf("reconcile job numbers of tenant %s: %w", tenant, err)
		}
	}
	return len(tenants), nil
}
