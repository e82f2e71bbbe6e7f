package rbac

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/hearth/pkg/observability"
	"github.com/platinummonkey/hearth/pkg/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type cacheKey struct {
	tenant    uuid.UUID
	principal uuid.UUID
}

// cachedMembership holds a lookup result; m is nil when no membership exists
type cachedMembership struct {
	m *Membership
}

// Guard is the single authorization decision point for tenant-owned data
type Guard struct {
	store   Store
	cache   *expirable.LRU[cacheKey, cachedMembership]
	metrics *observability.Metrics
	logger  *observability.Logger
	now     func() time.Time

	// epoch advances on every invalidation; a lookup only fills the cache
	// when no invalidation happened while it read the store
	mu    sync.Mutex
	epoch uint64
}

// GuardOption configures a Guard
type GuardOption func(*Guard)

// WithDecisionCache caches membership lookups for ttl. Entries are dropped
// whenever the membership is written through Memberships of the same
// process; other replicas keep serving their copy until ttl runs out.
func WithDecisionCache(size int, ttl time.Duration) GuardOption {
	return func(g *Guard) {
		if size > 0 && ttl > 0 {
			g.cache = expirable.NewLRU[cacheKey, cachedMembership](size, nil, ttl)
		}
	}
}

// WithGuardMetrics records decisions in m
func WithGuardMetrics(m *observability.Metrics) GuardOption {
	return func(g *Guard) { g.metrics = m }
}

// WithGuardLogger sets the logger used for denials
func WithGuardLogger(l *observability.Logger) GuardOption {
	return func(g *Guard) { g.logger = l }
}

// NewGuard creates a guard over the membership store
func NewGuard(store Store, opts ...GuardOption) *Guard {
	g := &Guard{
		store:  store,
		logger: observability.NewNopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// lookup returns the membership of principal in tenant or nil. Inside a unit
// of work the cache is bypassed so decisions see uncommitted writes.
func (g *Guard) lookup(ctx context.Context, principal, tenant uuid.UUID) (*Membership, error) {
	key := cacheKey{tenant: tenant, principal: principal}
	useCache := g.cache != nil && !storage.InTx(ctx) && !storage.InUnit(ctx)

	if useCache {
		if hit, ok := g.cache.Get(key); ok {
			g.metrics.RecordCacheHit()
			if hit.m == nil {
				return nil, nil
			}
			return cloneMembership(hit.m), nil
		}
	}

	var epoch uint64
	if useCache {
		g.mu.Lock()
		epoch = g.epoch
		g.mu.Unlock()
	}

	m, err := g.store.Get(ctx, tenant, principal)
	if errors.Is(err, ErrMembershipNotFound) {
		m, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve membership: %w", err)
	}

	if useCache {
		g.fill(key, epoch, m)
	}
	return m, nil
}

// Authorize decides whether principal may exercise capability in tenant.
// Denials are returned as a Decision, not an error; errors are infrastructure failures.
func (g *Guard) Authorize(ctx context.Context, principal, tenant uuid.UUID, capability Capability) (Decision, error) {
	d, _, err := g.decide(ctx, principal, tenant, capability)
	return d, err
}

func (g *Guard) decide(ctx context.Context, principal, tenant uuid.UUID, capability Capability) (Decision, *Membership, error) {
	ctx, span := observability.Tracer().Start(ctx, "rbac.Guard.Authorize")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", tenant.String()),
		attribute.String("capability", string(capability)),
	)

	m, err := g.lookup(ctx, principal, tenant)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Decision{}, nil, err
	}

	d := Evaluate(m, capability)
	d.CheckedAt = g.now()

	span.SetAttributes(attribute.Bool("allowed", d.Allowed))
	g.metrics.RecordDecision(d.Allowed, string(capability))
	if !d.Allowed {
		observability.FromContext(ctx).WithFields(map[string]interface{}{
			"tenant_id":  tenant.String(),
			"capability": string(capability),
			"reason":     d.Reason,
		}).Debug("authorization denied")
	}
	return d, m, nil
}

// Evaluate applies the decision rule to an already resolved membership
func Evaluate(m *Membership, capability Capability) Decision {
	switch {
	case m == nil:
		return Decision{Allowed: false, Reason: ReasonNoMembership, Capability: capability}
	case !m.Active:
		return Decision{Allowed: false, Reason: ReasonInactive, Role: m.Role, Capability: capability}
	case m.Capabilities.IsWildcard():
		return Decision{Allowed: true, Reason: ReasonWildcard, Role: m.Role, Capability: capability}
	case capability != "" && capability != Wildcard && m.Capabilities.Grants(capability):
		return Decision{Allowed: true, Reason: ReasonGranted, Role: m.Role, Capability: capability}
	default:
		return Decision{Allowed: false, Reason: ReasonMissingCapability, Role: m.Role, Capability: capability}
	}
}

// Require returns the caller's active membership when capability is granted
// and ErrUnauthorized otherwise
func (g *Guard) Require(ctx context.Context, principal, tenant uuid.UUID, capability Capability) (*Membership, error) {
	d, m, err := g.decide(ctx, principal, tenant, capability)
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnauthorized, capability, d.Reason)
	}
	return m, nil
}

// Member returns the caller's active membership in tenant regardless of
// capability, or ErrUnauthorized
func (g *Guard) Member(ctx context.Context, principal, tenant uuid.UUID) (*Membership, error) {
	m, err := g.lookup(ctx, principal, tenant)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, ReasonNoMembership)
	}
	if !m.Active {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, ReasonInactive)
	}
	return m, nil
}

// CanViewPrincipal applies the principal visibility rule: a principal always
// sees itself and sees others only through a shared active membership
func (g *Guard) CanViewPrincipal(ctx context.Context, viewer, target uuid.UUID) (Decision, error) {
	if viewer == target {
		return Decision{Allowed: true, Reason: ReasonSelf, CheckedAt: g.now()}, nil
	}

	shared, err := g.store.SharesActiveTenant(ctx, viewer, target)
	if err != nil {
		return Decision{}, err
	}
	if !shared {
		return Decision{Allowed: false, Reason: ReasonNoSharedTenant, CheckedAt: g.now()}, nil
	}
	return Decision{Allowed: true, Reason: ReasonSharedTenant, CheckedAt: g.now()}, nil
}

// Invalidate drops the cached membership of principal in tenant
func (g *Guard) Invalidate(tenant, principal uuid.UUID) {
	if g.cache == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.epoch++
	g.cache.Remove(cacheKey{tenant: tenant, principal: principal})
}

// fill caches m unless an invalidation ran since epoch was read, in which
// case m may predate the write that triggered it
func (g *Guard) fill(key cacheKey, epoch uint64, m *Membership) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.epoch != epoch {
		return
	}
	entry := cachedMembership{}
	if m != nil {
		entry.m = cloneMembership(m)
	}
	g.cache.Add(key, entry)
}
