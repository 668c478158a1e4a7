package mirror

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/receiptly/entitlement/pkg/entitlement"
	"github.com/receiptly/entitlement/pkg/plan"
)

// ErrNotLoaded is returned by queries before the first successful Load.
var ErrNotLoaded = errors.New("mirror not loaded")

// Mirror is a thread-safe local shadow of one user's subscription record.
type Mirror struct {
	store   entitlement.Store
	catalog *plan.Catalog
	userID  uuid.UUID
	clock   func() time.Time
	log     *slog.Logger

	mu    sync.RWMutex
	sub   *entitlement.Subscription
	stale bool
	// fetchGen orders refreshes: a fetch started before the latest one
	// completed is dropped, so the newest authoritative value wins.
	fetchGen uint64
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithClock overrides the wall clock, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Mirror) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithLogger sets the logger for background refresh failures.
func WithLogger(log *slog.Logger) Option {
	return func(m *Mirror) {
		if log != nil {
			m.log = log
		}
	}
}

// New creates a mirror for one user backed by the authoritative store.
// Panics if store or catalog is nil to fail fast during initialization.
func New(store entitlement.Store, catalog *plan.Catalog, userID uuid.UUID, opts ...Option) *Mirror {
	if store == nil {
		panic("mirror: store is required")
	}
	if catalog == nil {
		panic("mirror: plan catalog is required")
	}

	m := &Mirror{
		store:   store,
		catalog: catalog,
		userID:  userID,
		clock:   func() time.Time { return time.Now().UTC() },
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load fetches the authoritative record. When the store has no record for
// the user, the mirror falls back to a default free-tier view so the UI
// can still gate actions; when the store is unreachable and a previous
// value exists, that value is kept and the mirror goes stale.
func (m *Mirror) Load(ctx context.Context) error {
	sub, err := m.store.Get(ctx, m.userID)
	if err != nil {
		if errors.Is(err, entitlement.ErrSubscriptionNotFound) {
			m.mu.Lock()
			m.sub = m.defaultFreeSubscription()
			m.stale = false
			m.fetchGen++
			m.mu.Unlock()
			return nil
		}
		m.mu.Lock()
		if m.sub != nil {
			m.stale = true
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.sub = sub
	m.stale = false
	m.fetchGen++
	m.mu.Unlock()
	return nil
}

// CanConsume answers the quota gate from the local shadow, without I/O.
func (m *Mirror) CanConsume() (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.sub == nil {
		return false, ErrNotLoaded
	}
	p, err := m.catalog.ByTier(m.sub.Tier)
	if err != nil {
		return false, err
	}
	return m.sub.CanConsumeAt(p, m.clock()), nil
}

// Remaining returns today's generations left per the local shadow, or
// plan.Unlimited.
func (m *Mirror) Remaining() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.sub == nil {
		return 0, ErrNotLoaded
	}
	p, err := m.catalog.ByTier(m.sub.Tier)
	if err != nil {
		return 0, err
	}
	return m.sub.RemainingAt(p, m.clock()), nil
}

// Usage derives the usage snapshot from the local shadow.
func (m *Mirror) Usage() (*entitlement.UsageSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.sub == nil {
		return nil, ErrNotLoaded
	}
	p, err := m.catalog.ByTier(m.sub.Tier)
	if err != nil {
		return nil, err
	}
	snap := m.sub.UsageAt(p, m.clock())
	return &snap, nil
}

// IsPremium reports the shadow's tier. False before Load.
func (m *Mirror) IsPremium() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sub != nil && m.sub.IsPremium()
}

// IsActive reports whether the shadow grants access now. False before Load.
func (m *Mirror) IsActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sub != nil && m.sub.IsActiveAt(m.clock())
}

// Subscription returns a copy of the current shadow, or nil before Load.
func (m *Mirror) Subscription() *entitlement.Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sub == nil {
		return nil
	}
	out := *m.sub
	return &out
}

// Stale reports whether the shadow may lag the authoritative record
// because the last fetch failed. Callers surface this as a transient
// "using cached status" indicator, never as a hard failure.
func (m *Mirror) Stale() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stale
}

// Consume applies the optimistic local increment, then records the
// consumption against the authoritative store in the background. The
// command returns the new local estimate immediately; the record the
// store hands back from the write replaces it when it lands. The write
// itself is never skipped: a failure only leaves the optimistic value in
// place and marks the mirror stale, it does not drop the event.
func (m *Mirror) Consume(ctx context.Context) (*entitlement.UsageSnapshot, error) {
	m.mu.Lock()
	if m.sub == nil {
		m.mu.Unlock()
		return nil, ErrNotLoaded
	}
	now := m.clock()
	entitlement.ApplyGeneration(m.sub, now)
	p, err := m.catalog.ByTier(m.sub.Tier)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	snap := m.sub.UsageAt(p, now)
	gen := m.fetchGen
	m.mu.Unlock()

	go m.recordConsumption(ctx, gen, now)

	return &snap, nil
}

// Refresh synchronously replaces the shadow with the authoritative record.
func (m *Mirror) Refresh(ctx context.Context) error {
	return m.Load(ctx)
}

// Discard drops the shadow, e.g. on logout.
func (m *Mirror) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sub = nil
	m.stale = false
	m.fetchGen++
}

// recordConsumption writes the consumed generation to the authoritative
// store and installs the returned record unless a newer fetch or a
// Discard has superseded this one. The write always goes out; only the
// install of its result is subject to supersession.
func (m *Mirror) recordConsumption(ctx context.Context, startedGen uint64, now time.Time) {
	sub, err := m.store.RecordGeneration(ctx, m.userID, now)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.log.WarnContext(ctx, "usage reconciliation failed, using cached status",
			slog.String("user_id", m.userID.String()),
			slog.Any("error", err))
		if m.fetchGen == startedGen && m.sub != nil {
			// Keep the optimistic value until the next successful fetch.
			m.stale = true
		}
		return
	}
	if m.fetchGen != startedGen || m.sub == nil {
		return // superseded; the newer value wins
	}
	m.sub = sub
	m.stale = false
	m.fetchGen++
}

// defaultFreeSubscription is the view used when the store has no record:
// a fresh free-tier subscription with a full quota.
func (m *Mirror) defaultFreeSubscription() *entitlement.Subscription {
	now := m.clock().UTC()
	free := m.catalog.MustByTier(plan.TierFree)
	return &entitlement.Subscription{
		ID:                 uuid.New(),
		UserID:             m.userID,
		Tier:               free.Tier,
		Status:             entitlement.StatusActive,
		PlanID:             free.ID,
		StartDate:          now,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
