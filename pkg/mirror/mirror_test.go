package mirror_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/receiptly/entitlement/pkg/entitlement"
	"github.com/receiptly/entitlement/pkg/mirror"
	"github.com/receiptly/entitlement/pkg/plan"
)

var noon = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// flakyStore wraps a real store and fails reads and writes on demand.
type flakyStore struct {
	entitlement.Store

	mu   sync.Mutex
	fail bool
}

func (s *flakyStore) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *flakyStore) failing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail
}

func (s *flakyStore) Get(ctx context.Context, userID uuid.UUID) (*entitlement.Subscription, error) {
	if s.failing() {
		return nil, errors.Join(entitlement.ErrStoreUnreachable, errors.New("connection refused"))
	}
	return s.Store.Get(ctx, userID)
}

func (s *flakyStore) RecordGeneration(ctx context.Context, userID uuid.UUID, now time.Time) (*entitlement.Subscription, error) {
	if s.failing() {
		return nil, errors.Join(entitlement.ErrStoreUnreachable, errors.New("connection refused"))
	}
	return s.Store.RecordGeneration(ctx, userID, now)
}

func testCatalog(t *testing.T) *plan.Catalog {
	t.Helper()
	c, err := plan.NewCatalog(context.Background(), plan.NewInMemSource(plan.Default()))
	require.NoError(t, err)
	return c
}

func saveFreeSubscription(t *testing.T, store entitlement.Store, userID uuid.UUID) *entitlement.Subscription {
	t.Helper()
	sub := &entitlement.Subscription{
		ID:                 uuid.New(),
		UserID:             userID,
		Tier:               plan.TierFree,
		Status:             entitlement.StatusActive,
		PlanID:             "free",
		StartDate:          noon,
		CurrentPeriodStart: noon,
		CurrentPeriodEnd:   noon.AddDate(0, 1, 0),
		CreatedAt:          noon,
		UpdatedAt:          noon,
	}
	require.NoError(t, store.Save(context.Background(), sub))
	return sub
}

func fixedClock(at time.Time) mirror.Option {
	return mirror.WithClock(func() time.Time { return at })
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("panics on nil store", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			mirror.New(nil, testCatalog(t), uuid.New())
		})
	})

	t.Run("panics on nil catalog", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			mirror.New(entitlement.NewMemoryStore(), nil, uuid.New())
		})
	})
}

func TestMirror_Load(t *testing.T) {
	t.Parallel()

	t.Run("queries fail before the first load", func(t *testing.T) {
		t.Parallel()
		m := mirror.New(entitlement.NewMemoryStore(), testCatalog(t), uuid.New(), fixedClock(noon))

		_, err := m.CanConsume()
		assert.ErrorIs(t, err, mirror.ErrNotLoaded)
		_, err = m.Remaining()
		assert.ErrorIs(t, err, mirror.ErrNotLoaded)
		assert.False(t, m.IsPremium())
		assert.False(t, m.IsActive())
		assert.Nil(t, m.Subscription())
	})

	t.Run("installs the authoritative record", func(t *testing.T) {
		t.Parallel()
		store := entitlement.NewMemoryStore()
		userID := uuid.New()
		saveFreeSubscription(t, store, userID)

		m := mirror.New(store, testCatalog(t), userID, fixedClock(noon))
		require.NoError(t, m.Load(context.Background()))

		ok, err := m.CanConsume()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, m.IsActive())
		assert.False(t, m.IsPremium())
		assert.False(t, m.Stale())
	})

	t.Run("missing record falls back to a free-tier view", func(t *testing.T) {
		t.Parallel()
		m := mirror.New(entitlement.NewMemoryStore(), testCatalog(t), uuid.New(), fixedClock(noon))
		require.NoError(t, m.Load(context.Background()))

		assert.False(t, m.IsPremium())
		assert.True(t, m.IsActive())

		remaining, err := m.Remaining()
		require.NoError(t, err)
		assert.EqualValues(t, 5, remaining)
	})

	t.Run("store failure with no prior value returns the error", func(t *testing.T) {
		t.Parallel()
		store := &flakyStore{Store: entitlement.NewMemoryStore(), fail: true}
		m := mirror.New(store, testCatalog(t), uuid.New(), fixedClock(noon))

		err := m.Load(context.Background())
		assert.ErrorIs(t, err, entitlement.ErrStoreUnreachable)
	})

	t.Run("store failure keeps the prior value and goes stale", func(t *testing.T) {
		t.Parallel()
		store := &flakyStore{Store: entitlement.NewMemoryStore()}
		userID := uuid.New()
		saveFreeSubscription(t, store.Store, userID)

		m := mirror.New(store, testCatalog(t), userID, fixedClock(noon))
		require.NoError(t, m.Load(context.Background()))
		require.False(t, m.Stale())

		store.setFail(true)
		require.NoError(t, m.Load(context.Background()))

		assert.True(t, m.Stale())
		assert.True(t, m.IsActive())

		// A successful refresh clears the stale flag.
		store.setFail(false)
		require.NoError(t, m.Refresh(context.Background()))
		assert.False(t, m.Stale())
	})
}

func TestMirror_Consume(t *testing.T) {
	t.Parallel()

	t.Run("optimistic increment is visible immediately", func(t *testing.T) {
		t.Parallel()
		store := entitlement.NewMemoryStore()
		userID := uuid.New()
		saveFreeSubscription(t, store, userID)

		m := mirror.New(store, testCatalog(t), userID, fixedClock(noon))
		require.NoError(t, m.Load(context.Background()))

		snap, err := m.Consume(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, 1, snap.GenerationsToday)
		assert.True(t, snap.CanGenerate)

		remaining, err := m.Remaining()
		require.NoError(t, err)
		assert.EqualValues(t, 4, remaining)
	})

	t.Run("local gate closes at the limit without any fetch", func(t *testing.T) {
		t.Parallel()
		store := &flakyStore{Store: entitlement.NewMemoryStore(), fail: false}
		userID := uuid.New()
		saveFreeSubscription(t, store.Store, userID)

		m := mirror.New(store, testCatalog(t), userID, fixedClock(noon))
		require.NoError(t, m.Load(context.Background()))

		// Store writes fail; the local estimate carries the gate.
		store.setFail(true)

		for range 5 {
			_, err := m.Consume(context.Background())
			require.NoError(t, err)
		}

		ok, err := m.CanConsume()
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("consumptions reach the authoritative record", func(t *testing.T) {
		t.Parallel()
		store := entitlement.NewMemoryStore()
		userID := uuid.New()
		saveFreeSubscription(t, store, userID)

		m := mirror.New(store, testCatalog(t), userID, fixedClock(noon))
		require.NoError(t, m.Load(context.Background()))

		for range 5 {
			_, err := m.Consume(context.Background())
			require.NoError(t, err)
		}

		// Every consumption is written through, not just estimated.
		require.Eventually(t, func() bool {
			sub, err := store.Get(context.Background(), userID)
			return err == nil && sub.GenerationsTodayAt(noon) == 5
		}, time.Second, 5*time.Millisecond)

		ok, err := m.CanConsume()
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("reconciliation replaces the estimate with the record", func(t *testing.T) {
		t.Parallel()
		store := entitlement.NewMemoryStore()
		userID := uuid.New()
		saveFreeSubscription(t, store, userID)

		m := mirror.New(store, testCatalog(t), userID, fixedClock(noon))
		require.NoError(t, m.Load(context.Background()))

		// Another device already consumed three generations.
		_, err := store.RecordGeneration(context.Background(), userID, noon)
		require.NoError(t, err)
		_, err = store.RecordGeneration(context.Background(), userID, noon)
		require.NoError(t, err)
		_, err = store.RecordGeneration(context.Background(), userID, noon)
		require.NoError(t, err)

		snap, err := m.Consume(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, 1, snap.GenerationsToday) // local estimate

		// The write-through returns the authoritative count, which
		// includes the other device's consumptions.
		require.Eventually(t, func() bool {
			snap, err := m.Usage()
			return err == nil && snap.GenerationsToday == 4
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("consume before load is rejected", func(t *testing.T) {
		t.Parallel()
		m := mirror.New(entitlement.NewMemoryStore(), testCatalog(t), uuid.New(), fixedClock(noon))
		_, err := m.Consume(context.Background())
		assert.ErrorIs(t, err, mirror.ErrNotLoaded)
	})
}

func TestMirror_Discard(t *testing.T) {
	t.Parallel()

	store := entitlement.NewMemoryStore()
	userID := uuid.New()
	saveFreeSubscription(t, store, userID)

	m := mirror.New(store, testCatalog(t), userID, fixedClock(noon))
	require.NoError(t, m.Load(context.Background()))
	require.NotNil(t, m.Subscription())

	m.Discard()

	assert.Nil(t, m.Subscription())
	assert.False(t, m.IsActive())
	_, err := m.CanConsume()
	assert.ErrorIs(t, err, mirror.ErrNotLoaded)
}

func TestMirror_SubscriptionIsACopy(t *testing.T) {
	t.Parallel()

	store := entitlement.NewMemoryStore()
	userID := uuid.New()
	saveFreeSubscription(t, store, userID)

	m := mirror.New(store, testCatalog(t), userID, fixedClock(noon))
	require.NoError(t, m.Load(context.Background()))

	sub := m.Subscription()
	sub.Status = entitlement.StatusExpired

	assert.True(t, m.IsActive())
}
