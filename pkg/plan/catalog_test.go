package plan_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/receiptly/entitlement/pkg/plan"
)

type failingSource struct{ err error }

func (s failingSource) Load(ctx context.Context) (map[string]plan.Plan, error) {
	return nil, s.err
}

func TestNewCatalog(t *testing.T) {
	t.Parallel()

	t.Run("loads default catalog", func(t *testing.T) {
		t.Parallel()
		c, err := plan.NewCatalog(context.Background(), plan.NewInMemSource(plan.Default()))
		require.NoError(t, err)

		p, err := c.ByID("premium_single")
		require.NoError(t, err)
		assert.Equal(t, plan.TierPremiumSingle, p.Tier)

		p, err = c.ByTier(plan.TierFree)
		require.NoError(t, err)
		assert.Equal(t, "free", p.ID)
	})

	t.Run("panics on nil source", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			_, _ = plan.NewCatalog(context.Background(), nil)
		})
	})

	t.Run("wraps source errors", func(t *testing.T) {
		t.Parallel()
		loadErr := errors.New("connection refused")
		_, err := plan.NewCatalog(context.Background(), failingSource{err: loadErr})
		assert.ErrorIs(t, err, plan.ErrFailedToLoadPlans)
		assert.ErrorIs(t, err, loadErr)
	})
}

func TestNewCatalog_Validation(t *testing.T) {
	t.Parallel()

	valid := func() map[string]plan.Plan {
		return map[string]plan.Plan{
			"free": {ID: "free", Tier: plan.TierFree, DailyGenerations: 5, MaxUsers: 1},
		}
	}

	tests := []struct {
		name  string
		plans map[string]plan.Plan
	}{
		{
			name:  "empty catalog",
			plans: map[string]plan.Plan{},
		},
		{
			name: "map key does not match plan ID",
			plans: map[string]plan.Plan{
				"free": {ID: "gratis", Tier: plan.TierFree, DailyGenerations: 5, MaxUsers: 1},
			},
		},
		{
			name: "unknown tier",
			plans: map[string]plan.Plan{
				"free": {ID: "free", Tier: plan.Tier("platinum"), DailyGenerations: 5, MaxUsers: 1},
			},
		},
		{
			name: "duplicate tier",
			plans: map[string]plan.Plan{
				"free":   {ID: "free", Tier: plan.TierFree, DailyGenerations: 5, MaxUsers: 1},
				"free_2": {ID: "free_2", Tier: plan.TierFree, DailyGenerations: 10, MaxUsers: 1},
			},
		},
		{
			name: "limit below unlimited sentinel",
			plans: map[string]plan.Plan{
				"free": {ID: "free", Tier: plan.TierFree, DailyGenerations: -2, MaxUsers: 1},
			},
		},
		{
			name: "negative trial days",
			plans: map[string]plan.Plan{
				"free": {ID: "free", Tier: plan.TierFree, DailyGenerations: 5, MaxUsers: 1, TrialDays: -1},
			},
		},
		{
			name: "zero max users",
			plans: map[string]plan.Plan{
				"free": {ID: "free", Tier: plan.TierFree, DailyGenerations: 5, MaxUsers: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := plan.NewCatalog(context.Background(), plan.NewInMemSource(tt.plans))
			assert.ErrorIs(t, err, plan.ErrInvalidConfiguration)
		})
	}

	t.Run("unknown tier is reported as an invalid tier", func(t *testing.T) {
		t.Parallel()
		_, err := plan.NewCatalog(context.Background(), plan.NewInMemSource(map[string]plan.Plan{
			"free": {ID: "free", Tier: plan.Tier("platinum"), DailyGenerations: 5, MaxUsers: 1},
		}))
		assert.ErrorIs(t, err, plan.ErrInvalidTier)
	})

	t.Run("accepts a minimal valid catalog", func(t *testing.T) {
		t.Parallel()
		_, err := plan.NewCatalog(context.Background(), plan.NewInMemSource(valid()))
		assert.NoError(t, err)
	})
}

func TestCatalog_Lookups(t *testing.T) {
	t.Parallel()

	c, err := plan.NewCatalog(context.Background(), plan.NewInMemSource(plan.Default()))
	require.NoError(t, err)

	t.Run("ByID misses return ErrPlanNotFound", func(t *testing.T) {
		t.Parallel()
		_, err := c.ByID("enterprise")
		assert.ErrorIs(t, err, plan.ErrPlanNotFound)
	})

	t.Run("ByTier misses return ErrTierNotFound", func(t *testing.T) {
		t.Parallel()
		_, err := c.ByTier(plan.Tier("platinum"))
		assert.ErrorIs(t, err, plan.ErrTierNotFound)
	})

	t.Run("MustByTier panics on miss", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			c.MustByTier(plan.Tier("platinum"))
		})
		assert.NotPanics(t, func() {
			c.MustByTier(plan.TierPremiumOrg)
		})
	})

	t.Run("All is ordered by tier rank", func(t *testing.T) {
		t.Parallel()
		all := c.All()
		require.Len(t, all, 3)
		assert.Equal(t, plan.TierFree, all[0].Tier)
		assert.Equal(t, plan.TierPremiumSingle, all[1].Tier)
		assert.Equal(t, plan.TierPremiumOrg, all[2].Tier)
	})
}

func TestInMemSource_Isolation(t *testing.T) {
	t.Parallel()

	original := plan.Default()
	src := plan.NewInMemSource(original)

	// Mutating the input map after construction must not leak into loads.
	original["free"] = plan.Plan{ID: "free", Tier: plan.TierFree, DailyGenerations: 100, MaxUsers: 1}

	loaded, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 5, loaded["free"].DailyGenerations)

	// Mutating a loaded copy must not leak back into the source.
	loaded["free"].Features[0] = "tampered"
	reloaded, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5 receipt generations per day", reloaded["free"].Features[0])
}
