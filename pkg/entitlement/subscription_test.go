package entitlement_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/receiptly/entitlement/pkg/entitlement"
	"github.com/receiptly/entitlement/pkg/plan"
)

var (
	freePlan = plan.Plan{
		ID:               "free",
		Tier:             plan.TierFree,
		Interval:         plan.BillingIntervalNone,
		DailyGenerations: 5,
		MaxUsers:         1,
	}
	premiumPlan = plan.Plan{
		ID:               "premium_single",
		Tier:             plan.TierPremiumSingle,
		Interval:         plan.BillingIntervalMonthly,
		DailyGenerations: plan.Unlimited,
		MaxUsers:         1,
		TrialDays:        14,
	}
)

// noon is an arbitrary fixed instant; tests derive every other timestamp
// from it so nothing depends on the wall clock.
var noon = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func freeSubscription(now time.Time) *entitlement.Subscription {
	return &entitlement.Subscription{
		ID:                 uuid.New(),
		UserID:             uuid.New(),
		Tier:               plan.TierFree,
		Status:             entitlement.StatusActive,
		PlanID:             "free",
		StartDate:          now,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func premiumSubscription(now time.Time) *entitlement.Subscription {
	sub := freeSubscription(now)
	sub.Tier = plan.TierPremiumSingle
	sub.PlanID = "premium_single"
	sub.PaymentProvider = "paddle"
	sub.ProviderSubID = "sub_123"
	return sub
}

func TestSubscription_IsActiveAt(t *testing.T) {
	t.Parallel()

	t.Run("trial and active always grant access", func(t *testing.T) {
		t.Parallel()
		sub := freeSubscription(noon)

		sub.Status = entitlement.StatusActive
		assert.True(t, sub.IsActiveAt(noon))

		sub.Status = entitlement.StatusTrial
		assert.True(t, sub.IsActiveAt(noon))
	})

	t.Run("canceled keeps grace access until end date", func(t *testing.T) {
		t.Parallel()
		sub := premiumSubscription(noon)
		sub.Status = entitlement.StatusCanceled
		end := noon.AddDate(0, 0, 20)
		sub.EndDate = &end

		assert.True(t, sub.IsActiveAt(noon))
		assert.True(t, sub.IsActiveAt(end.Add(-time.Second)))
		assert.False(t, sub.IsActiveAt(end))
		assert.False(t, sub.IsActiveAt(end.Add(time.Hour)))
	})

	t.Run("canceled without end date denies access", func(t *testing.T) {
		t.Parallel()
		sub := premiumSubscription(noon)
		sub.Status = entitlement.StatusCanceled
		assert.False(t, sub.IsActiveAt(noon))
	})

	t.Run("expired never grants access", func(t *testing.T) {
		t.Parallel()
		sub := freeSubscription(noon)
		sub.Status = entitlement.StatusExpired
		assert.False(t, sub.IsActiveAt(noon))
	})
}

func TestSubscription_IsPremium(t *testing.T) {
	t.Parallel()

	assert.False(t, freeSubscription(noon).IsPremium())
	assert.True(t, premiumSubscription(noon).IsPremium())

	// Tier and lifecycle are independent axes: a canceled premium record
	// is still premium while its grace access runs.
	sub := premiumSubscription(noon)
	sub.Status = entitlement.StatusCanceled
	assert.True(t, sub.IsPremium())
}

func TestSubscription_GenerationsTodayAt(t *testing.T) {
	t.Parallel()

	t.Run("counts within the same UTC day", func(t *testing.T) {
		t.Parallel()
		sub := freeSubscription(noon)
		sub.GenerationsToday = 3
		sub.LastGenerationAt = noon.Add(-2 * time.Hour)

		assert.EqualValues(t, 3, sub.GenerationsTodayAt(noon))
	})

	t.Run("zeroes after crossing UTC midnight", func(t *testing.T) {
		t.Parallel()
		sub := freeSubscription(noon)
		sub.GenerationsToday = 5
		sub.LastGenerationAt = noon

		nextDay := time.Date(2026, 3, 11, 0, 0, 1, 0, time.UTC)
		assert.EqualValues(t, 0, sub.GenerationsTodayAt(nextDay))
	})

	t.Run("zero when nothing was ever generated", func(t *testing.T) {
		t.Parallel()
		sub := freeSubscription(noon)
		assert.EqualValues(t, 0, sub.GenerationsTodayAt(noon))
	})
}

func TestSubscription_RemainingAt(t *testing.T) {
	t.Parallel()

	t.Run("free tier counts down from the daily limit", func(t *testing.T) {
		t.Parallel()
		sub := freeSubscription(noon)
		assert.EqualValues(t, 5, sub.RemainingAt(freePlan, noon))

		sub.GenerationsToday = 4
		sub.LastGenerationAt = noon.Add(-time.Hour)
		assert.EqualValues(t, 1, sub.RemainingAt(freePlan, noon))

		sub.GenerationsToday = 5
		assert.EqualValues(t, 0, sub.RemainingAt(freePlan, noon))
	})

	t.Run("never negative when over the limit", func(t *testing.T) {
		t.Parallel()
		sub := freeSubscription(noon)
		sub.GenerationsToday = 9
		sub.LastGenerationAt = noon.Add(-time.Hour)
		assert.EqualValues(t, 0, sub.RemainingAt(freePlan, noon))
	})

	t.Run("unlimited passes through the sentinel", func(t *testing.T) {
		t.Parallel()
		sub := premiumSubscription(noon)
		sub.GenerationsToday = 10000
		sub.LastGenerationAt = noon.Add(-time.Hour)
		assert.Equal(t, plan.Unlimited, sub.RemainingAt(premiumPlan, noon))
	})
}

func TestSubscription_CanConsumeAt(t *testing.T) {
	t.Parallel()

	t.Run("free tier allows the fifth and denies the sixth", func(t *testing.T) {
		t.Parallel()
		sub := freeSubscription(noon)
		sub.LastGenerationAt = noon.Add(-time.Minute)

		sub.GenerationsToday = 4
		assert.True(t, sub.CanConsumeAt(freePlan, noon))

		sub.GenerationsToday = 5
		assert.False(t, sub.CanConsumeAt(freePlan, noon))
	})

	t.Run("premium is never gated by count", func(t *testing.T) {
		t.Parallel()
		sub := premiumSubscription(noon)
		sub.GenerationsToday = 10000
		sub.LastGenerationAt = noon.Add(-time.Minute)
		assert.True(t, sub.CanConsumeAt(premiumPlan, noon))
	})

	t.Run("inactive subscriptions are gated regardless of quota", func(t *testing.T) {
		t.Parallel()
		sub := premiumSubscription(noon)
		sub.Status = entitlement.StatusExpired
		assert.False(t, sub.CanConsumeAt(premiumPlan, noon))
	})

	t.Run("exhausted quota reopens after midnight", func(t *testing.T) {
		t.Parallel()
		sub := freeSubscription(noon)
		sub.GenerationsToday = 5
		sub.LastGenerationAt = noon

		assert.False(t, sub.CanConsumeAt(freePlan, noon))

		nextDay := time.Date(2026, 3, 11, 0, 0, 1, 0, time.UTC)
		assert.True(t, sub.CanConsumeAt(freePlan, nextDay))
	})
}

func TestSubscription_ResetBoundaryAt(t *testing.T) {
	t.Parallel()

	t.Run("midnight after the last generation", func(t *testing.T) {
		t.Parallel()
		sub := freeSubscription(noon)
		sub.LastGenerationAt = noon

		want := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, want, sub.ResetBoundaryAt(noon))
	})

	t.Run("midnight after now when the counter is already stale", func(t *testing.T) {
		t.Parallel()
		sub := freeSubscription(noon)
		sub.LastGenerationAt = noon.AddDate(0, 0, -3)

		want := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, want, sub.ResetBoundaryAt(noon))
	})

	t.Run("midnight after now when nothing was generated", func(t *testing.T) {
		t.Parallel()
		sub := freeSubscription(noon)
		want := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, want, sub.ResetBoundaryAt(noon))
	})
}

func TestApplyGeneration(t *testing.T) {
	t.Parallel()

	t.Run("increments within the day", func(t *testing.T) {
		t.Parallel()
		sub := freeSubscription(noon)
		sub.GenerationsToday = 2
		sub.GenerationsThisPeriod = 40
		sub.LastGenerationAt = noon.Add(-time.Hour)

		entitlement.ApplyGeneration(sub, noon)

		assert.EqualValues(t, 3, sub.GenerationsToday)
		assert.EqualValues(t, 41, sub.GenerationsThisPeriod)
		assert.Equal(t, noon, sub.LastGenerationAt)
	})

	t.Run("straddling the boundary lands on a fresh counter", func(t *testing.T) {
		t.Parallel()
		sub := freeSubscription(noon)
		sub.GenerationsToday = 5
		sub.LastGenerationAt = noon

		afterMidnight := time.Date(2026, 3, 11, 0, 0, 1, 0, time.UTC)
		entitlement.ApplyGeneration(sub, afterMidnight)

		// Exactly one, never zero (lost) and never six (unreset).
		assert.EqualValues(t, 1, sub.GenerationsToday)
	})

	t.Run("first generation ever starts at one", func(t *testing.T) {
		t.Parallel()
		sub := freeSubscription(noon)
		entitlement.ApplyGeneration(sub, noon)
		assert.EqualValues(t, 1, sub.GenerationsToday)
		assert.EqualValues(t, 1, sub.GenerationsThisPeriod)
	})
}

func TestSubscription_UsageAt(t *testing.T) {
	t.Parallel()

	sub := freeSubscription(noon)
	sub.GenerationsToday = 4
	sub.GenerationsThisPeriod = 60
	sub.LastGenerationAt = noon.Add(-time.Hour)

	snap := sub.UsageAt(freePlan, noon)
	assert.EqualValues(t, 4, snap.GenerationsToday)
	assert.EqualValues(t, 60, snap.GenerationsThisPeriod)
	assert.EqualValues(t, 5, snap.Limit)
	assert.True(t, snap.CanGenerate)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), snap.ResetsAt)
}

func TestSubscription_DueForSweepAt(t *testing.T) {
	t.Parallel()

	t.Run("fresh record is not due", func(t *testing.T) {
		t.Parallel()
		sub := freeSubscription(noon)
		assert.False(t, sub.DueForSweepAt(noon))
	})

	t.Run("lapsed trial is due", func(t *testing.T) {
		t.Parallel()
		sub := premiumSubscription(noon)
		sub.Status = entitlement.StatusTrial
		trialEnd := noon.Add(-time.Hour)
		sub.TrialEndsAt = &trialEnd
		assert.True(t, sub.DueForSweepAt(noon))
	})

	t.Run("lapsed cancellation is due", func(t *testing.T) {
		t.Parallel()
		sub := premiumSubscription(noon)
		sub.Status = entitlement.StatusCanceled
		end := noon.Add(-time.Minute)
		sub.EndDate = &end
		assert.True(t, sub.DueForSweepAt(noon))
	})

	t.Run("finished billing period is due", func(t *testing.T) {
		t.Parallel()
		sub := freeSubscription(noon.AddDate(0, -2, 0))
		assert.True(t, sub.DueForSweepAt(noon))
	})

	t.Run("stale daily counter is due", func(t *testing.T) {
		t.Parallel()
		sub := freeSubscription(noon)
		sub.GenerationsToday = 3
		sub.LastGenerationAt = noon.AddDate(0, 0, -2)
		assert.True(t, sub.DueForSweepAt(noon))
	})
}
