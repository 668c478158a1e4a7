package entitlement

import (
	"time"

	"github.com/google/uuid"

	"github.com/receiptly/entitlement/pkg/plan"
)

// Subscription is the unit of mutation owned by the backing store.
// Each user has exactly one subscription record at a time.
type Subscription struct {
	ID             uuid.UUID  `json:"id" bson:"_id"`
	UserID         uuid.UUID  `json:"userId" bson:"user_id"`
	OrganizationID *uuid.UUID `json:"organizationId,omitempty" bson:"organization_id,omitempty"` // set only for organization plans

	Tier      plan.Tier `json:"tier" bson:"tier"`
	Status    Status    `json:"status" bson:"status"`
	PlanID    string    `json:"planId" bson:"plan_id"`
	StartDate time.Time `json:"startDate" bson:"start_date"`
	// EndDate is set when access is scheduled to end: cancel-at-period-end
	// and expiry both record the cutoff here.
	EndDate           *time.Time `json:"endDate,omitempty" bson:"end_date,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancelAtPeriodEnd" bson:"cancel_at_period_end"`
	TrialEndsAt       *time.Time `json:"trialEndsAt,omitempty" bson:"trial_ends_at,omitempty"`

	CurrentPeriodStart time.Time `json:"currentPeriodStart" bson:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"currentPeriodEnd" bson:"current_period_end"`

	// ScheduledPlanID holds a pending downgrade, applied at the next
	// period rollover. Downgrades never take effect immediately.
	ScheduledPlanID string `json:"scheduledPlanId,omitempty" bson:"scheduled_plan_id,omitempty"`

	GenerationsToday      int64     `json:"generationsToday" bson:"generations_today"`
	GenerationsThisPeriod int64     `json:"generationsThisPeriod" bson:"generations_this_period"`
	LastGenerationAt      time.Time `json:"lastGenerationAt,omitempty" bson:"last_generation_at,omitempty"`

	PaymentProvider string `json:"paymentProvider,omitempty" bson:"payment_provider,omitempty"` // e.g. "paddle", "app_store", "google_play"
	ProviderSubID   string `json:"externalSubscriptionId,omitempty" bson:"provider_sub_id,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// IsPremium reports whether the subscription is on a paid tier,
// regardless of lifecycle status.
func (s *Subscription) IsPremium() bool {
	return s.Tier != plan.TierFree
}

// IsActiveAt reports whether the subscription grants access at the given
// instant. Trial and active always do; a canceled subscription keeps grace
// access until its EndDate; expired never does.
func (s *Subscription) IsActiveAt(now time.Time) bool {
	switch s.Status {
	case StatusTrial, StatusActive:
		return true
	case StatusCanceled:
		return s.EndDate != nil && now.UTC().Before(s.EndDate.UTC())
	case StatusExpired:
		return false
	default:
		return false
	}
}

// IsTrialExpiredAt reports whether the trial window has lapsed.
func (s *Subscription) IsTrialExpiredAt(now time.Time) bool {
	if s.TrialEndsAt == nil {
		return false
	}
	return now.UTC().After(s.TrialEndsAt.UTC())
}

// HasPaymentOnFile reports whether a payment provider reference exists,
// which decides whether a lapsed trial promotes to active or expires.
func (s *Subscription) HasPaymentOnFile() bool {
	return s.ProviderSubID != ""
}

// dayStartUTC truncates t to the start of its UTC day. The quota day is
// server-defined, not client-local, so two devices in different timezones
// always agree on which day a generation lands in.
func dayStartUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ResetBoundaryAt returns the next instant the daily counter resets:
// UTC midnight following the last recorded generation, or following now
// when the counter is already fresh.
func (s *Subscription) ResetBoundaryAt(now time.Time) time.Time {
	now = now.UTC()
	if s.LastGenerationAt.IsZero() {
		return dayStartUTC(now).AddDate(0, 0, 1)
	}
	boundary := dayStartUTC(s.LastGenerationAt).AddDate(0, 0, 1)
	if !boundary.After(now) {
		return dayStartUTC(now).AddDate(0, 0, 1)
	}
	return boundary
}

// GenerationsTodayAt returns today's consumption as of the given instant,
// treating a crossed reset boundary as an already-zeroed counter. The
// stored counter may lag; this is the lazily-reset view every decision
// uses, so correctness never depends on a sweeper running on time.
func (s *Subscription) GenerationsTodayAt(now time.Time) int64 {
	if s.LastGenerationAt.IsZero() {
		return 0
	}
	if dayStartUTC(s.LastGenerationAt).Before(dayStartUTC(now)) {
		return 0
	}
	return s.GenerationsToday
}

// RemainingAt returns the generations left today under the given plan,
// floored at zero, or plan.Unlimited when the plan has no quota.
func (s *Subscription) RemainingAt(p plan.Plan, now time.Time) int64 {
	if p.DailyGenerations == plan.Unlimited {
		return plan.Unlimited
	}
	return max(0, p.DailyGenerations-s.GenerationsTodayAt(now))
}

// CanConsumeAt is the quota enforcement gate: it decides whether a metered
// action may proceed right now. It has no side effects; recording the
// consumption is a separate explicit step taken only after the gated
// action actually succeeds.
func (s *Subscription) CanConsumeAt(p plan.Plan, now time.Time) bool {
	if !s.IsActiveAt(now) {
		return false
	}
	if p.DailyGenerations == plan.Unlimited {
		return true
	}
	return s.RemainingAt(p, now) > 0
}

// UsageAt derives the usage snapshot for the given instant.
func (s *Subscription) UsageAt(p plan.Plan, now time.Time) UsageSnapshot {
	return UsageSnapshot{
		GenerationsToday:      s.GenerationsTodayAt(now),
		GenerationsThisPeriod: s.GenerationsThisPeriod,
		Limit:                 p.DailyGenerations,
		CanGenerate:           s.CanConsumeAt(p, now),
		ResetsAt:              s.ResetBoundaryAt(now),
	}
}

// ApplyGeneration records one consumed generation. If the reset boundary
// has been crossed since the last generation, the increment lands on a
// freshly zeroed counter. Reset and increment are one step: callers must
// apply this under the store's atomicity guarantee (a lock or a single
// conditional update), so a boundary-straddling call never loses nor
// double-counts the action.
func ApplyGeneration(s *Subscription, now time.Time) {
	now = now.UTC()
	if s.GenerationsTodayAt(now) == 0 {
		s.GenerationsToday = 1
	} else {
		s.GenerationsToday++
	}
	s.GenerationsThisPeriod++
	s.LastGenerationAt = now
	s.UpdatedAt = now
}

// DueForSweepAt reports whether the maintenance sweep has pending work for
// this record: a lapsed trial, a lapsed cancellation, a finished billing
// period, or a daily counter left stale past its boundary.
func (s *Subscription) DueForSweepAt(now time.Time) bool {
	now = now.UTC()
	if s.Status == StatusTrial && s.IsTrialExpiredAt(now) {
		return true
	}
	if s.Status == StatusCanceled && s.EndDate != nil && !now.Before(s.EndDate.UTC()) {
		return true
	}
	if s.Status != StatusExpired && !now.Before(s.CurrentPeriodEnd.UTC()) {
		return true
	}
	if s.GenerationsToday > 0 && s.GenerationsTodayAt(now) == 0 {
		return true
	}
	return false
}

// clone returns a deep copy so store implementations never hand out
// aliased pointers.
func (s *Subscription) clone() *Subscription {
	out := *s
	if s.OrganizationID != nil {
		id := *s.OrganizationID
		out.OrganizationID = &id
	}
	if s.EndDate != nil {
		t := *s.EndDate
		out.EndDate = &t
	}
	if s.TrialEndsAt != nil {
		t := *s.TrialEndsAt
		out.TrialEndsAt = &t
	}
	return &out
}
