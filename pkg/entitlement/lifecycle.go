package entitlement

import "time"

// The lifecycle table maps (status, event) pairs to guarded transitions.
// Multiple entries per pair are allowed; the first entry whose guard passes
// wins, which lets trial expiry branch on whether payment is on file.
// An entry may instead carry a rejection error, so invalid requests are
// reported with a specific reason and no state mutation.
type transition struct {
	to     Status
	guard  func(s *Subscription, now time.Time) bool
	apply  func(s *Subscription, now time.Time)
	reject error
}

var lifecycle = map[Status]map[Event][]transition{
	StatusTrial: {
		EventTrialElapsed: {
			{
				guard: func(s *Subscription, now time.Time) bool {
					return s.IsTrialExpiredAt(now) && s.HasPaymentOnFile()
				},
				to:    StatusActive,
				apply: promoteFromTrial,
			},
			{
				guard: func(s *Subscription, now time.Time) bool {
					return s.IsTrialExpiredAt(now)
				},
				to:    StatusExpired,
				apply: expire,
			},
		},
		EventCancel: {
			{to: StatusCanceled, apply: scheduleCancellation},
		},
	},
	StatusActive: {
		EventCancel: {
			{to: StatusCanceled, apply: scheduleCancellation},
		},
		EventPaymentAccepted: {
			{to: StatusActive, apply: renewPeriod},
		},
		// A billed period that ran out without a payment loses access.
		// Free-cadence records never fire this; their periods roll in the
		// maintenance sweep instead.
		EventPeriodElapsed: {
			{
				guard: func(s *Subscription, now time.Time) bool {
					return !now.UTC().Before(s.CurrentPeriodEnd.UTC())
				},
				to:    StatusExpired,
				apply: expire,
			},
		},
	},
	StatusCanceled: {
		EventResume: {
			{
				guard: func(s *Subscription, now time.Time) bool {
					return s.EndDate != nil && now.UTC().Before(s.EndDate.UTC())
				},
				to:    StatusActive,
				apply: clearCancellation,
			},
			{reject: ErrSubscriptionExpired},
		},
		EventPeriodElapsed: {
			{
				guard: func(s *Subscription, now time.Time) bool {
					return s.EndDate != nil && !now.UTC().Before(s.EndDate.UTC())
				},
				to:    StatusExpired,
				apply: expire,
			},
		},
		EventCancel: {
			{reject: ErrAlreadyCanceled},
		},
	},
	StatusExpired: {
		EventCancel: {
			{reject: ErrSubscriptionExpired},
		},
		EventResume: {
			{reject: ErrSubscriptionExpired},
		},
		// Re-entering active via a new payment starts a fresh lifecycle
		// rather than transitioning out of the terminal state.
		EventPaymentAccepted: {
			{to: StatusActive, apply: restartLifecycle},
		},
	},
}

// Fire applies the lifecycle event to the subscription in place.
// On any error the subscription is left untouched.
func Fire(s *Subscription, event Event, now time.Time) error {
	transitions, ok := lifecycle[s.Status][event]
	if !ok || len(transitions) == 0 {
		return &InvalidTransitionError{Status: s.Status, Event: event}
	}

	for i := range transitions {
		t := &transitions[i]
		if t.guard != nil && !t.guard(s, now) {
			continue
		}
		if t.reject != nil {
			return t.reject
		}
		if t.apply != nil {
			t.apply(s, now)
		}
		s.Status = t.to
		s.UpdatedAt = now.UTC()
		return nil
	}

	return &InvalidTransitionError{Status: s.Status, Event: event}
}

// CanFire reports whether the event would be accepted without applying it.
func CanFire(s *Subscription, event Event, now time.Time) bool {
	transitions, ok := lifecycle[s.Status][event]
	if !ok {
		return false
	}
	for i := range transitions {
		t := &transitions[i]
		if t.guard != nil && !t.guard(s, now) {
			continue
		}
		return t.reject == nil
	}
	return false
}

// scheduleCancellation keeps access unchanged until the period end and
// records the cutoff.
func scheduleCancellation(s *Subscription, now time.Time) {
	end := s.CurrentPeriodEnd.UTC()
	s.CancelAtPeriodEnd = true
	s.EndDate = &end
}

// clearCancellation restores the pre-cancel state exactly: tier, plan, and
// period stay untouched, only the cancellation markers are dropped.
func clearCancellation(s *Subscription, now time.Time) {
	s.CancelAtPeriodEnd = false
	s.EndDate = nil
}

func expire(s *Subscription, now time.Time) {
	now = now.UTC()
	if s.EndDate == nil {
		s.EndDate = &now
	}
	s.CancelAtPeriodEnd = false
	s.ScheduledPlanID = ""
}

// promoteFromTrial converts a paid-up trial into a regular active period
// starting at the trial's end.
func promoteFromTrial(s *Subscription, now time.Time) {
	start := now.UTC()
	if s.TrialEndsAt != nil {
		start = s.TrialEndsAt.UTC()
	}
	s.CurrentPeriodStart = start
	s.CurrentPeriodEnd = nextPeriodEnd(start)
	s.TrialEndsAt = nil
}

// renewPeriod rolls the billing period forward on a successful payment.
func renewPeriod(s *Subscription, now time.Time) {
	start := s.CurrentPeriodEnd.UTC()
	if start.Before(now.UTC()) {
		start = now.UTC()
	}
	s.CurrentPeriodStart = start
	s.CurrentPeriodEnd = nextPeriodEnd(start)
	s.GenerationsThisPeriod = 0
}

// restartLifecycle re-activates an expired record with fresh dates,
// modeling the "new subscription lifecycle" a new payment opens.
func restartLifecycle(s *Subscription, now time.Time) {
	now = now.UTC()
	s.StartDate = now
	s.CurrentPeriodStart = now
	s.CurrentPeriodEnd = nextPeriodEnd(now)
	s.EndDate = nil
	s.CancelAtPeriodEnd = false
	s.ScheduledPlanID = ""
	s.GenerationsToday = 0
	s.GenerationsThisPeriod = 0
}

// nextPeriodEnd advances one billing period from the given start.
// Every catalog plan bills monthly, and free-tier records roll at the
// same cadence so usage periods keep advancing.
func nextPeriodEnd(start time.Time) time.Time {
	return start.AddDate(0, 1, 0)
}
