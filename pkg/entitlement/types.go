package entitlement

import "time"

// Status represents the lifecycle state of a subscription.
type Status string

const (
	StatusTrial    Status = "trial"
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled" // cancel requested, grace access until EndDate
	StatusExpired  Status = "expired"  // terminal for the period
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusTrial, StatusActive, StatusCanceled, StatusExpired:
		return true
	default:
		return false
	}
}

// Event triggers a lifecycle transition.
type Event string

const (
	EventCancel          Event = "cancel"
	EventResume          Event = "resume"
	EventTrialElapsed    Event = "trial_elapsed"
	EventPeriodElapsed   Event = "period_elapsed"
	EventPaymentAccepted Event = "payment_accepted"
)

// Platform identifies a mobile store a purchase receipt originates from.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// UsageSnapshot is the derived view of a user's consumption against the
// plan quota. It is recomputed on every read and never persisted as a
// source of truth; the subscription record's counters stay authoritative.
type UsageSnapshot struct {
	GenerationsToday      int64     `json:"generationsToday"`
	GenerationsThisPeriod int64     `json:"generationsThisPeriod"`
	Limit                 int64     `json:"limit"` // plan.Unlimited for premium tiers
	CanGenerate           bool      `json:"canGenerate"`
	ResetsAt              time.Time `json:"resetsAt"`
}
