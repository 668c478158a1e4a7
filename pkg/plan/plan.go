package plan

import "time"

// Tier is the subscription class determining feature set and quota.
type Tier string

const (
	TierFree          Tier = "free"
	TierPremiumSingle Tier = "premium_single"
	TierPremiumOrg    Tier = "premium_org"
)

// Rank returns the position of the tier in the strict total order
// free < premium_single < premium_org. It is used only to classify plan
// changes as upgrades or downgrades, never to look up limits.
// Unknown tiers rank below free so a corrupted record can never be
// mistaken for a paid plan.
func (t Tier) Rank() int {
	switch t {
	case TierFree:
		return 0
	case TierPremiumSingle:
		return 1
	case TierPremiumOrg:
		return 2
	default:
		return -1
	}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	return t.Rank() >= 0
}

// Unlimited marks a quota with no limit (-1 chosen for SQL compatibility).
const Unlimited int64 = -1

// Money represents a monetary amount in the smallest currency unit.
// For example, $9.99 USD is Amount: 999, Currency: "USD".
type Money struct {
	Amount   int64
	Currency string // ISO 4217 currency code
}

// BillingInterval represents the billing frequency for a subscription plan.
type BillingInterval string

const (
	BillingIntervalNone    BillingInterval = "none" // free plans with no billing
	BillingIntervalMonthly BillingInterval = "monthly"
	BillingIntervalAnnual  BillingInterval = "annual"
)

// Plan describes a purchasable offering tied to a tier.
// The ID field should be set to the payment provider's price ID for paid
// plans so checkout and webhook processing can map back to the catalog.
type Plan struct {
	ID          string
	Tier        Tier
	Name        string
	Description string
	Price       Money
	Interval    BillingInterval
	Features    []string // ordered, display-ready feature descriptions
	// DailyGenerations is the receipt-generation quota per day,
	// or Unlimited for premium tiers.
	DailyGenerations int64
	MaxUsers         int
	TrialDays        int
}

// TrialEndsAt calculates when the trial period ends.
// Returns startedAt unchanged if the plan has no trial.
func (p Plan) TrialEndsAt(startedAt time.Time) time.Time {
	if p.TrialDays <= 0 {
		return startedAt
	}
	return startedAt.AddDate(0, 0, p.TrialDays).UTC()
}

// HasTrial reports whether a trial window is configured for the plan.
func (p Plan) HasTrial() bool {
	return p.TrialDays > 0
}

// IsMetered reports whether the plan has a finite daily generation quota.
func (p Plan) IsMetered() bool {
	return p.DailyGenerations != Unlimited
}
