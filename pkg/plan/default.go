package plan

// Default returns the built-in receipt-app catalog: a metered free tier and
// two unlimited premium tiers. Plan IDs double as the payment provider's
// price identifiers.
func Default() map[string]Plan {
	return map[string]Plan{
		"free": {
			ID:          "free",
			Tier:        TierFree,
			Name:        "Free",
			Description: "Perfect for trying out the product",
			Price:       Money{Amount: 0, Currency: "USD"},
			Interval:    BillingIntervalNone,
			Features: []string{
				"5 receipt generations per day",
				"Basic receipt templates",
				"Email support",
				"Mobile app access",
			},
			DailyGenerations: 5,
			MaxUsers:         1,
		},
		"premium_single": {
			ID:          "premium_single",
			Tier:        TierPremiumSingle,
			Name:        "Premium Single",
			Description: "Unlimited receipts for individuals",
			Price:       Money{Amount: 999, Currency: "USD"},
			Interval:    BillingIntervalMonthly,
			Features: []string{
				"Unlimited receipt generations",
				"All receipt templates",
				"Priority email support",
				"Mobile app access",
				"Cloud storage",
				"Export to PDF/CSV",
			},
			DailyGenerations: Unlimited,
			MaxUsers:         1,
			TrialDays:        14,
		},
		"premium_org": {
			ID:          "premium_org",
			Tier:        TierPremiumOrg,
			Name:        "Premium Organization",
			Description: "Perfect for teams",
			Price:       Money{Amount: 2999, Currency: "USD"},
			Interval:    BillingIntervalMonthly,
			Features: []string{
				"Everything in Premium Single",
				"Up to 5 team members",
				"Shared receipt templates",
				"Team collaboration",
				"Advanced analytics",
				"Priority support",
				"Admin dashboard",
			},
			DailyGenerations: Unlimited,
			MaxUsers:         5,
			TrialDays:        14,
		},
	}
}
