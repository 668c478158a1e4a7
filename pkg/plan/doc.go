// Package plan defines the static subscription plan catalog: tiers, pricing,
// feature lists, and the daily receipt-generation quota attached to each tier.
//
// The catalog is loaded once at startup from a Source and is immutable
// afterwards. Tiers form a strict total order (free < premium_single <
// premium_org) exposed via Tier.Rank, which callers use to classify plan
// changes as upgrades or downgrades. Rank is never used for limit lookup.
//
// Basic usage:
//
//	catalog, err := plan.NewCatalog(ctx, plan.NewInMemSource(plan.Default()))
//	if err != nil {
//	    // invalid catalog configuration
//	}
//
//	p, err := catalog.ByTier(plan.TierFree)
//	if err != nil {
//	    // unknown tier
//	}
//	if p.DailyGenerations != plan.Unlimited {
//	    // metered tier
//	}
//
// A request for an unknown tier through MustByTier panics: the catalog is
// process-wide static data, so a miss is a programming error rather than a
// recoverable user-facing condition.
package plan
