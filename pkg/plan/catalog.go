package plan

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Source defines how plans are loaded into the catalog.
type Source interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// Catalog is the static, process-wide plan table. It is loaded once at
// construction, validated, and immutable thereafter.
type Catalog struct {
	byID   map[string]Plan
	byTier map[Tier]Plan
}

// NewCatalog loads and validates plans from the given source.
// Panics if src is nil to fail fast during initialization.
func NewCatalog(ctx context.Context, src Source) (*Catalog, error) {
	if src == nil {
		panic("plan: Source is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	c := &Catalog{
		byID:   make(map[string]Plan, len(plans)),
		byTier: make(map[Tier]Plan, len(plans)),
	}
	for id, p := range plans {
		c.byID[id] = p
		c.byTier[p.Tier] = p
	}
	return c, nil
}

// ByID returns the plan with the given identifier.
func (c *Catalog) ByID(planID string) (Plan, error) {
	p, ok := c.byID[planID]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

// ByTier returns the plan configured for the given tier.
func (c *Catalog) ByTier(tier Tier) (Plan, error) {
	p, ok := c.byTier[tier]
	if !ok {
		return Plan{}, ErrTierNotFound
	}
	return p, nil
}

// MustByTier returns the plan for the given tier and panics on a miss.
// The catalog is static, so a missing tier is a programming error,
// not a recoverable condition.
func (c *Catalog) MustByTier(tier Tier) Plan {
	p, err := c.ByTier(tier)
	if err != nil {
		panic(fmt.Sprintf("plan: no plan configured for tier %q", tier))
	}
	return p
}

// All returns the plans ordered by tier rank, for display surfaces.
func (c *Catalog) All() []Plan {
	plans := slices.Collect(maps.Values(c.byID))
	slices.SortFunc(plans, func(a, b Plan) int {
		return a.Tier.Rank() - b.Tier.Rank()
	})
	return plans
}

// validatePlans ensures the catalog is internally consistent: known tiers,
// exactly one plan per tier, matching map keys, sane limits.
func validatePlans(plans map[string]Plan) error {
	if len(plans) == 0 {
		return errors.Join(ErrInvalidConfiguration, errors.New("catalog is empty"))
	}

	seen := make(map[Tier]string, len(plans))
	for planID, p := range plans {
		if p.ID != planID {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("plan ID mismatch: map key %s != plan.ID %s", planID, p.ID))
		}
		if !p.Tier.Valid() {
			return errors.Join(ErrInvalidConfiguration, ErrInvalidTier,
				fmt.Errorf("plan %s has unknown tier %q", planID, p.Tier))
		}
		if other, dup := seen[p.Tier]; dup {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("tier %s is configured by both %s and %s", p.Tier, other, planID))
		}
		seen[p.Tier] = planID

		if p.DailyGenerations < Unlimited {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("plan %s has invalid daily generation limit: %d", planID, p.DailyGenerations))
		}
		if p.TrialDays < 0 {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("plan %s has negative trial days: %d", planID, p.TrialDays))
		}
		if p.MaxUsers < 1 {
			return errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("plan %s has invalid max user count: %d", planID, p.MaxUsers))
		}
	}
	return nil
}

// inMemSource implements Source using an in-memory plan map.
type inMemSource struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewInMemSource returns an in-memory Source with a deep copy of the given plans.
func NewInMemSource(plans map[string]Plan) Source {
	return &inMemSource{plans: clonePlans(plans)}
}

// Load returns a copy of all available plans from memory.
func (s *inMemSource) Load(ctx context.Context) (map[string]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePlans(s.plans), nil
}

func clonePlans(plans map[string]Plan) map[string]Plan {
	out := make(map[string]Plan, len(plans))
	for id, p := range plans {
		p.Features = slices.Clone(p.Features)
		out[id] = p
	}
	return out
}
