package plan

import "errors"

var (
	ErrPlanNotFound         = errors.New("plan not found")
	ErrTierNotFound         = errors.New("no plan configured for tier")
	ErrInvalidTier          = errors.New("invalid subscription tier")
	ErrInvalidConfiguration = errors.New("invalid plan catalog configuration")
	ErrFailedToLoadPlans    = errors.New("failed to load plan catalog")
)
