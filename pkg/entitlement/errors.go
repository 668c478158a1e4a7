package entitlement

import (
	"errors"
	"fmt"
)

var (
	ErrSubscriptionNotFound      = errors.New("subscription not found")
	ErrSubscriptionAlreadyExists = errors.New("subscription already exists")
	ErrSubscriptionExpired       = errors.New("subscription has expired")
	ErrAlreadyCanceled           = errors.New("subscription is already canceled")
	ErrSamePlan                  = errors.New("subscription already on requested plan")
	ErrInvalidStatus             = errors.New("invalid subscription status")

	ErrNoBillingProvider  = errors.New("no billing provider configured")
	ErrNoPurchaseVerifier = errors.New("no purchase verifier configured")

	ErrStoreUnreachable = errors.New("subscription store unreachable")

	// Provider errors
	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")
	ErrNoCheckoutURL             = errors.New("no checkout URL returned from provider")
	ErrNoPortalURL               = errors.New("no portal URL returned from provider")
	ErrMissingUserID             = errors.New("user ID is required")
	ErrMissingPriceID            = errors.New("price ID is required")
)

// InvalidTransitionError indicates a lifecycle event fired from a status
// that has no transition for it. The subscription is never mutated.
type InvalidTransitionError struct {
	Status Status
	Event  Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("no transition from status %q for event %q", e.Status, e.Event)
}

func IsInvalidTransitionError(err error) bool {
	var e *InvalidTransitionError
	return errors.As(err, &e)
}
