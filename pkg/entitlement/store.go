package entitlement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines the interface for subscription persistence. The record is
// exclusively owned and mutated through these operations; no other
// component writes it directly.
type Store interface {
	// Get retrieves a subscription by user ID.
	// Returns ErrSubscriptionNotFound if no subscription exists.
	Get(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// Save creates or updates a subscription, keyed by UserID.
	Save(ctx context.Context, sub *Subscription) error

	// RecordGeneration applies one consumed generation as an atomic
	// read-modify-write (increment-and-return, never read-then-write):
	// concurrent writers from multiple devices must not lose increments,
	// and a reset boundary crossing must land the increment on a freshly
	// zeroed counter in the same step.
	RecordGeneration(ctx context.Context, userID uuid.UUID, now time.Time) (*Subscription, error)

	// ListDue returns subscriptions with pending sweep work at the given
	// instant (see Subscription.DueForSweepAt).
	ListDue(ctx context.Context, now time.Time) ([]*Subscription, error)
}

// UsageCache is an optional read-efficiency layer for daily counters,
// typically Redis. It can only tighten the quota gate: the engine takes
// the max of the cached and stored counts, so a lagging cache never grants
// extra generations. Cache failures are logged and ignored.
type UsageCache interface {
	// Increment bumps the counter for the user's quota day containing t
	// and returns the new value.
	Increment(ctx context.Context, userID uuid.UUID, t time.Time) (int64, error)

	// Today returns the counter for the user's quota day containing t.
	// Missing keys count as zero.
	Today(ctx context.Context, userID uuid.UUID, t time.Time) (int64, error)
}
