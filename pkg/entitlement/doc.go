// Package entitlement decides, per user, whether a metered receipt
// generation is currently permitted, tracks consumption against the
// tier-specific daily quota, and manages the subscription lifecycle
// (trial, active, canceled-pending, expired) including period-based
// resets.
//
// # Architecture
//
// The package separates deciding from recording:
//
//   - Subscription: the record owned by the backing store, with pure
//     clock-explicit evaluators (IsActiveAt, RemainingAt, CanConsumeAt)
//   - Service: the engine surface, constructed with an injected Store,
//     plan catalog, clock, and optional billing provider and usage cache
//   - Fire: the lifecycle state machine applying guarded transitions
//   - Sweeper: a periodic maintenance pass for idle records
//
// CanConsume is the single authorization point for metered actions and has
// no side effects. RecordConsumption is the separate, explicit command
// issued only after the gated action succeeded, so a failed action never
// consumes quota. The store performs the increment as an atomic
// read-modify-write; crossing the daily reset boundary zeroes the counter
// and applies the increment in the same step.
//
// # Quick start
//
//	catalog, _ := plan.NewCatalog(ctx, plan.NewInMemSource(plan.Default()))
//	svc := entitlement.NewService(catalog, entitlement.NewMemoryStore())
//
//	ok, err := svc.CanConsume(ctx, userID)
//	if err != nil || !ok {
//	    // deny the action; a false result is a decision, not an error
//	}
//	// ... perform the metered action ...
//	if _, err := svc.RecordConsumption(ctx, userID); err != nil {
//	    // surface, the action itself already succeeded
//	}
//
// Lifecycle requests (RequestCancel, RequestResume, RequestUpgrade) are
// rejected with specific sentinel errors when invalid (resume after the
// end date, cancel on an already-canceled record, downgrade-now) and
// never mutate state on rejection.
//
// The daily quota day is server-defined UTC, so devices in different
// timezones agree on when the counter resets.
package entitlement
