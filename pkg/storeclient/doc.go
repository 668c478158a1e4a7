// Package storeclient is the HTTP/JSON client for the backing-store API
// that owns subscription records. It implements entitlement.Store and
// entitlement.PurchaseVerifier against the REST contract:
//
//	GET    /subscriptions/{userID}
//	GET    /subscriptions/{userID}/usage
//	POST   /subscriptions/{userID}/track-generation
//	POST   /subscriptions/{userID}/cancel
//	POST   /subscriptions/{userID}/resume
//	POST   /subscriptions/{userID}/verify-purchase
//	POST   /subscriptions
//	PUT    /subscriptions/{userID}
//	GET    /subscriptions/due
//
// Idempotent reads are retried; writes are not (the backend treats
// track-generation as at-least-once and de-duplicates on the correlation
// id the client sends with every call). Transport failures are wrapped in
// entitlement.ErrStoreUnreachable so callers can fall back to a cached
// view instead of failing the gated action outright.
package storeclient
