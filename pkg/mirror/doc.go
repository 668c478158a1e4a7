// Package mirror keeps a local, disposable shadow of a user's
// subscription and usage for low-latency UI decisions while the
// authoritative record lives in the backing store.
//
// On every successful metered action the mirror applies an optimistic
// local increment, then asynchronously writes the consumption through to
// the authoritative store and installs the record the write returns. The
// authoritative value always wins on reconciliation: the local increment
// is a same-session smoothing mechanism, never a source of truth.
// Installs are last-fetch-wins, so a superseded result cannot overwrite
// a newer one, and a failed write leaves the optimistic value in place,
// marking the mirror stale ("using cached status") until the next
// successful fetch. The write itself is never skipped.
//
// The mirror is discarded on logout or explicit refresh; it has a shorter
// lifetime than the record it shadows.
package mirror
