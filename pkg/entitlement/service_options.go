package entitlement

import (
	"log/slog"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

// WithClock overrides the wall clock. Every time-dependent decision in the
// service flows through this single seam, which is how tests pin "now".
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger used for maintenance sweeps and best-effort
// cache operations. Defaults to slog.Default().
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithBillingProvider enables checkout links, customer portals, and
// webhook handling. Without it those operations return ErrNoBillingProvider.
func WithBillingProvider(provider BillingProvider) ServiceOption {
	return func(s *service) {
		if provider != nil {
			s.provider = provider
		}
	}
}

// WithPurchaseVerifier enables the mobile store receipt path.
func WithPurchaseVerifier(verifier PurchaseVerifier) ServiceOption {
	return func(s *service) {
		if verifier != nil {
			s.verifier = verifier
		}
	}
}

// WithUsageCache attaches a read-efficiency cache for daily counters.
// The store's counters stay authoritative; the cache can only tighten the
// gate, never loosen it.
func WithUsageCache(cache UsageCache) ServiceOption {
	return func(s *service) {
		if cache != nil {
			s.cache = cache
		}
	}
}
