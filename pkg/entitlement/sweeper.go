package entitlement

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs the maintenance sweep on a fixed wall-clock interval so
// long-idle sessions still see fresh counters without an explicit
// consumption call. It is an optimization, not a source of truth: the
// lazy atomic reset in the read path carries correctness even if the
// sweeper never ticks.
type Sweeper struct {
	svc      Service
	interval time.Duration
	log      *slog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets how often the sweep runs. Must stay sub-daily;
// the default is one hour.
func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithSweeperLogger sets the sweeper's logger. Defaults to slog.Default().
func WithSweeperLogger(log *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSweeper creates a sweeper driving the given service.
// Panics if svc is nil to fail fast during initialization.
func NewSweeper(svc Service, opts ...SweeperOption) *Sweeper {
	if svc == nil {
		panic("entitlement: service is required")
	}

	s := &Sweeper{
		svc:      svc,
		interval: time.Hour,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the sweep loop until the context is canceled. One sweep runs
// immediately so every session gets at least one check, then the ticker
// takes over.
func (s *Sweeper) Start(ctx context.Context) error {
	s.log.InfoContext(ctx, "starting entitlement sweeper",
		slog.Duration("interval", s.interval))

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.InfoContext(ctx, "entitlement sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if err := s.svc.Sweep(ctx); err != nil {
		s.log.ErrorContext(ctx, "entitlement sweep failed", slog.Any("error", err))
	}
}
