package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/receiptly/entitlement/pkg/plan"
)

// Service is the engine surface exposed to callers. Every metered action
// must pass CanConsume before proceeding, and RecordConsumption only after
// the action actually succeeded, so a failed action never burns quota.
type Service interface {
	// Quota gate and usage
	CanConsume(ctx context.Context, userID uuid.UUID) (bool, error)
	RecordConsumption(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	Remaining(ctx context.Context, userID uuid.UUID) (int64, error)
	Usage(ctx context.Context, userID uuid.UUID) (*UsageSnapshot, error)

	// Entitlement evaluation
	IsPremium(ctx context.Context, userID uuid.UUID) bool
	IsActive(ctx context.Context, userID uuid.UUID) bool
	GetSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// Lifecycle
	CreateSubscription(ctx context.Context, userID uuid.UUID, planID string, opts CheckoutOptions) (*CheckoutLink, error)
	RequestCancel(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	RequestResume(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	RequestUpgrade(ctx context.Context, userID uuid.UUID, planID string) (*Subscription, error)
	VerifyPurchase(ctx context.Context, userID uuid.UUID, receipt string, platform Platform) (*Subscription, error)

	// Billing provider interactions
	GetCustomerPortalLink(ctx context.Context, userID uuid.UUID) (*PortalLink, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error

	// Maintenance
	Sweep(ctx context.Context) error
}

// CheckoutOptions contains options for creating a checkout session.
type CheckoutOptions struct {
	Email      string // pre-fill billing email if known
	SuccessURL string // redirect after successful payment
	CancelURL  string // redirect if the customer backs out
}

type service struct {
	catalog  *plan.Catalog
	store    Store
	provider BillingProvider
	verifier PurchaseVerifier
	cache    UsageCache
	clock    func() time.Time
	log      *slog.Logger
}

// NewService creates the entitlement service with injected dependencies.
// Panics if catalog or store is nil to fail fast during initialization.
func NewService(catalog *plan.Catalog, store Store, opts ...ServiceOption) Service {
	if catalog == nil {
		panic("entitlement: plan catalog is required")
	}
	if store == nil {
		panic("entitlement: store is required")
	}

	s := &service{
		catalog: catalog,
		store:   store,
		clock:   func() time.Time { return time.Now().UTC() },
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// snapshot derives the usage view for a subscription, folding in the usage
// cache when one is attached. The cached count is only ever allowed to
// raise the effective count (another device may have consumed since our
// record was fetched), so a lagging cache can never grant extra quota.
func (s *service) snapshot(ctx context.Context, sub *Subscription) (UsageSnapshot, error) {
	p, err := s.catalog.ByTier(sub.Tier)
	if err != nil {
		return UsageSnapshot{}, err
	}

	now := s.clock()
	snap := sub.UsageAt(p, now)

	if s.cache != nil && p.IsMetered() {
		if n, err := s.cache.Today(ctx, sub.UserID, now); err != nil {
			s.log.DebugContext(ctx, "usage cache read failed",
				slog.String("user_id", sub.UserID.String()),
				slog.Any("error", err))
		} else if n > snap.GenerationsToday {
			snap.GenerationsToday = n
			snap.CanGenerate = sub.IsActiveAt(now) && n < p.DailyGenerations
		}
	}

	return snap, nil
}

// CanConsume reports whether the user may generate a receipt right now.
// It only decides; it has no side effects.
func (s *service) CanConsume(ctx context.Context, userID uuid.UUID) (bool, error) {
	sub, err := s.store.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	snap, err := s.snapshot(ctx, sub)
	if err != nil {
		return false, err
	}
	return snap.CanGenerate, nil
}

// RecordConsumption records one consumed generation through the store's
// atomic increment and returns the updated record. Callers invoke this
// only after the gated action succeeded.
func (s *service) RecordConsumption(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	sub, err := s.store.RecordGeneration(ctx, userID, s.clock())
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if _, err := s.cache.Increment(ctx, userID, sub.LastGenerationAt); err != nil {
			s.log.WarnContext(ctx, "usage cache increment failed",
				slog.String("user_id", userID.String()),
				slog.Any("error", err))
		}
	}

	return sub, nil
}

// Remaining returns today's generations left, or plan.Unlimited.
func (s *service) Remaining(ctx context.Context, userID uuid.UUID) (int64, error) {
	snap, err := s.Usage(ctx, userID)
	if err != nil {
		return 0, err
	}
	if snap.Limit == plan.Unlimited {
		return plan.Unlimited, nil
	}
	return max(0, snap.Limit-snap.GenerationsToday), nil
}

// Usage returns the derived usage snapshot for the user.
func (s *service) Usage(ctx context.Context, userID uuid.UUID) (*UsageSnapshot, error) {
	sub, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, sub)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// IsPremium reports whether the user is on a paid tier.
// Returns false on any error to fail closed.
func (s *service) IsPremium(ctx context.Context, userID uuid.UUID) bool {
	sub, err := s.store.Get(ctx, userID)
	if err != nil {
		return false
	}
	return sub.IsPremium()
}

// IsActive reports whether the subscription currently grants access.
// Returns false on any error to fail closed.
func (s *service) IsActive(ctx context.Context, userID uuid.UUID) bool {
	sub, err := s.store.Get(ctx, userID)
	if err != nil {
		return false
	}
	return sub.IsActiveAt(s.clock())
}

func (s *service) GetSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	return s.store.Get(ctx, userID)
}

// CreateSubscription starts a new subscription. Free plans activate
// instantly and skip the payment provider entirely; paid plans return a
// checkout handoff and the record is created when the provider webhook
// confirms payment.
func (s *service) CreateSubscription(ctx context.Context, userID uuid.UUID, planID string, opts CheckoutOptions) (*CheckoutLink, error) {
	p, err := s.catalog.ByID(planID)
	if err != nil {
		return nil, err
	}

	// Only an expired record may be replaced by a new lifecycle.
	if existing, err := s.store.Get(ctx, userID); err == nil {
		if existing.Status != StatusExpired {
			return nil, ErrSubscriptionAlreadyExists
		}
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}

	if p.Interval == plan.BillingIntervalNone {
		now := s.clock()
		if err := s.store.Save(ctx, newSubscription(userID, p, now)); err != nil {
			return nil, fmt.Errorf("failed to save free plan subscription: %w", err)
		}
		// Redirect straight to the success URL since no payment is needed.
		return &CheckoutLink{
			URL:       opts.SuccessURL,
			ExpiresAt: now.Add(5 * time.Minute),
		}, nil
	}

	if s.provider == nil {
		return nil, ErrNoBillingProvider
	}
	return s.provider.CreateCheckoutLink(ctx, CheckoutRequest{
		PriceID:    p.ID, // plan ID doubles as the provider's price ID
		UserID:     userID.String(),
		Email:      opts.Email,
		SuccessURL: opts.SuccessURL,
		CancelURL:  opts.CancelURL,
	})
}

// RequestCancel schedules cancellation at the period end. Access continues
// unchanged until then. Canceling an already-canceled or expired
// subscription is rejected with a specific reason and no mutation.
func (s *service) RequestCancel(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	return s.fireAndSave(ctx, userID, EventCancel)
}

// RequestResume clears a pending cancellation before the end date.
// After the end date the record has already expired and the caller must
// create a new subscription instead.
func (s *service) RequestResume(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	return s.fireAndSave(ctx, userID, EventResume)
}

func (s *service) fireAndSave(ctx context.Context, userID uuid.UUID, event Event) (*Subscription, error) {
	sub, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := Fire(sub, event, s.clock()); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// RequestUpgrade changes the subscription's plan. Upgrades take effect
// immediately; downgrades are never applied in place, they are recorded
// on the subscription and applied by the sweep at the next period start.
func (s *service) RequestUpgrade(ctx context.Context, userID uuid.UUID, planID string) (*Subscription, error) {
	target, err := s.catalog.ByID(planID)
	if err != nil {
		return nil, err
	}

	sub, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == StatusExpired {
		return nil, ErrSubscriptionExpired
	}
	if target.ID == sub.PlanID {
		return nil, ErrSamePlan
	}

	now := s.clock()
	if target.Tier.Rank() > sub.Tier.Rank() {
		applyUpgrade(sub, target, now)
	} else {
		// Downgrade: scheduled for the next period rollover.
		sub.ScheduledPlanID = target.ID
		sub.UpdatedAt = now
	}

	if err := s.store.Save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// applyUpgrade moves the record to the higher tier immediately and
// restores full active status: an upgrade is a re-commitment, so pending
// cancellations and scheduled downgrades are dropped.
func applyUpgrade(sub *Subscription, target plan.Plan, now time.Time) {
	sub.Tier = target.Tier
	sub.PlanID = target.ID
	sub.ScheduledPlanID = ""
	sub.Status = StatusActive
	sub.CancelAtPeriodEnd = false
	sub.EndDate = nil
	sub.TrialEndsAt = nil
	sub.UpdatedAt = now.UTC()
}

// VerifyPurchase validates a mobile store receipt and feeds the result
// through the same lifecycle machine as provider webhooks.
func (s *service) VerifyPurchase(ctx context.Context, userID uuid.UUID, receipt string, platform Platform) (*Subscription, error) {
	if s.verifier == nil {
		return nil, ErrNoPurchaseVerifier
	}

	vp, err := s.verifier.VerifyPurchase(ctx, userID.String(), receipt, platform)
	if err != nil {
		return nil, err
	}
	p, err := s.catalog.ByID(vp.PlanID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	sub, err := s.store.Get(ctx, userID)
	switch {
	case errors.Is(err, ErrSubscriptionNotFound):
		sub = newSubscription(userID, p, now)
		// A verified purchase is already paid for; no trial window.
		sub.Status = StatusActive
		sub.TrialEndsAt = nil
	case err != nil:
		return nil, err
	default:
		if err := acceptPayment(sub, now); err != nil {
			return nil, err
		}
	}

	sub.Tier = p.Tier
	sub.PlanID = p.ID
	sub.PaymentProvider = platform.providerName()
	sub.ProviderSubID = vp.ProviderSubID
	if !vp.ExpiresAt.IsZero() {
		sub.CurrentPeriodEnd = vp.ExpiresAt.UTC()
	}
	sub.UpdatedAt = now.UTC()

	if err := s.store.Save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// acceptPayment routes a confirmed payment into the lifecycle machine
// from whatever state the record is in.
func acceptPayment(sub *Subscription, now time.Time) error {
	switch sub.Status {
	case StatusActive, StatusExpired:
		return Fire(sub, EventPaymentAccepted, now)
	case StatusCanceled:
		// Payment on a canceled record restores it if the period is still
		// running, otherwise it reopens the expired lifecycle.
		if err := Fire(sub, EventResume, now); err == nil {
			return nil
		}
		if err := Fire(sub, EventPeriodElapsed, now); err != nil {
			return err
		}
		return Fire(sub, EventPaymentAccepted, now)
	case StatusTrial:
		// Early conversion: the paid period starts now, not at trial end.
		sub.Status = StatusActive
		sub.TrialEndsAt = nil
		sub.CurrentPeriodStart = now.UTC()
		sub.CurrentPeriodEnd = nextPeriodEnd(now.UTC())
		return nil
	default:
		return ErrInvalidStatus
	}
}

func (p Platform) providerName() string {
	switch p {
	case PlatformIOS:
		return "app_store"
	case PlatformAndroid:
		return "google_play"
	default:
		return string(p)
	}
}

// GetCustomerPortalLink returns a portal link for managing the subscription.
func (s *service) GetCustomerPortalLink(ctx context.Context, userID uuid.UUID) (*PortalLink, error) {
	if s.provider == nil {
		return nil, ErrNoBillingProvider
	}
	sub, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.ProviderSubID == "" {
		return nil, fmt.Errorf("no customer portal available for free plans")
	}
	return s.provider.GetCustomerPortalLink(ctx, sub)
}

// HandleWebhook processes a billing provider event. Events feed the same
// lifecycle machine as direct requests; idempotent-reject outcomes
// (cancel on already-canceled) are treated as no-ops since providers
// deliver at least once.
func (s *service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.provider == nil {
		return ErrNoBillingProvider
	}
	event, err := s.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		return err
	}

	userID, err := uuid.Parse(event.UserID)
	if err != nil {
		return fmt.Errorf("invalid user ID in webhook: %w", err)
	}

	now := s.clock()

	switch event.Type {
	case WebhookSubscriptionCreated:
		p, err := s.catalog.ByID(event.PlanID)
		if err != nil {
			return fmt.Errorf("webhook references unknown plan %q: %w", event.PlanID, err)
		}
		sub := newSubscription(userID, p, now)
		sub.ProviderSubID = event.SubscriptionID
		sub.PaymentProvider = "paddle"
		if event.Status == StatusActive {
			// Provider says no trial applies (e.g. repeat customer).
			sub.Status = StatusActive
			sub.TrialEndsAt = nil
		}
		if err := s.store.Save(ctx, sub); err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

	case WebhookSubscriptionUpdated:
		sub, err := s.store.Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("subscription not found for user %s: %w", userID, err)
		}
		if p, err := s.catalog.ByID(event.PlanID); err == nil {
			sub.Tier = p.Tier
			sub.PlanID = p.ID
		}
		if event.Status.Valid() {
			sub.Status = event.Status
		}
		sub.UpdatedAt = now
		if err := s.store.Save(ctx, sub); err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}

	case WebhookSubscriptionCanceled:
		sub, err := s.store.Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("subscription not found for user %s: %w", userID, err)
		}
		if err := Fire(sub, EventCancel, now); err != nil {
			if errors.Is(err, ErrAlreadyCanceled) || errors.Is(err, ErrSubscriptionExpired) {
				return nil // redelivery of an already-applied event
			}
			return err
		}
		if err := s.store.Save(ctx, sub); err != nil {
			return fmt.Errorf("failed to cancel subscription: %w", err)
		}

	case WebhookSubscriptionResumed:
		sub, err := s.store.Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("subscription not found for user %s: %w", userID, err)
		}
		if err := Fire(sub, EventResume, now); err != nil {
			return err
		}
		if err := s.store.Save(ctx, sub); err != nil {
			return fmt.Errorf("failed to resume subscription: %w", err)
		}

	case WebhookPaymentSucceeded:
		sub, err := s.store.Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("subscription not found for user %s: %w", userID, err)
		}
		if err := acceptPayment(sub, now); err != nil {
			return err
		}
		if err := s.store.Save(ctx, sub); err != nil {
			return fmt.Errorf("failed to renew subscription: %w", err)
		}

	case WebhookPaymentFailed:
		// No past-due state in the lifecycle: access runs until the
		// period end, where the unpaid record expires via the sweep.
		s.log.WarnContext(ctx, "payment failed for subscription",
			slog.String("user_id", event.UserID),
			slog.String("provider_sub_id", event.SubscriptionID))
	}

	return nil
}

// Sweep performs the maintenance pass: expire lapsed trials and
// cancellations, roll finished billing periods (applying scheduled
// downgrades), and zero daily counters left stale past their boundary.
// Correctness never depends on it (the lazy reset in the read path is
// the guarantee); it only keeps long-idle records fresh.
func (s *service) Sweep(ctx context.Context) error {
	now := s.clock()
	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		return err
	}

	var errs []error
	for _, sub := range due {
		if err := s.sweepOne(ctx, sub, now); err != nil {
			s.log.ErrorContext(ctx, "sweep failed for subscription",
				slog.String("user_id", sub.UserID.String()),
				slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *service) sweepOne(ctx context.Context, sub *Subscription, now time.Time) error {
	changed := false

	if sub.Status == StatusTrial && sub.IsTrialExpiredAt(now) {
		if err := Fire(sub, EventTrialElapsed, now); err != nil {
			return err
		}
		changed = true
	}

	if sub.Status == StatusCanceled && CanFire(sub, EventPeriodElapsed, now) {
		if err := Fire(sub, EventPeriodElapsed, now); err != nil {
			return err
		}
		changed = true
	}

	if sub.Status != StatusExpired && !now.Before(sub.CurrentPeriodEnd.UTC()) {
		switch {
		case !s.renewalBills(sub):
			s.rolloverPeriods(sub, now)
			changed = true
		case sub.Status == StatusActive:
			// Paid periods renew on payment only; a period that elapsed
			// with none on record loses access here.
			if err := Fire(sub, EventPeriodElapsed, now); err != nil {
				return err
			}
			changed = true
		}
	}

	if sub.GenerationsToday > 0 && sub.GenerationsTodayAt(now) == 0 {
		sub.GenerationsToday = 0
		sub.UpdatedAt = now
		changed = true
	}

	if !changed {
		return nil
	}
	return s.store.Save(ctx, sub)
}

// renewalBills reports whether the plan the record renews into requires
// a payment. A scheduled change renews into the scheduled plan, so a
// pending downgrade to a free plan rolls over without one.
func (s *service) renewalBills(sub *Subscription) bool {
	id := sub.PlanID
	if sub.ScheduledPlanID != "" {
		id = sub.ScheduledPlanID
	}
	p, err := s.catalog.ByID(id)
	if err != nil {
		return false
	}
	return p.Interval != plan.BillingIntervalNone
}

// rolloverPeriods advances the billing period until it covers now,
// zeroing per-period counters and applying any scheduled downgrade at the
// first rollover (downgrades take effect at the next period start).
func (s *service) rolloverPeriods(sub *Subscription, now time.Time) {
	for !now.Before(sub.CurrentPeriodEnd.UTC()) {
		sub.CurrentPeriodStart = sub.CurrentPeriodEnd.UTC()
		sub.CurrentPeriodEnd = nextPeriodEnd(sub.CurrentPeriodStart)
		sub.GenerationsThisPeriod = 0

		if sub.ScheduledPlanID != "" {
			if p, err := s.catalog.ByID(sub.ScheduledPlanID); err == nil {
				sub.Tier = p.Tier
				sub.PlanID = p.ID
			}
			sub.ScheduledPlanID = ""
		}
	}
	sub.UpdatedAt = now.UTC()
}

// newSubscription builds the initial record for a plan: trial when the
// plan configures a trial window, active otherwise.
func newSubscription(userID uuid.UUID, p plan.Plan, now time.Time) *Subscription {
	now = now.UTC()
	sub := &Subscription{
		ID:                 uuid.New(),
		UserID:             userID,
		Tier:               p.Tier,
		Status:             StatusActive,
		PlanID:             p.ID,
		StartDate:          now,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   nextPeriodEnd(now),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if p.HasTrial() {
		sub.Status = StatusTrial
		trialEnd := p.TrialEndsAt(now)
		sub.TrialEndsAt = &trialEnd
	}
	return sub
}
