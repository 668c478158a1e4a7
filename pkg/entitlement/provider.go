package entitlement

import (
	"context"
	"time"
)

// BillingProvider abstracts the payment processor behind hosted checkouts
// and customer portals. The engine never interprets the payment handoff it
// returns, and it never retries provider writes: a retried charge is worse
// than a failed one.
type BillingProvider interface {
	// CreateCheckoutLink creates a hosted checkout session for a plan.
	CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)

	// GetCustomerPortalLink returns a temporary link where users manage
	// payment methods, cancellations, and plan changes.
	GetCustomerPortalLink(ctx context.Context, sub *Subscription) (*PortalLink, error)

	// ParseWebhook validates the signature and normalizes the provider
	// event. Invalid signatures must be rejected to prevent spoofing.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}

// PurchaseVerifier validates mobile store receipts, the alternate
// creation/renewal path feeding the same lifecycle machine.
type PurchaseVerifier interface {
	VerifyPurchase(ctx context.Context, userID string, receipt string, platform Platform) (*VerifiedPurchase, error)
}

// VerifiedPurchase is the normalized result of a validated store receipt.
type VerifiedPurchase struct {
	PlanID        string
	ProviderSubID string
	Platform      Platform
	ExpiresAt     time.Time
}

// CheckoutRequest contains data needed to create a checkout session.
type CheckoutRequest struct {
	PriceID    string // provider's price identifier (catalog plan ID)
	UserID     string // internal user ID, round-tripped via custom data
	Email      string // optional billing email
	SuccessURL string
	CancelURL  string
}

// CheckoutLink is the opaque payment handoff returned to the caller.
type CheckoutLink struct {
	URL       string
	SessionID string
	ExpiresAt time.Time
}

// PortalLink represents a pre-authenticated customer portal session.
type PortalLink struct {
	URL              string
	CancelURL        string
	UpdatePaymentURL string
	ExpiresAt        time.Time
}

// WebhookEvent is a normalized billing event from the provider.
type WebhookEvent struct {
	Type           WebhookEventType
	ProviderEvent  string // original provider event name
	SubscriptionID string // provider's subscription ID
	UserID         string // internal user ID from custom data
	Status         Status // provider status mapped onto the lifecycle enum
	PlanID         string // price/plan subscribed to
	Raw            map[string]any
}

// WebhookEventType is the normalized billing event type. Each provider
// implementation maps its specific events onto these.
type WebhookEventType string

const (
	WebhookSubscriptionCreated  WebhookEventType = "subscription_created"
	WebhookSubscriptionUpdated  WebhookEventType = "subscription_updated"
	WebhookSubscriptionCanceled WebhookEventType = "subscription_canceled"
	WebhookSubscriptionResumed  WebhookEventType = "subscription_resumed"
	WebhookPaymentSucceeded     WebhookEventType = "payment_succeeded"
	WebhookPaymentFailed        WebhookEventType = "payment_failed"
)
