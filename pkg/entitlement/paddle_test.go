package entitlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPaddleProvider_Validation(t *testing.T) {
	t.Parallel()

	t.Run("requires api key", func(t *testing.T) {
		t.Parallel()
		_, err := NewPaddleProvider(PaddleConfig{WebhookSecret: "whsec"})
		assert.Error(t, err)
	})

	t.Run("requires webhook secret", func(t *testing.T) {
		t.Parallel()
		_, err := NewPaddleProvider(PaddleConfig{APIKey: "key"})
		assert.Error(t, err)
	})

	t.Run("rejects unknown environment", func(t *testing.T) {
		t.Parallel()
		_, err := NewPaddleProvider(PaddleConfig{
			APIKey:        "key",
			WebhookSecret: "whsec",
			Environment:   "staging",
		})
		assert.Error(t, err)
	})
}

func TestMapPaddleEventType(t *testing.T) {
	t.Parallel()

	tests := map[string]WebhookEventType{
		"subscription.created":          WebhookSubscriptionCreated,
		"transaction.completed":         WebhookSubscriptionCreated,
		"subscription.updated":          WebhookSubscriptionUpdated,
		"subscription.canceled":         WebhookSubscriptionCanceled,
		"subscription.resumed":          WebhookSubscriptionResumed,
		"transaction.payment_succeeded": WebhookPaymentSucceeded,
		"transaction.payment_failed":    WebhookPaymentFailed,
		"adjustment.created":            WebhookEventType("adjustment.created"),
	}
	for paddleEvent, want := range tests {
		assert.Equal(t, want, mapPaddleEventType(paddleEvent), paddleEvent)
	}
}

func TestMapPaddleStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, StatusTrial, mapPaddleStatus("trialing"))
	assert.Equal(t, StatusActive, mapPaddleStatus("active"))
	// Past-due subscriptions keep access until the period end expires them.
	assert.Equal(t, StatusActive, mapPaddleStatus("past_due"))
	assert.Equal(t, StatusCanceled, mapPaddleStatus("canceled"))
	assert.Equal(t, StatusCanceled, mapPaddleStatus("cancelled"))
	assert.Equal(t, StatusExpired, mapPaddleStatus("expired"))
	assert.Equal(t, StatusActive, mapPaddleStatus("something_new"))
}
