package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/receiptly/entitlement/pkg/entitlement"
)

var (
	ErrEmptyBaseURL     = errors.New("storeclient: base URL is required")
	ErrUnexpectedStatus = errors.New("storeclient: unexpected response status")
	ErrInvalidResponse  = errors.New("storeclient: invalid response body")
)

// Client talks to the backing-store API. It implements entitlement.Store
// and entitlement.PurchaseVerifier.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	retries int
	backoff time.Duration
}

// New creates a backing-store API client from the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrEmptyBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("storeclient: invalid base URL: %w", err)
	}

	retries := cfg.RetryAttempts
	if retries < 1 {
		retries = 1
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.APIToken,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		retries: retries,
		backoff: cfg.RetryInterval,
	}, nil
}

// Get retrieves the user's subscription record.
func (c *Client) Get(ctx context.Context, userID uuid.UUID) (*entitlement.Subscription, error) {
	var sub entitlement.Subscription
	err := c.getJSON(ctx, "/subscriptions/"+userID.String(), &sub)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Usage retrieves the derived usage snapshot.
func (c *Client) Usage(ctx context.Context, userID uuid.UUID) (*entitlement.UsageSnapshot, error) {
	var snap entitlement.UsageSnapshot
	if err := c.getJSON(ctx, "/subscriptions/"+userID.String()+"/usage", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Save creates or updates the subscription record.
func (c *Client) Save(ctx context.Context, sub *entitlement.Subscription) error {
	return c.doJSON(ctx, http.MethodPut, "/subscriptions/"+sub.UserID.String(), sub, nil)
}

// RecordGeneration asks the backend to apply one consumed generation.
// The increment happens server-side as an atomic read-modify-write; the
// correlation id lets the backend de-duplicate at-least-once deliveries.
func (c *Client) RecordGeneration(ctx context.Context, userID uuid.UUID, now time.Time) (*entitlement.Subscription, error) {
	body := struct {
		CorrelationID string    `json:"correlationId"`
		OccurredAt    time.Time `json:"occurredAt"`
	}{
		CorrelationID: uuid.NewString(),
		OccurredAt:    now.UTC(),
	}

	var sub entitlement.Subscription
	if err := c.doJSON(ctx, http.MethodPost, "/subscriptions/"+userID.String()+"/track-generation", body, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListDue returns subscriptions with pending sweep work as of now.
func (c *Client) ListDue(ctx context.Context, now time.Time) ([]*entitlement.Subscription, error) {
	var subs []*entitlement.Subscription
	path := "/subscriptions/due?asOf=" + url.QueryEscape(now.UTC().Format(time.RFC3339))
	if err := c.getJSON(ctx, path, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// Create asks the backend to start a subscription, returning the new
// subscription id and the opaque payment handoff.
func (c *Client) Create(ctx context.Context, userID uuid.UUID, planID string) (subscriptionID string, checkoutURL string, err error) {
	body := struct {
		UserID string `json:"userId"`
		PlanID string `json:"planId"`
	}{UserID: userID.String(), PlanID: planID}

	var out struct {
		SubscriptionID string `json:"subscriptionId"`
		CheckoutURL    string `json:"checkoutUrl"`
		ClientSecret   string `json:"clientSecret"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/subscriptions", body, &out); err != nil {
		return "", "", err
	}
	return out.SubscriptionID, out.CheckoutURL, nil
}

// Cancel requests cancellation at period end.
func (c *Client) Cancel(ctx context.Context, userID uuid.UUID) (*entitlement.Subscription, error) {
	var sub entitlement.Subscription
	if err := c.doJSON(ctx, http.MethodPost, "/subscriptions/"+userID.String()+"/cancel", nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Resume clears a pending cancellation.
func (c *Client) Resume(ctx context.Context, userID uuid.UUID) (*entitlement.Subscription, error) {
	var sub entitlement.Subscription
	if err := c.doJSON(ctx, http.MethodPost, "/subscriptions/"+userID.String()+"/resume", nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// VerifyPurchase validates a mobile store receipt with the backend.
func (c *Client) VerifyPurchase(ctx context.Context, userID string, receipt string, platform entitlement.Platform) (*entitlement.VerifiedPurchase, error) {
	body := struct {
		Receipt  string `json:"receipt"`
		Platform string `json:"platform"`
	}{Receipt: receipt, Platform: string(platform)}

	var out entitlement.VerifiedPurchase
	if err := c.doJSON(ctx, http.MethodPost, "/subscriptions/"+userID+"/verify-purchase", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// getJSON performs an idempotent GET with retries.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 && c.backoff > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(entitlement.ErrStoreUnreachable, ctx.Err())
			case <-time.After(c.backoff):
			}
		}

		lastErr = c.doJSON(ctx, http.MethodGet, path, nil, out)
		if lastErr == nil {
			return nil
		}
		// Only transport-level failures are worth retrying.
		if !errors.Is(lastErr, entitlement.ErrStoreUnreachable) {
			return lastErr
		}
	}
	return lastErr
}

// doJSON performs one request. Writes are never retried here: the backend
// owns de-duplication and a blind retry risks double effects.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("storeclient: encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("storeclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Join(entitlement.ErrStoreUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return entitlement.ErrSubscriptionNotFound
	case resp.StatusCode == http.StatusConflict:
		return entitlement.ErrSubscriptionAlreadyExists
	case resp.StatusCode >= 500:
		return errors.Join(entitlement.ErrStoreUnreachable,
			fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Join(ErrInvalidResponse, err)
	}
	return nil
}
