package storeclient

import "time"

// Config holds configuration for the backing-store API client.
type Config struct {
	// BaseURL is the API root, e.g. https://api.example.com/v1.
	BaseURL string `env:"SUBSCRIPTION_API_URL,required"`
	// APIToken is sent as a bearer token; empty disables the auth header.
	APIToken       string        `env:"SUBSCRIPTION_API_TOKEN"`
	RequestTimeout time.Duration `env:"SUBSCRIPTION_API_TIMEOUT" envDefault:"10s"`
	// RetryAttempts applies to idempotent reads only; writes are never retried.
	RetryAttempts int           `env:"SUBSCRIPTION_API_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"SUBSCRIPTION_API_RETRY_INTERVAL" envDefault:"500ms"`
}
