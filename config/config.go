package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Safaricom publishes the egress addresses its callback traffic originates
// from; anything else hitting the callback route is rejected up front.
var defaultCallbackAllowList = []string{
	"196.201.214.200",
	"196.201.214.206",
	"196.201.213.114",
	"196.201.214.207",
	"196.201.214.208",
	"196.201.213.44",
	"196.201.212.127",
	"196.201.212.138",
	"196.201.212.129",
	"196.201.212.136",
	"196.201.212.74",
	"196.201.212.69",
}

// Config holds application configuration. It is built once in main and
// passed explicitly to every component that needs it.
type Config struct {
	ServiceName  string
	Port         string `env:"PORT" envDefault:"8081"`
	OTELEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`

	// Gateway credentials. All of these are required and checked before
	// the service opens any network connection.
	Environment    string `env:"MPESA_ENVIRONMENT" envDefault:"sandbox"`
	ConsumerKey    string `env:"MPESA_CONSUMER_KEY"`
	ConsumerSecret string `env:"MPESA_CONSUMER_SECRET"`
	ShortCode      string `env:"MPESA_SHORTCODE"`
	Passkey        string `env:"MPESA_PASSKEY"`

	// Callback handling.
	CallbackBaseURL    string   `env:"MPESA_CALLBACK_BASE_URL"`
	CallbackSecret     string   `env:"MPESA_CALLBACK_SECRET_KEY"`
	CallbackAllowedIPs []string `env:"MPESA_CALLBACK_ALLOWED_IPS" envSeparator:","`

	// Proxies whose forwarding headers may be believed when resolving the
	// caller's IP. Empty means no proxy is trusted and only the peer
	// address counts.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// Gateway error codes that mean "request not yet processed". The query
	// poller keeps polling on these and fails on everything else. Kept
	// configurable because the gateway documentation does not guarantee a
	// single sentinel.
	ProcessingCodes []string `env:"MPESA_PROCESSING_CODES" envSeparator:"," envDefault:"500.001.1001"`

	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
	PollMaxAttempts int           `env:"POLL_MAX_ATTEMPTS" envDefault:"15"`
	GatewayTimeout  time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`

	// Payment record store. Empty RedisAddr selects the in-memory store.
	RedisAddr string        `env:"REDIS_ADDR"`
	RecordTTL time.Duration `env:"PAYMENT_RECORD_TTL" envDefault:"1h"`
}

// Load parses configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{ServiceName: "mpesa-checkout-service"}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if len(cfg.CallbackAllowedIPs) == 0 {
		cfg.CallbackAllowedIPs = defaultCallbackAllowList
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first missing or malformed setting. It runs before
// any network call so a half-configured service never reaches the gateway.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"MPESA_CONSUMER_KEY", c.ConsumerKey},
		{"MPESA_CONSUMER_SECRET", c.ConsumerSecret},
		{"MPESA_SHORTCODE", c.ShortCode},
		{"MPESA_PASSKEY", c.Passkey},
		{"MPESA_CALLBACK_BASE_URL", c.CallbackBaseURL},
		{"MPESA_CALLBACK_SECRET_KEY", c.CallbackSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("missing configuration: %s", r.name)
		}
	}
	if c.Environment != "sandbox" && c.Environment != "live" {
		return fmt.Errorf("invalid MPESA_ENVIRONMENT: %q (must be 'sandbox' or 'live')", c.Environment)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.PollMaxAttempts <= 0 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be positive")
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	if len(c.ProcessingCodes) == 0 {
		return fmt.Errorf("MPESA_PROCESSING_CODES must name at least one code")
	}
	return nil
}

// BaseURL resolves the gateway base URL from the environment selector.
func (c *Config) BaseURL() string {
	if c.Environment == "live" {
		return "https://api.safaricom.co.ke"
	}
	return "https://sandbox.safaricom.co.ke"
}

// CallbackURL is the absolute URL the gateway posts results to, with the
// shared secret embedded in the path.
func (c *Config) CallbackURL() string {
	return strings.TrimSuffix(c.CallbackBaseURL, "/") + "/callback/" + c.CallbackSecret
}
