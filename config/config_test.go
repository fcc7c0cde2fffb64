package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Clearenv()
	t.Setenv("MPESA_CONSUMER_KEY", "key")
	t.Setenv("MPESA_CONSUMER_SECRET", "secret")
	t.Setenv("MPESA_SHORTCODE", "174379")
	t.Setenv("MPESA_PASSKEY", "passkey")
	t.Setenv("MPESA_CALLBACK_BASE_URL", "https://pay.example.com")
	t.Setenv("MPESA_CALLBACK_SECRET_KEY", "s3cret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mpesa-checkout-service", cfg.ServiceName)
	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "sandbox", cfg.Environment)
	assert.Equal(t, "https://sandbox.safaricom.co.ke", cfg.BaseURL())
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 15, cfg.PollMaxAttempts)
	assert.Equal(t, []string{"500.001.1001"}, cfg.ProcessingCodes)
	assert.Len(t, cfg.CallbackAllowedIPs, 12)
	assert.Equal(t, "https://pay.example.com/callback/s3cret", cfg.CallbackURL())
}

func TestLoad_LiveEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MPESA_ENVIRONMENT", "live")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.safaricom.co.ke", cfg.BaseURL())
}

func TestLoad_MissingCredential(t *testing.T) {
	for _, key := range []string{
		"MPESA_CONSUMER_KEY",
		"MPESA_CONSUMER_SECRET",
		"MPESA_SHORTCODE",
		"MPESA_PASSKEY",
		"MPESA_CALLBACK_BASE_URL",
		"MPESA_CALLBACK_SECRET_KEY",
	} {
		t.Run(key, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(key, "")

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MPESA_ENVIRONMENT", "staging")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MPESA_ENVIRONMENT")
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("POLL_INTERVAL", "500ms")
	t.Setenv("POLL_MAX_ATTEMPTS", "30")
	t.Setenv("MPESA_PROCESSING_CODES", "500.001.1001,500.001.1002")
	t.Setenv("MPESA_CALLBACK_ALLOWED_IPS", "10.0.0.1,10.0.0.2")
	t.Setenv("TRUSTED_PROXIES", "10.1.0.1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 30, cfg.PollMaxAttempts)
	assert.Equal(t, []string{"500.001.1001", "500.001.1002"}, cfg.ProcessingCodes)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.CallbackAllowedIPs)
	assert.Equal(t, []string{"10.1.0.1"}, cfg.TrustedProxies)
}

func TestLoad_NoTrustedProxiesByDefault(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.TrustedProxies)
}
