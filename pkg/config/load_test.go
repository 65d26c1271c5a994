package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestFill_Defaults(t *testing.T) {
	cfg := &CommenceConfig{}
	require.NoError(t, Fill(cfg, DefaultPrefix, mapLookup(nil)))

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Abandon.Window)
	assert.Equal(t, 3, cfg.Recovery.MaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.Recovery.Interval)
	assert.Equal(t, 3, cfg.Release.BusinessDays)
	assert.Equal(t, 15*time.Minute, cfg.Release.RetryBackoff)
	assert.Equal(t, 15*time.Minute, cfg.Recovery.RetryBackoff)
	assert.Equal(t, 10*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, "1.0", cfg.Webhook.Version)
	assert.True(t, cfg.Webhook.Async)
	assert.Equal(t, "log", cfg.Email.Provider)
	assert.False(t, cfg.PayPal.Enabled)
	assert.True(t, cfg.PayPal.Sandbox)
	assert.Equal(t, float64(5), cfg.Recovery.SendRate)
}

func TestFill_Overrides(t *testing.T) {
	cfg := &CommenceConfig{}
	err := Fill(cfg, DefaultPrefix, mapLookup(map[string]string{
		"AIRA_DATABASE_DRIVER":         "mysql",
		"AIRA_RECOVERY_MAX_ATTEMPTS":   "5",
		"AIRA_RECOVERY_DELAY":          "90m",
		"AIRA_RELEASE_ENABLED":         "false",
		"AIRA_EMAIL_PROVIDER":          "sqs",
		"AIRA_PAYPAL_CLIENT_ID":        "client",
		"AIRA_MANUAL_PAYMENT_SECRET":   "s3cret",
		"AIRA_SCHEDULER_RELEASE_EVERY": "1h",
	}))
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Recovery.MaxAttempts)
	assert.Equal(t, 90*time.Minute, cfg.Recovery.Delay)
	assert.False(t, cfg.Release.Enabled)
	assert.Equal(t, "sqs", cfg.Email.Provider)
	assert.Equal(t, "client", cfg.PayPal.ClientID)
	assert.Equal(t, "s3cret", cfg.ManualPayment.Secret)
	assert.Equal(t, time.Hour, cfg.Scheduler.ReleaseEvery)
}

func TestFill_InvalidValue(t *testing.T) {
	cfg := &CommenceConfig{}
	err := Fill(cfg, DefaultPrefix, mapLookup(map[string]string{
		"AIRA_RECOVERY_MAX_ATTEMPTS": "many",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AIRA_RECOVERY_MAX_ATTEMPTS")
}

func TestFill_StringSlice(t *testing.T) {
	var target struct {
		Events []string `cfg:"EVENTS"`
	}
	require.NoError(t, Fill(&target, "", mapLookup(map[string]string{"EVENTS": "a, b,,c"})))
	assert.Equal(t, []string{"a", "b", "c"}, target.Events)
}

func TestFill_RejectsNonPointer(t *testing.T) {
	assert.Error(t, Fill(CommenceConfig{}, "", mapLookup(nil)))
}

func TestBuildURL(t *testing.T) {
	prev := Config
	t.Cleanup(func() { Config = prev })

	Config = &CommenceConfig{PublicURL: "https://pay.example.com/"}
	assert.Equal(t, "https://pay.example.com/payment/paypal/callback/x", BuildURL("/payment/paypal/callback/x"))
}
