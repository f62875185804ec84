package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timelock/internal/timelock/models"
)

func setRequired(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "secret")
	t.Setenv("TIMELOCK_GOVERNANCE", "gov")
	t.Setenv("TIMELOCK_EXPIRATION_WINDOW", "3600")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, StoreMemory, cfg.Timelock.Store)
	assert.Equal(t, time.Minute, cfg.Timelock.SweepInterval)
	assert.Equal(t, "timelock.audit", cfg.Audit.Topic)
	assert.Empty(t, cfg.Audit.Brokers)
	assert.Equal(t, 120, cfg.Server.RateLimit)

	delay, err := cfg.Timelock.DelayConfig()
	require.NoError(t, err)
	assert.Equal(t, models.Tick(86400), delay.CurrentDelay)
	assert.Equal(t, models.Tick(3600), cfg.Timelock.Expiration().Window())
}

func TestFromEnvRequiresExpirationWindow(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "secret")
	t.Setenv("TIMELOCK_GOVERNANCE", "gov")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TIMELOCK_EXPIRATION_WINDOW")
}

func TestFromEnvZeroWindowNeverExpires(t *testing.T) {
	setRequired(t)
	t.Setenv("TIMELOCK_EXPIRATION_WINDOW", "0")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Timelock.Expiration().IsSet())
	assert.Zero(t, cfg.Timelock.Expiration().Window())
}

func TestFromEnvLists(t *testing.T) {
	setRequired(t)
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("TIMELOCK_ROOT_ADMINS", "alice, bob,alice,")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Audit.Brokers)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Timelock.RootAdmins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"initial delay above max", map[string]string{"TIMELOCK_INITIAL_DELAY": "10", "TIMELOCK_MAX_DELAY": "5", "TIMELOCK_MIN_DELAY": "1"}},
		{"min above max", map[string]string{"TIMELOCK_MIN_DELAY": "10", "TIMELOCK_MAX_DELAY": "5"}},
		{"redis without url", map[string]string{"TIMELOCK_STORE": "redis"}},
		{"postgres without url", map[string]string{"TIMELOCK_STORE": "postgres"}},
		{"unknown store", map[string]string{"TIMELOCK_STORE": "etcd"}},
		{"expiration window past the clock range", map[string]string{"TIMELOCK_EXPIRATION_WINDOW": "18446744073709551565"}},
		{"zero sweep interval", map[string]string{"SWEEP_INTERVAL": "0s"}},
		{"rate limit without window", map[string]string{"TIMELOCK_RATE_LIMIT": "5", "TIMELOCK_RATE_LIMIT_WINDOW": "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
