package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/checkin?sslmode=disable")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("TOKEN_SIGNING_SECRET", "a-perfectly-reasonable-signing-secret!!")
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		setRequiredEnv(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, 30*time.Minute, cfg.ProcessTTL())
		assert.Equal(t, 2*time.Minute, cfg.ValidationCacheTTL())
		assert.Equal(t, 5*time.Minute, cfg.BookingCacheTTL())
		assert.Equal(t, 2*time.Hour, cfg.EarlyCheckInWindow())
		assert.Equal(t, 24*time.Hour, cfg.LateCheckInGrace())
		assert.Equal(t, PolicyWarn, cfg.LateCheckInPolicy)
		assert.Equal(t, PolicyWarn, cfg.CrossHotelPolicy)
		assert.Equal(t, 30, cfg.RedeemRateLimitPerMin)
		assert.Equal(t, ":8080", cfg.Addr())
	})

	t.Run("reads overrides from the environment", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("PORT", "9090")
		t.Setenv("PROCESS_TTL_SECONDS", "600")
		t.Setenv("LATE_CHECKIN_POLICY", "reject")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Port)
		assert.Equal(t, 10*time.Minute, cfg.ProcessTTL())
		assert.Equal(t, PolicyReject, cfg.LateCheckInPolicy)
	})

	t.Run("fails without required variables", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("REDIS_URL", "")
		t.Setenv("TOKEN_SIGNING_SECRET", "")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			RedisURL:           "rediss://prod-redis:6380/0",
			TokenSigningSecret: "a-perfectly-reasonable-signing-secret!!",
			LateCheckInPolicy:  PolicyWarn,
			CrossHotelPolicy:   PolicyWarn,
		}
	}

	t.Run("accepts a sane production config", func(t *testing.T) {
		assert.NoError(t, base().Validate(true))
	})

	t.Run("rejects unknown policies", func(t *testing.T) {
		cfg := base()
		cfg.LateCheckInPolicy = "shrug"
		assert.Error(t, cfg.Validate(false))

		cfg = base()
		cfg.CrossHotelPolicy = "maybe"
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("rejects short signing secrets in production", func(t *testing.T) {
		cfg := base()
		cfg.TokenSigningSecret = "short"
		assert.Error(t, cfg.Validate(true))
		assert.NoError(t, cfg.Validate(false))
	})

	t.Run("rejects known weak secrets", func(t *testing.T) {
		for _, weak := range knownWeakSecrets {
			assert.Error(t, validateSecret("TOKEN_SIGNING_SECRET", weak), weak)
		}
	})
}
