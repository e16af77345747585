package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

// WarningPolicy decides whether a soft validation finding is surfaced as a
// warning or rejects the token outright.
type WarningPolicy string

const (
	PolicyWarn   WarningPolicy = "warn"
	PolicyReject WarningPolicy = "reject"
)

type Config struct {
	Port               int    `env:"PORT" envDefault:"8080"`
	DatabaseURL        string `env:"DATABASE_URL,required"`
	RedisURL           string `env:"REDIS_URL,required"`
	TokenSigningSecret string `env:"TOKEN_SIGNING_SECRET,required"`

	ProcessTTLSeconds         int `env:"PROCESS_TTL_SECONDS" envDefault:"1800"`
	ValidationCacheTTLSeconds int `env:"VALIDATION_CACHE_TTL_SECONDS" envDefault:"120"`
	BookingCacheTTLSeconds    int `env:"BOOKING_CACHE_TTL_SECONDS" envDefault:"300"`
	EarlyCheckInWindowMinutes int `env:"EARLY_CHECKIN_WINDOW_MINUTES" envDefault:"120"`
	LateCheckInGraceHours     int `env:"LATE_CHECKIN_GRACE_HOURS" envDefault:"24"`

	LateCheckInPolicy WarningPolicy `env:"LATE_CHECKIN_POLICY" envDefault:"warn"`
	CrossHotelPolicy  WarningPolicy `env:"CROSS_HOTEL_STAFF_POLICY" envDefault:"warn"`

	RedeemRateLimitPerMin   int `env:"REDEEM_RATE_LIMIT_PER_MIN" envDefault:"30"`
	ValidateRateLimitPerMin int `env:"VALIDATE_RATE_LIMIT_PER_MIN" envDefault:"60"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) ProcessTTL() time.Duration {
	return time.Duration(c.ProcessTTLSeconds) * time.Second
}

func (c *Config) ValidationCacheTTL() time.Duration {
	return time.Duration(c.ValidationCacheTTLSeconds) * time.Second
}

func (c *Config) BookingCacheTTL() time.Duration {
	return time.Duration(c.BookingCacheTTLSeconds) * time.Second
}

func (c *Config) EarlyCheckInWindow() time.Duration {
	return time.Duration(c.EarlyCheckInWindowMinutes) * time.Minute
}

func (c *Config) LateCheckInGrace() time.Duration {
	return time.Duration(c.LateCheckInGraceHours) * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if err := validatePolicy("LATE_CHECKIN_POLICY", c.LateCheckInPolicy); err != nil {
		return err
	}
	if err := validatePolicy("CROSS_HOTEL_STAFF_POLICY", c.CrossHotelPolicy); err != nil {
		return err
	}

	if isProduction {
		if err := validateSecret("TOKEN_SIGNING_SECRET", c.TokenSigningSecret); err != nil {
			return err
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validatePolicy(name string, p WarningPolicy) error {
	if p != PolicyWarn && p != PolicyReject {
		return fmt.Errorf("%s must be one of: warn, reject (got %q)", name, p)
	}
	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
