package session

import (
	"os"
	"time"

	"docqa/cmd/security/token"
)

// Config defines runtime configuration for the session controller.
type Config struct {
	// ExpiryMargin treats an access token as expired this long before its exp claim.
	ExpiryMargin time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ExpiryMargin: token.DefaultExpiryMargin,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional:
//   - DOCQA_EXPIRY_MARGIN (Go duration, >= 0)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("DOCQA_EXPIRY_MARGIN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ExpiryMargin = d
	}

	return cfg, nil
}
