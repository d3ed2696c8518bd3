package resilience

import (
	"time"

	"github.com/sells-group/storedir/internal/config"
)

// FromConfig builds a RetryConfig from the retry section, keeping defaults for
// unset values.
func FromConfig(c config.RetryConfig) RetryConfig {
	cfg := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(c.InitialBackoffMs) * time.Millisecond
	}
	if c.MaxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(c.MaxBackoffMs) * time.Millisecond
	}
	return cfg
}

// BreakerFromConfig builds a CircuitBreakerConfig from the retry section.
func BreakerFromConfig(c config.RetryConfig) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if c.BreakerFailures > 0 {
		cfg.FailureThreshold = c.BreakerFailures
	}
	if c.BreakerResetSecs > 0 {
		cfg.ResetTimeout = time.Duration(c.BreakerResetSecs) * time.Second
	}
	return cfg
}
