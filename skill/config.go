package skill

import (
	"fmt"
	"math"
	"time"

	"github.com/samber/lo"
)

// RetryConfig controls how an invocation is attempted.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	PerAttemptTimeout time.Duration `yaml:"per_attempt_timeout"`
	RetryableKinds    []Kind        `yaml:"retryable_kinds"`
}

// DefaultRetryConfig returns the defaults used when no retry config is supplied.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BaseDelay:         500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		PerAttemptTimeout: 30 * time.Second,
		RetryableKinds:    []Kind{KindConnection, KindTimeout, KindAPIStatus},
	}
}

// Validate checks the config for values that cannot produce a sensible schedule.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.BaseDelay < 0 {
		return fmt.Errorf("base_delay must not be negative, got %s", c.BaseDelay)
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be at least 1, got %g", c.BackoffMultiplier)
	}
	if c.PerAttemptTimeout <= 0 {
		return fmt.Errorf("per_attempt_timeout must be positive, got %s", c.PerAttemptTimeout)
	}
	for _, k := range c.RetryableKinds {
		switch k {
		case KindConnection, KindTimeout, KindAPIStatus:
		default:
			return fmt.Errorf("kind %q cannot be retried", k)
		}
	}
	return nil
}

// Delay returns the wait after the given failed attempt (1-based):
// BaseDelay * BackoffMultiplier^(attempt-1).
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := float64(c.BaseDelay) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// ShouldRetry reports whether a classified attempt failure may be retried.
// Client errors (4xx) are never retried.
func (c RetryConfig) ShouldRetry(err *Error) bool {
	if err == nil || !lo.Contains(c.RetryableKinds, err.Kind) {
		return false
	}
	if err.Kind == KindAPIStatus && err.StatusCode >= 400 && err.StatusCode < 500 {
		return false
	}
	return true
}
