// Package resilience holds the retry building blocks shared by the companion's
// HTTP providers and the watch host's reconnect policy.
package resilience

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidConfig is returned for a backoff configuration that cannot produce delays.
var ErrInvalidConfig = errors.New("invalid backoff configuration")

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Validate reports whether the configuration is usable.
func (c BackoffConfig) Validate() error {
	if c.MaxRetries < 0 || c.InitialInterval <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Delay returns the wait before retry number attempt (0-based).
func (c BackoffConfig) Delay(attempt int) time.Duration {
	d := float64(c.InitialInterval) * math.Pow(2, float64(attempt))
	if c.MaxInterval > 0 && d > float64(c.MaxInterval) {
		return c.MaxInterval
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
