package scheduler

import (
	"math"
	"math/rand"
	"time"

	"github.com/schedcu/core/internal/types"
)

// jitterLow/jitterHigh bound the uniform jitter factor.
const (
	jitterLow  = 0.8
	jitterHigh = 1.2
)

// ShouldRetry reports whether another attempt is allowed after the
// given number of completed attempts.
func ShouldRetry(cfg types.RetryConfig, attempts int) bool {
	if cfg.Strategy == types.RetryNone || cfg.Strategy == "" {
		return false
	}
	return attempts < cfg.MaxAttempts
}

// ComputeDelay returns the wait before the given zero-based retry
// attempt. Delays clamp at MaxDelay; jitter multiplies by a uniform
// factor in [0.8, 1.2] after clamping.
func ComputeDelay(cfg types.RetryConfig, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	var delay time.Duration
	switch cfg.Strategy {
	case types.RetryFixed:
		delay = cfg.InitialDelay
	case types.RetryLinear:
		delay = time.Duration(float64(cfg.InitialDelay) * float64(attempt+1))
	case types.RetryExponential:
		mult := cfg.Multiplier
		if mult <= 0 {
			mult = 2.0
		}
		delay = time.Duration(float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt)))
	default:
		return 0
	}

	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter {
		factor := jitterLow + rand.Float64()*(jitterHigh-jitterLow)
		delay = time.Duration(float64(delay) * factor)
	}
	return delay
}
