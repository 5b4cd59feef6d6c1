package driver

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig defines how long a cycler sits out after consecutive failed
// cycles.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Delay returns the pause after the given number of consecutive failures.
// Zero failures means no pause. Jitter scales the delay into [0.5, 1.5).
func (b BackoffConfig) Delay(failures int, rng *rand.Rand) time.Duration {
	if failures <= 0 || b.InitialDelay <= 0 {
		return 0
	}
	mult := math.Max(b.Multiplier, 1.0)
	delay := float64(b.InitialDelay) * math.Pow(mult, float64(failures-1))
	if b.MaxDelay > 0 {
		delay = math.Min(delay, float64(b.MaxDelay))
	}
	if b.Jitter {
		f := 0.5
		if rng != nil {
			f += rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}
