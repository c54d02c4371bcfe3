package session

import (
	"math/rand"
	"time"
)

// Delay is the wait after failed connect attempt n (1-based). The first retry
// waits InitialDelay; each later one grows by Multiplier up to MaxDelay. With
// Jitter the result is scaled into [0.5, 1.5); a nil rng scales by 0.5.
func (b BackoffConfig) Delay(n int, rng *rand.Rand) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.InitialDelay)
	for i := 1; i < n; i++ {
		d *= mult
		if b.MaxDelay > 0 && d >= float64(b.MaxDelay) {
			d = float64(b.MaxDelay)
			break
		}
	}
	if !b.Jitter {
		return time.Duration(d)
	}
	scale := 0.5
	if rng != nil {
		scale += rng.Float64()
	}
	return time.Duration(d * scale)
}
