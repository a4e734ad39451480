package realtime

import (
	"math"
	"math/rand/v2"
	"time"
)

// jitterFraction is the uniform random offset applied around each delay so
// many sessions reconnecting at once do not land on the same instant.
const jitterFraction = 0.2

type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int
}

func DefaultBackoff() Backoff {
	return Backoff{
		Base:        1 * time.Second,
		Max:         30 * time.Second,
		Multiplier:  2,
		MaxAttempts: 6,
	}
}

// Delay returns min(Base * Multiplier^attempt, Max). Attempt numbering starts
// at 0.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(b.Base) * math.Pow(b.Multiplier, float64(attempt))
	if d < 0 || d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}

// Jittered applies the ±20% offset after the cap, floored at zero.
func (b Backoff) Jittered(attempt int) time.Duration {
	d := b.Delay(attempt)
	offset := time.Duration((rand.Float64()*2 - 1) * jitterFraction * float64(d))
	d += offset
	if d < 0 {
		d = 0
	}
	return d
}
