package forwarder

import (
	"math"
	"time"
)

// ExponentialBackoff implements the forwarder's fixed retry schedule:
// 2^attempt seconds (1, 2, 4, ...), no jitter — the spec's retry table
// requires exact 1/2/4 s timing, unlike the teacher's
// pkg/webhook.ExponentialBackoff which jitters by default.
type ExponentialBackoff struct {
	Base time.Duration // defaults to 1 second
}

// NextInterval returns Base * 2^(attempt-1). Attempt starts at 1 for the
// first retry.
func (b ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	base := b.Base
	if base == 0 {
		base = time.Second
	}
	return time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
}
