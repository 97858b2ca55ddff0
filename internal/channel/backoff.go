package channel

import "time"

// Backoff computes reconnect delays: min(Max, Base * 2^attempt).
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the delay before the given attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return b.Max
	}
	if attempt < 0 {
		attempt = 0
	}
	// Shifting past 62 bits would overflow time.Duration.
	if attempt > 62 {
		return b.Max
	}
	d := b.Base << uint(attempt)
	if d <= 0 || d > b.Max {
		return b.Max
	}
	return d
}
