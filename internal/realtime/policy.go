package realtime

import (
	"math/rand"
	"time"
)

// DefaultReconnectDelay matches the backend dashboard's original fixed wait
// between connection attempts.
const DefaultReconnectDelay = 3 * time.Second

// ReconnectPolicy decides how long to wait before connection attempt n
// (n starts at 1 and resets after every successful open).
type ReconnectPolicy interface {
	Delay(attempt int) time.Duration
}

// FixedDelay waits the same duration before every attempt.
type FixedDelay struct {
	D time.Duration
}

// Delay implements ReconnectPolicy.
func (p FixedDelay) Delay(int) time.Duration {
	if p.D <= 0 {
		return DefaultReconnectDelay
	}
	return p.D
}

// Backoff doubles the wait per consecutive failure up to Max, with up to 25%
// random jitter so a fleet of clients does not reconnect in lockstep.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay implements ReconnectPolicy.
func (p Backoff) Delay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = DefaultReconnectDelay
	}
	max := p.Max
	if max <= 0 {
		max = 2 * time.Minute
	}

	d := initial
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}
