package osc

import (
	"time"

	"github.com/teslashibe/go-jellyfish/internal/timeutil"
)

// Throttle caps how often a send is admitted.
// The first call is always admitted.
type Throttle struct {
	clock    timeutil.Clock
	interval time.Duration
	last     time.Time
	primed   bool
}

// NewThrottle creates a throttle admitting at most maxRate sends per second.
// A maxRate of zero or less disables throttling.
func NewThrottle(maxRate float64, clock timeutil.Clock) *Throttle {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	var interval time.Duration
	if maxRate > 0 {
		interval = time.Duration(float64(time.Second) / maxRate)
	}
	return &Throttle{clock: clock, interval: interval}
}

// Interval returns the minimum spacing between admitted sends.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

// Allow reports whether a send may happen now, and records it if so.
func (t *Throttle) Allow() bool {
	now := t.clock.Now()
	if t.primed && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	t.primed = true
	return true
}
