package mwapi

import "time"

// Throttle enforces a minimum wall-clock interval between consecutive
// outbound HTTP calls. It is owned by a single client and is not safe for
// concurrent use; the tool issues one call at a time.
type Throttle struct {
	interval time.Duration
	last     time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// NewThrottle returns a throttle with the given interval. A zero or
// negative interval disables throttling.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{
		interval: interval,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Wait blocks until at least the configured interval has elapsed since
// the previous call returned, then records the new timestamp.
func (t *Throttle) Wait() {
	if t == nil || t.interval <= 0 {
		return
	}
	if !t.last.IsZero() {
		if remaining := t.interval - t.now().Sub(t.last); remaining > 0 {
			t.sleep(remaining)
		}
	}
	t.last = t.now()
}
