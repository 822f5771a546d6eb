package mwapi

import (
	"testing"
	"time"
)

// fakeClock drives a Throttle without real sleeping.
type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
}

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func throttleWithClock(interval time.Duration, clock *fakeClock) *Throttle {
	th := NewThrottle(interval)
	th.now = clock.Now
	th.sleep = clock.Sleep
	return th
}

func TestThrottle_FirstCallDoesNotSleep(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	th := throttleWithClock(time.Second, clock)

	th.Wait()
	if len(clock.slept) != 0 {
		t.Fatalf("slept %v on first call, want no sleep", clock.slept)
	}
}

func TestThrottle_SleepsRemainingInterval(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	th := throttleWithClock(time.Second, clock)

	th.Wait()
	clock.Advance(300 * time.Millisecond)
	th.Wait()

	if len(clock.slept) != 1 {
		t.Fatalf("sleep calls = %d, want 1", len(clock.slept))
	}
	if got, want := clock.slept[0], 700*time.Millisecond; got != want {
		t.Fatalf("slept %v, want %v", got, want)
	}
}

func TestThrottle_NoSleepAfterLongGap(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	th := throttleWithClock(time.Second, clock)

	th.Wait()
	clock.Advance(5 * time.Second)
	th.Wait()

	if len(clock.slept) != 0 {
		t.Fatalf("slept %v after a long gap, want no sleep", clock.slept)
	}
}

func TestThrottle_DisabledAndNil(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	th := throttleWithClock(0, clock)
	th.Wait()
	th.Wait()
	if len(clock.slept) != 0 {
		t.Fatalf("zero-interval throttle slept %v", clock.slept)
	}

	var none *Throttle
	none.Wait() // must not panic
}
