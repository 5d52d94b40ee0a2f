package agentstream

import "time"

// DefaultThrottleInterval is the minimum spacing between throttled
// interval deliveries.
const DefaultThrottleInterval = 500 * time.Millisecond

// Throttle rate-limits calls to fn to at most one per interval. The first
// trigger after a quiet window runs fn immediately; triggers inside the
// window coalesce into a single trailing call at the window's end.
//
// Throttle never runs fn on its own goroutine. The owner selects on C and
// calls Fire when it delivers, so fn always runs on the owner's goroutine.
type Throttle struct {
	interval time.Duration
	fn       func()
	now      func() time.Time

	last     time.Time // zero until the first call
	pending  bool
	deadline time.Time
	timer    *time.Timer
}

// NewThrottle returns a Throttle for fn. A nil now selects time.Now.
func NewThrottle(interval time.Duration, fn func(), now func() time.Time) *Throttle {
	if now == nil {
		now = time.Now
	}
	return &Throttle{interval: interval, fn: fn, now: now}
}

// Trigger runs fn now if the window since the last call has elapsed, or
// schedules a single trailing call otherwise.
func (t *Throttle) Trigger() {
	if t.pending {
		return
	}
	now := t.now()
	if t.last.IsZero() || now.Sub(t.last) >= t.interval {
		t.run(now)
		return
	}
	t.pending = true
	t.deadline = t.last.Add(t.interval)
	t.timer = time.NewTimer(t.deadline.Sub(now))
}

// C returns the channel that delivers when the scheduled call is due, or
// nil when nothing is scheduled.
func (t *Throttle) C() <-chan time.Time {
	if !t.pending || t.timer == nil {
		return nil
	}
	return t.timer.C
}

// Pending reports whether a trailing call is scheduled, and when.
func (t *Throttle) Pending() (time.Time, bool) {
	return t.deadline, t.pending
}

// Fire runs the scheduled call. It is a no-op when nothing is scheduled.
func (t *Throttle) Fire() {
	if !t.pending {
		return
	}
	t.stop()
	t.run(t.now())
}

// Flush runs a scheduled call immediately, before returning.
func (t *Throttle) Flush() {
	t.Fire()
}

// Cancel discards a scheduled call without running it.
func (t *Throttle) Cancel() {
	t.stop()
}

func (t *Throttle) run(now time.Time) {
	t.last = now
	t.fn()
}

func (t *Throttle) stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = false
	t.deadline = time.Time{}
}
