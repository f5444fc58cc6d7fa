// Package scheduler provides the one waiting primitive the streamer uses:
// wait at least some duration while continuing to service the transport.
// Nothing in the streaming loop blocks in a plain sleep, so a long
// chunked transfer never starves inbound control traffic or heartbeats.
package scheduler

import (
	"time"

	"github.com/juju/ratelimit"
)

// DefaultStep is how often the pump is serviced during a wait.
const DefaultStep = 2 * time.Millisecond

// Waiter waits for a duration, calling Pump every Step.
type Waiter struct {
	Clock ratelimit.Clock
	Pump  func()
	Step  time.Duration
}

// NewWaiter returns a Waiter on the real clock.
func NewWaiter(pump func()) *Waiter {
	return &Waiter{
		Clock: RealClock{},
		Pump:  pump,
		Step:  DefaultStep,
	}
}

// Wait returns once at least d has elapsed on the clock. Pump is called
// at least once for any positive d.
func (w *Waiter) Wait(d time.Duration) {
	if d <= 0 {
		return
	}
	step := w.Step
	if step <= 0 {
		step = DefaultStep
	}
	start := w.Clock.Now()
	for {
		if w.Pump != nil {
			w.Pump()
		}
		elapsed := w.Clock.Now().Sub(start)
		if elapsed >= d {
			return
		}
		rest := d - elapsed
		if rest > step {
			rest = step
		}
		w.Clock.Sleep(rest)
	}
}

// RealClock implements ratelimit.Clock in terms of standard time functions.
type RealClock struct{}

// Now implements Clock.Now by calling time.Now.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Sleep implements Clock.Sleep by calling time.Sleep.
func (RealClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
