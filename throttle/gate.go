// frame-streamer - stream JPEG frames from a camera to a remote collector
//  Copyright (C) 2026, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package throttle

import (
	"log"
	"time"

	"github.com/juju/ratelimit"
)

func NewGate(config ThrottlerConfig, listener ThrottledListener) *Gate {
	return NewGateWithClock(config, listener, new(realClock))
}

func NewGateWithClock(config ThrottlerConfig, listener ThrottledListener, clock ratelimit.Clock) *Gate {
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}
	if config.Interval <= 0 {
		log.Printf("invalid throttle interval %v, using %v", config.Interval, DefaultThrottlerConfig().Interval)
		config.Interval = DefaultThrottlerConfig().Interval
	}
	if listener == nil {
		listener = new(nullListener)
	}
	return &Gate{
		bucket:   ratelimit.NewBucketWithClock(config.Interval, burst, clock),
		listener: listener,
	}
}

// Gate lets an operation through at most once per interval. The bucket
// starts full so the first call always passes.
type Gate struct {
	bucket    *ratelimit.Bucket
	listener  ThrottledListener
	throttled uint64
	blocked   bool
}

// ThrottledListener is told when a gate starts refusing calls. It is not
// told again until a call has been let through.
type ThrottledListener interface {
	WhenThrottled()
}

type nullListener struct{}

func (lis *nullListener) WhenThrottled() {}

// Allow takes a token if one is available.
func (g *Gate) Allow() bool {
	if g.bucket.TakeAvailable(1) > 0 {
		g.blocked = false
		return true
	}
	g.throttled++
	if !g.blocked {
		g.blocked = true
		g.listener.WhenThrottled()
	}
	return false
}

// Throttled is the number of calls refused so far.
func (g *Gate) Throttled() uint64 {
	return g.throttled
}

// realClock implements ratelimit.Clock in terms of standard time functions.
type realClock struct{}

// Now implements Clock.Now by calling time.Now.
func (realClock) Now() time.Time {
	return time.Now()
}

// Sleep implements Clock.Sleep by calling time.Sleep.
func (realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
