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

// Package pacing caps the frame rate and measures the rate achieved.
package pacing

import (
	"log"
	"time"
)

const (
	MinRate     = 1
	MaxRate     = 30
	DefaultRate = 20

	historyLen = 10
)

type Config struct {
	Rate    int
	Enabled bool
}

func DefaultConfig() Config {
	return Config{
		Rate:    DefaultRate,
		Enabled: true,
	}
}

// Controller decides whether enough time has passed to send another frame.
// It is driven from the streaming loop and is not safe for concurrent use.
type Controller struct {
	rate     int
	interval time.Duration
	enabled  bool
	last     time.Time

	history [historyLen]time.Duration
	next    int
	total   time.Duration
}

func New(conf Config) *Controller {
	c := &Controller{enabled: conf.Enabled}
	c.SetTargetRate(conf.Rate)
	return c
}

// SetTargetRate clamps fps to [MinRate, MaxRate]. The interval is a whole
// number of milliseconds, as the collector expects. The achieved rate
// history is reseeded with the new interval.
func (c *Controller) SetTargetRate(fps int) {
	if fps < MinRate {
		fps = MinRate
	}
	if fps > MaxRate {
		fps = MaxRate
	}
	c.rate = fps
	c.interval = time.Duration(1000/fps) * time.Millisecond
	c.seed()
	log.Printf("target frame rate %d fps (interval %v)", fps, c.interval)
}

func (c *Controller) seed() {
	for i := range c.history {
		c.history[i] = c.interval
	}
	c.total = c.interval * historyLen
	c.next = 0
}

// ShouldProceed reports whether a frame may be sent at now.
func (c *Controller) ShouldProceed(now time.Time) bool {
	if !c.enabled {
		return true
	}
	return now.Sub(c.last) >= c.interval
}

// OnProceeded records that a frame was sent at now.
func (c *Controller) OnProceeded(now time.Time) {
	if !c.enabled {
		return
	}
	if !c.last.IsZero() {
		d := now.Sub(c.last)
		c.total += d - c.history[c.next]
		c.history[c.next] = d
		c.next = (c.next + 1) % historyLen
	}
	c.last = now
}

// AchievedRate is the frame rate over the last ten sent frames.
func (c *Controller) AchievedRate() float64 {
	if c.total <= 0 {
		return 0
	}
	mean := c.total.Seconds() / historyLen
	return 1 / mean
}

func (c *Controller) Enable() {
	c.enabled = true
	log.Print("frame pacing enabled")
}

func (c *Controller) Disable() {
	c.enabled = false
	log.Print("frame pacing disabled")
}

func (c *Controller) Enabled() bool {
	return c.enabled
}

func (c *Controller) TargetRate() int {
	return c.rate
}

func (c *Controller) Interval() time.Duration {
	return c.interval
}
