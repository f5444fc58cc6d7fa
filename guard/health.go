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

package guard

import (
	"errors"
	"time"
)

// HealthState is the guard's belief about the sensor.
type HealthState int

const (
	Healthy HealthState = iota
	// Suspect means recent frames were black; the count is reported
	// alongside by Guard.Health.
	Suspect
	Recovering
	// Fatal is only reached after a sensor reset has been attempted and
	// failed. The device needs a restart.
	Fatal
)

func (s HealthState) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Suspect:
		return "suspect"
	case Recovering:
		return "recovering"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

var (
	// ErrSensorFatal is the one error that must not be handled locally:
	// the sensor could not be reset and the device has to restart.
	ErrSensorFatal = errors.New("sensor reset failed")

	ErrCapture            = errors.New("capture failed")
	ErrBlackFrame         = errors.New("black frame")
	ErrFrameOutstanding   = errors.New("previous frame not released")
	ErrUnknownResolution  = errors.New("unknown resolution")
	ErrResolutionApply    = errors.New("sensor rejected resolution")
	ErrResolutionRejected = errors.New("resolution change failed validation")
	ErrOutOfRange         = errors.New("value out of range")
)

// Config holds the guard's tuning. The defaults are the values the
// firmware shipped with.
type Config struct {
	// StaleFrames are discarded before each capture so a frame buffered
	// before a settings change is never served.
	StaleFrames int
	// BlackFrameLimit consecutive black frames trigger a sensor reset.
	BlackFrameLimit int
	// Stabilization is the settle time after a resolution change. High
	// resolution profiles wait HighResFactor times as long.
	Stabilization time.Duration
	HighResFactor int

	ValidationStaleFrames int
	ValidationStaleGap    time.Duration
	MinValidationSize     int
}

func DefaultConfig() Config {
	return Config{
		StaleFrames:           2,
		BlackFrameLimit:       3,
		Stabilization:         100 * time.Millisecond,
		HighResFactor:         3,
		ValidationStaleFrames: 3,
		ValidationStaleGap:    50 * time.Millisecond,
		MinValidationSize:     1000,
	}
}

// Waiter waits without starving the transport.
type Waiter interface {
	Wait(time.Duration)
}

// ResetListener is told about every sensor reset attempt.
type ResetListener interface {
	SensorReset(err error)
}

type nullListener struct{}

func (nullListener) SensorReset(error) {}
