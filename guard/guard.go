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

// Package guard sits between the camera and everything downstream. It
// makes sure frames handed out come from a sensor believed to be healthy
// and recovers the two known failure modes of the sensor: silently
// producing black frames, and a resolution change that does not take.
package guard

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/TheCacophonyProject/frame-streamer/frame"
	"github.com/TheCacophonyProject/frame-streamer/loglimiter"
)

const minLogInterval = 10 * time.Second

var errNoBuffer = errors.New("no frame buffer returned")

// New returns a Guard wrapping src. The sensor is assumed to have been
// initialised at the default resolution and quality.
func New(src frame.Source, w Waiter, conf Config) *Guard {
	current, _ := frame.ProfileByID(frame.DefaultResolution)
	return &Guard{
		src:      src,
		wait:     w,
		conf:     conf,
		current:  current,
		quality:  frame.DefaultQuality,
		listener: nullListener{},
		log:      loglimiter.New(minLogInterval),
	}
}

type Guard struct {
	src      frame.Source
	wait     Waiter
	conf     Config
	listener ResetListener
	log      *loglimiter.LogLimiter

	current          frame.Resolution
	quality          int
	consecutiveBlack int
	health           HealthState
	outstanding      *frame.Frame
}

func (g *Guard) SetListener(l ResetListener) {
	if l == nil {
		l = nullListener{}
	}
	g.listener = l
}

// CaptureValidated returns a frame from a sensor believed to be healthy.
// The frame must be given back with Release before the next call.
//
// Black frames are released and reported as ErrBlackFrame. Once
// BlackFrameLimit of them arrive in a row the sensor is reset; if that
// works a fresh frame is returned, otherwise the error wraps
// ErrSensorFatal.
func (g *Guard) CaptureValidated() (*frame.Frame, error) {
	if g.src == nil {
		return nil, frame.ErrNoCamera
	}
	if g.outstanding != nil {
		return nil, ErrFrameOutstanding
	}
	if g.health == Fatal {
		return nil, ErrSensorFatal
	}

	g.discard(g.conf.StaleFrames, 0)

	f, err := g.grab()
	if err != nil {
		// Only unbroken runs of black frames count towards a reset.
		g.consecutiveBlack = 0
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}

	if !frame.IsBlack(f.Buf) {
		g.consecutiveBlack = 0
		g.health = Healthy
		g.outstanding = f
		return f, nil
	}

	ratio := frame.DataRatio(f.Buf)
	g.src.Release(f)
	g.consecutiveBlack++
	g.log.Printf("black frame detected (%.1f%% data)", ratio*100)

	if g.consecutiveBlack < g.conf.BlackFrameLimit {
		g.health = Suspect
		return nil, ErrBlackFrame
	}

	log.Printf("sensor corrupt: %d consecutive black frames, resetting", g.consecutiveBlack)
	if err := g.resetSensor(); err != nil {
		return nil, err
	}

	f, err = g.grab()
	if err != nil {
		return nil, fmt.Errorf("%w after reset: %v", ErrCapture, err)
	}
	g.outstanding = f
	return f, nil
}

// Release hands a frame from CaptureValidated back to the source.
func (g *Guard) Release(f *frame.Frame) {
	if f == nil {
		return
	}
	if f != g.outstanding {
		log.Print("ignoring release of a frame that is not outstanding")
		return
	}
	g.src.Release(f)
	g.outstanding = nil
}

// ChangeResolution moves the sensor to the profile with the given id.
// The change is only kept if a frame captured afterwards looks sane;
// otherwise the previous profile is restored. If even that fails the
// sensor is reset, and a failed reset is fatal. When the previous profile
// can't be applied after a reset the error also wraps ErrResolutionApply
// and health drops to Suspect until a good frame arrives.
func (g *Guard) ChangeResolution(id int) error {
	next, ok := frame.ProfileByID(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownResolution, id)
	}
	if g.src == nil {
		return frame.ErrNoCamera
	}
	if next == g.current {
		return nil
	}
	if g.outstanding != nil {
		return ErrFrameOutstanding
	}

	if next.IsHighRes() {
		log.Printf("warning: %s is a high resolution profile and may be unstable", next)
	}
	log.Printf("changing resolution from %s to %s", g.current, next)

	prev := g.current
	if err := g.src.ApplyResolution(next); err != nil {
		log.Printf("error changing resolution: %v", err)
		if next.IsHighRes() {
			if resetErr := g.resetSensor(); resetErr != nil {
				return resetErr
			}
		}
		return fmt.Errorf("%w: %v", ErrResolutionApply, err)
	}

	g.wait.Wait(g.stabilization(next))

	err := g.validateResolution()
	if err == nil {
		g.current = next
		log.Printf("resolution validated: %s", next)
		return nil
	}
	log.Printf("resolution validation failed: %v", err)

	if revertErr := g.src.ApplyResolution(prev); revertErr == nil {
		g.wait.Wait(g.conf.Stabilization)
		log.Printf("reverted to %s", prev)
		return fmt.Errorf("%w: %v", ErrResolutionRejected, err)
	} else {
		log.Printf("can't revert to %s: %v", prev, revertErr)
	}

	if resetErr := g.resetSensor(); resetErr != nil {
		return resetErr
	}
	if applyErr := g.src.ApplyResolution(prev); applyErr != nil {
		log.Printf("failed to restore %s after reset: %v", prev, applyErr)
		g.health = Suspect
		return fmt.Errorf("%w: %v; %w: restoring %s after reset: %v",
			ErrResolutionRejected, err, ErrResolutionApply, prev, applyErr)
	}
	return fmt.Errorf("%w: %v", ErrResolutionRejected, err)
}

func (g *Guard) stabilization(r frame.Resolution) time.Duration {
	if r.IsHighRes() {
		return g.conf.Stabilization * time.Duration(g.conf.HighResFactor)
	}
	return g.conf.Stabilization
}

func (g *Guard) validateResolution() error {
	g.discard(g.conf.ValidationStaleFrames, g.conf.ValidationStaleGap)

	f, err := g.grab()
	if err != nil {
		return fmt.Errorf("no validation frame: %v", err)
	}
	defer g.src.Release(f)

	switch {
	case f.Len() < g.conf.MinValidationSize:
		return fmt.Errorf("validation frame too small: %d bytes", f.Len())
	case frame.IsBlack(f.Buf):
		return errors.New("validation frame is black")
	case !frame.HasSOI(f.Buf):
		return frame.ErrNoSOI
	}
	return nil
}

func (g *Guard) resetSensor() error {
	g.health = Recovering
	log.Print("resetting sensor")

	err := g.src.Reinitialize()
	g.listener.SensorReset(err)
	if err != nil {
		g.health = Fatal
		log.Printf("sensor reset failed: %v", err)
		return fmt.Errorf("%w: %v", ErrSensorFatal, err)
	}

	log.Print("sensor reset")
	g.health = Healthy
	g.consecutiveBlack = 0
	return nil
}

// discard captures and immediately releases n frames, waiting gap after
// each one.
func (g *Guard) discard(n int, gap time.Duration) {
	for i := 0; i < n; i++ {
		if f, err := g.grab(); err == nil {
			g.src.Release(f)
		}
		g.wait.Wait(gap)
	}
}

func (g *Guard) grab() (*frame.Frame, error) {
	f, err := g.src.Capture()
	if err != nil {
		return nil, err
	}
	if f == nil || len(f.Buf) == 0 {
		if f != nil {
			g.src.Release(f)
		}
		return nil, errNoBuffer
	}
	return f, nil
}

func (g *Guard) Resolution() frame.Resolution {
	return g.current
}

func (g *Guard) Quality() int {
	return g.quality
}

// Health returns the sensor state and, for Suspect, how many black
// frames have been seen in a row.
func (g *Guard) Health() (HealthState, int) {
	return g.health, g.consecutiveBlack
}

func (g *Guard) ConsecutiveBlack() int {
	return g.consecutiveBlack
}
