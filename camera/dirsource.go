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

// Package camera provides the frame sources the streamer can run on.
package camera

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"

	"github.com/TheCacophonyProject/frame-streamer/frame"
)

var (
	ErrBusy     = errors.New("frame buffer in use")
	ErrNoFrames = errors.New("no frames available")
)

type Config struct {
	// Dir holds the *.jpg frames. A sub-directory named after a
	// resolution profile (e.g. "fhd") is used for that profile if present.
	Dir string
	// PowerPin is the GPIO pin switching camera power. Empty disables
	// power cycling.
	PowerPin     string
	PowerOffTime time.Duration
	StartupTime  time.Duration
}

func DefaultConfig() Config {
	return Config{
		PowerOffTime: 2 * time.Second,
		StartupTime:  8 * time.Second,
	}
}

// Waiter pauses for a duration.
type Waiter interface {
	Wait(time.Duration)
}

// DirSource serves JPEG files from a directory in a loop. It has a single
// frame buffer, so every Capture must be followed by a Release.
type DirSource struct {
	conf  Config
	wait  Waiter
	now   func() time.Time
	files []string
	next  int

	res    frame.Resolution
	params map[frame.Param]int
	buf    []byte
	out    *frame.Frame
}

// Open loads the frames for the default resolution.
func Open(conf Config, w Waiter) (*DirSource, error) {
	res, _ := frame.ProfileByID(frame.DefaultResolution)
	s := &DirSource{
		conf:   conf,
		wait:   w,
		now:    time.Now,
		params: map[frame.Param]int{frame.Quality: frame.DefaultQuality},
	}
	if err := s.load(res); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DirSource) Capture() (*frame.Frame, error) {
	if s.out != nil {
		return nil, ErrBusy
	}
	if len(s.files) == 0 {
		return nil, ErrNoFrames
	}

	name := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	s.buf = append(s.buf[:0], data...)
	s.out = &frame.Frame{
		Buf:       s.buf,
		Width:     s.res.Width,
		Height:    s.res.Height,
		Timestamp: s.now(),
	}
	return s.out, nil
}

func (s *DirSource) Release(f *frame.Frame) {
	if f != nil && f == s.out {
		s.out = nil
	}
}

// Reinitialize power cycles the camera, when a power pin is configured,
// and reloads the frames for the current resolution.
func (s *DirSource) Reinitialize() error {
	s.out = nil
	if err := s.CyclePower(); err != nil {
		return err
	}
	return s.load(s.res)
}

func (s *DirSource) ApplyResolution(r frame.Resolution) error {
	return s.load(r)
}

func (s *DirSource) ApplyParameter(p frame.Param, v int) error {
	s.params[p] = v
	return nil
}

// Parameter returns the last value applied for p.
func (s *DirSource) Parameter(p frame.Param) (int, bool) {
	v, ok := s.params[p]
	return v, ok
}

// CyclePower turns the camera off and on again through the power pin.
func (s *DirSource) CyclePower() error {
	if s.conf.PowerPin == "" {
		return nil
	}
	pin := gpioreg.ByName(s.conf.PowerPin)
	if pin == nil {
		return fmt.Errorf("unknown camera power pin %q", s.conf.PowerPin)
	}

	log.Print("turning camera power off")
	if err := pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("failed to set camera power pin low: %v", err)
	}
	s.wait.Wait(s.conf.PowerOffTime)

	log.Print("turning camera power on")
	if err := pin.Out(gpio.High); err != nil {
		return fmt.Errorf("failed to set camera power pin high: %v", err)
	}

	log.Print("waiting for camera startup")
	s.wait.Wait(s.conf.StartupTime)
	log.Print("camera should be ready")
	return nil
}

func (s *DirSource) load(r frame.Resolution) error {
	dir := filepath.Join(s.conf.Dir, strings.ToLower(r.Name))
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		dir = s.conf.Dir
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%w in %s", ErrNoFrames, dir)
	}
	sort.Strings(files)

	s.files = files
	s.next = 0
	s.res = r
	return nil
}
