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

package frame

import (
	"errors"
	"time"
)

// ErrNoCamera is returned by a Source when there is no camera device to
// talk to.
var ErrNoCamera = errors.New("no camera available")

// Frame is one captured JPEG image. The buffer is owned by the Source
// that produced it and must be handed back through Release exactly once.
type Frame struct {
	Buf       []byte
	Width     int
	Height    int
	Timestamp time.Time
}

// Len returns the number of bytes in the frame.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Buf)
}

// Param names a sensor setting that can be applied without validation.
type Param string

const (
	Quality      Param = "quality"
	Brightness   Param = "brightness"
	Contrast     Param = "contrast"
	Exposure     Param = "exposure"
	Gain         Param = "gain"
	WhiteBalance Param = "whitebalance"
	HMirror      Param = "hmirror"
	VFlip        Param = "vflip"
)

// Source is the capture device. Implementations are not expected to be
// safe for concurrent use; the streamer drives them from a single loop.
type Source interface {
	// Capture returns the next frame. The frame must be released before
	// Capture is called again.
	Capture() (*Frame, error)
	Release(*Frame)
	// Reinitialize tears the sensor down and brings it back up.
	Reinitialize() error
	ApplyResolution(Resolution) error
	ApplyParameter(Param, int) error
}
