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
	"fmt"
	"log"

	"github.com/TheCacophonyProject/frame-streamer/frame"
)

// SetQuality sets the JPEG quality. Lower numbers are higher quality.
func (g *Guard) SetQuality(q int) error {
	if q < frame.MinQuality || q > frame.MaxQuality {
		return fmt.Errorf("%w: quality %d not in [%d, %d]", ErrOutOfRange, q, frame.MinQuality, frame.MaxQuality)
	}
	if err := g.apply(frame.Quality, q); err != nil {
		return err
	}
	g.quality = q
	return nil
}

func (g *Guard) SetBrightness(v int) error {
	return g.applyLevel(frame.Brightness, v)
}

func (g *Guard) SetContrast(v int) error {
	return g.applyLevel(frame.Contrast, v)
}

func (g *Guard) SetExposure(on bool) error {
	return g.apply(frame.Exposure, boolToInt(on))
}

func (g *Guard) SetGain(on bool) error {
	return g.apply(frame.Gain, boolToInt(on))
}

func (g *Guard) SetWhiteBalance(on bool) error {
	return g.apply(frame.WhiteBalance, boolToInt(on))
}

func (g *Guard) SetHMirror(on bool) error {
	return g.apply(frame.HMirror, boolToInt(on))
}

func (g *Guard) SetVFlip(on bool) error {
	return g.apply(frame.VFlip, boolToInt(on))
}

func (g *Guard) applyLevel(p frame.Param, v int) error {
	if v < frame.MinLevel || v > frame.MaxLevel {
		return fmt.Errorf("%w: %s %d not in [%d, %d]", ErrOutOfRange, p, v, frame.MinLevel, frame.MaxLevel)
	}
	return g.apply(p, v)
}

func (g *Guard) apply(p frame.Param, v int) error {
	if g.src == nil {
		return frame.ErrNoCamera
	}
	if err := g.src.ApplyParameter(p, v); err != nil {
		return fmt.Errorf("failed to set %s: %w", p, err)
	}
	log.Printf("%s set to %d", p, v)
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
