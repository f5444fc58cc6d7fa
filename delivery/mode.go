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

package delivery

import (
	"fmt"
	"strings"
	"time"
)

// Mode trades throughput against reliability on a weak link.
type Mode int

const (
	Speed Mode = iota
	Stability

	DefaultMode = Stability
)

func (m Mode) String() string {
	switch m {
	case Speed:
		return "speed"
	case Stability:
		return "stability"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func (m Mode) valid() bool {
	return m == Speed || m == Stability
}

// ParseMode accepts the numeric and named forms the collector sends,
// including the Spanish names used by older collector builds.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "speed", "velocidad":
		return Speed, nil
	case "1", "stability", "estabilidad":
		return Stability, nil
	}
	return DefaultMode, fmt.Errorf("unknown mode %q", s)
}

// DelayProfile is the set of pauses inserted between the messages of one
// frame so the receiver's buffers can drain.
type DelayProfile struct {
	BetweenChunks time.Duration
	AfterHeader   time.Duration
	AfterFrame    time.Duration
	AfterFooter   time.Duration
	SmallFrame    time.Duration
}

var (
	stabilityDelays = DelayProfile{
		BetweenChunks: 30 * time.Millisecond,
		AfterHeader:   150 * time.Millisecond,
		AfterFrame:    200 * time.Millisecond,
		AfterFooter:   200 * time.Millisecond,
		SmallFrame:    50 * time.Millisecond,
	}
	speedDelays = DelayProfile{
		BetweenChunks: 1 * time.Millisecond,
		AfterHeader:   2 * time.Millisecond,
		AfterFrame:    2 * time.Millisecond,
		AfterFooter:   5 * time.Millisecond,
		SmallFrame:    1 * time.Millisecond,
	}
)

// DelaysFor returns the delay profile for m.
func DelaysFor(m Mode) DelayProfile {
	if m == Speed {
		return speedDelays
	}
	return stabilityDelays
}
