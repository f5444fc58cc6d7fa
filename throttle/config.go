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

import "time"

type ThrottlerConfig struct {
	// Interval is the minimum time between two frames let through.
	Interval time.Duration `yaml:"interval"`
	// Burst is how many frames may pass back to back after a quiet spell.
	Burst int64 `yaml:"burst"`
}

func DefaultThrottlerConfig() ThrottlerConfig {
	return ThrottlerConfig{
		Interval: 2 * time.Second,
		Burst:    1,
	}
}
