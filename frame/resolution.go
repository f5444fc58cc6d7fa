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
	"fmt"
	"strings"
)

// Resolution is one of the fixed sensor output profiles.
type Resolution struct {
	ID     int
	Width  int
	Height int
	Name   string
}

func (r Resolution) String() string {
	return fmt.Sprintf("%s (%dx%d)", r.Name, r.Width, r.Height)
}

// IsHighRes reports whether the profile is at or above the FHD cutoff.
// These profiles take longer to settle after a change.
func (r Resolution) IsHighRes() bool {
	return r.ID >= HighResCutoff
}

const (
	QQVGA = iota
	QCIF
	HQVGA
	QVGA
	CIF
	VGA
	SVGA
	XGA
	HD
	SXGA
	UXGA
	FHD
	QXGA
)

const (
	// HighResCutoff is the first profile id considered high resolution.
	HighResCutoff     = FHD
	DefaultResolution = VGA

	MinQuality     = 5
	MaxQuality     = 63
	DefaultQuality = 15

	MinLevel = -2
	MaxLevel = 2
)

var profiles = []Resolution{
	{QQVGA, 160, 120, "QQVGA"},
	{QCIF, 176, 144, "QCIF"},
	{HQVGA, 240, 176, "HQVGA"},
	{QVGA, 320, 240, "QVGA"},
	{CIF, 400, 296, "CIF"},
	{VGA, 640, 480, "VGA"},
	{SVGA, 800, 600, "SVGA"},
	{XGA, 1024, 768, "XGA"},
	{HD, 1280, 720, "HD"},
	{SXGA, 1280, 1024, "SXGA"},
	{UXGA, 1600, 1200, "UXGA"},
	{FHD, 1920, 1080, "FHD"},
	{QXGA, 2048, 1536, "QXGA"},
}

// ProfileByID maps a numeric profile id to its Resolution.
func ProfileByID(id int) (Resolution, bool) {
	if id < 0 || id >= len(profiles) {
		return Resolution{}, false
	}
	return profiles[id], true
}

// Profiles returns a copy of the profile table ordered by id.
func Profiles() []Resolution {
	out := make([]Resolution, len(profiles))
	copy(out, profiles)
	return out
}

// SupportedResolutions lists the profiles in the "id:NAME(WxH)" form the
// collector displays.
func SupportedResolutions() string {
	parts := make([]string, 0, len(profiles))
	for _, p := range profiles {
		parts = append(parts, fmt.Sprintf("%d:%s(%dx%d)", p.ID, p.Name, p.Width, p.Height))
	}
	return strings.Join(parts, ",")
}
