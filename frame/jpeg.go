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

import "errors"

const (
	// MinFrameSize is the smallest buffer worth sending.
	MinFrameSize = 100

	blackSampleSize = 1024
	blackMinRatio   = 0.1
	eoiSearchWindow = 100
)

var (
	ErrTooSmall = errors.New("frame too small")
	ErrNoSOI    = errors.New("not a JPEG (no start of image marker)")
	ErrNoEOI    = errors.New("incomplete JPEG (no end of image marker)")
	ErrEmptyBuf = errors.New("empty frame buffer")
)

// HasSOI reports whether buf starts with the JPEG start of image marker.
func HasSOI(buf []byte) bool {
	return len(buf) >= 2 && buf[0] == 0xFF && buf[1] == 0xD8
}

// HasEOI looks for the JPEG end of image marker in the tail of buf.
// Encoders may pad after the marker so the last eoiSearchWindow bytes
// are scanned backwards.
func HasEOI(buf []byte) bool {
	n := len(buf)
	for i := n - 2; i >= 0 && i > n-eoiSearchWindow; i-- {
		if buf[i] == 0xFF && buf[i+1] == 0xD9 {
			return true
		}
	}
	return false
}

// IsBlack samples the start of buf and reports whether it looks like the
// output of a sensor that has stopped producing image data. Buffers under
// MinFrameSize are treated as black.
func IsBlack(buf []byte) bool {
	if len(buf) < MinFrameSize {
		return true
	}
	return DataRatio(buf) < blackMinRatio
}

// DataRatio is the fraction of the sampled bytes that are neither 0x00
// nor 0xFF.
func DataRatio(buf []byte) float64 {
	sample := buf
	if len(sample) > blackSampleSize {
		sample = sample[:blackSampleSize]
	}
	if len(sample) == 0 {
		return 0
	}
	data := 0
	for _, b := range sample {
		if b != 0x00 && b != 0xFF {
			data++
		}
	}
	return float64(data) / float64(len(sample))
}

// ValidateJPEG is the structural check every frame passes before it is
// sent.
func ValidateJPEG(buf []byte) error {
	if len(buf) == 0 {
		return ErrEmptyBuf
	}
	if len(buf) < MinFrameSize {
		return ErrTooSmall
	}
	if !HasSOI(buf) {
		return ErrNoSOI
	}
	if !HasEOI(buf) {
		return ErrNoEOI
	}
	return nil
}
