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

// Strategy is how a single frame is put on the wire.
type Strategy int

const (
	// Direct sends the frame as one binary message.
	Direct Strategy = iota
	// AckWrapped brackets one binary message with frame_start/frame_end.
	AckWrapped
	// Chunked splits the frame between img_start and img_end.
	Chunked
)

func (s Strategy) String() string {
	switch s {
	case Direct:
		return "direct"
	case AckWrapped:
		return "ack-wrapped"
	case Chunked:
		return "chunked"
	}
	return "unknown"
}

const (
	DirectMaxSize     = 10000
	AckWrappedMaxSize = 30000
)

// SelectStrategy picks the strategy for a frame of n bytes.
func SelectStrategy(n int) Strategy {
	switch {
	case n <= DirectMaxSize:
		return Direct
	case n <= AckWrappedMaxSize:
		return AckWrapped
	}
	return Chunked
}

const (
	chunkTiny   = 1024
	chunkSmall  = 2048
	chunkMedium = 6144
	chunkLarge  = 12288
	chunkXLarge = 24576

	thresholdSmall  = 30000
	thresholdMedium = 100000
	thresholdLarge  = 200000
	// Frames above thresholdXLarge also get a longer pause between chunks.
	thresholdXLarge = 400000
)

// ChunkSize is the chunk size for a frame of n bytes. Speed mode never
// uses smaller chunks than Stability mode for the same frame.
func ChunkSize(n int, m Mode) int {
	if m == Speed {
		switch {
		case n > thresholdXLarge:
			return chunkXLarge
		case n > thresholdLarge:
			return chunkLarge
		case n > thresholdMedium:
			return chunkMedium
		case n > thresholdSmall:
			return chunkSmall
		}
		return chunkTiny
	}
	switch {
	case n > thresholdXLarge:
		return chunkLarge
	case n > thresholdLarge:
		return chunkMedium
	case n > thresholdMedium:
		return chunkSmall
	}
	return chunkTiny
}

func chunkCount(n, size int) int {
	return (n + size - 1) / size
}
