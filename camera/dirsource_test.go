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

package camera

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/frame-streamer/frame"
)

type nullWaiter struct {
	waits []time.Duration
}

func (w *nullWaiter) Wait(d time.Duration) {
	w.waits = append(w.waits, d)
}

func writeFrames(t *testing.T, dir string, contents ...string) {
	require.NoError(t, os.MkdirAll(dir, 0755))
	for i, c := range contents {
		name := filepath.Join(dir, string(rune('a'+i))+".jpg")
		require.NoError(t, os.WriteFile(name, []byte(c), 0644))
	}
}

func openTestSource(t *testing.T) (*DirSource, string) {
	dir := t.TempDir()
	writeFrames(t, dir, "one", "two")
	writeFrames(t, filepath.Join(dir, "fhd"), "big")

	conf := DefaultConfig()
	conf.Dir = dir
	s, err := Open(conf, new(nullWaiter))
	require.NoError(t, err)
	return s, dir
}

func TestCaptureLoops(t *testing.T) {
	s, _ := openTestSource(t)

	var got []string
	for i := 0; i < 3; i++ {
		f, err := s.Capture()
		require.NoError(t, err)
		got = append(got, string(f.Buf))
		assert.Equal(t, 640, f.Width)
		assert.Equal(t, 480, f.Height)
		s.Release(f)
	}
	assert.Equal(t, []string{"one", "two", "one"}, got)
}

func TestSingleBuffer(t *testing.T) {
	s, _ := openTestSource(t)

	f, err := s.Capture()
	require.NoError(t, err)
	_, err = s.Capture()
	assert.Equal(t, ErrBusy, err)

	s.Release(&frame.Frame{})
	_, err = s.Capture()
	assert.Equal(t, ErrBusy, err)

	s.Release(f)
	_, err = s.Capture()
	assert.NoError(t, err)
}

func TestResolutionDirectory(t *testing.T) {
	s, _ := openTestSource(t)

	fhd, _ := frame.ProfileByID(frame.FHD)
	require.NoError(t, s.ApplyResolution(fhd))
	f, err := s.Capture()
	require.NoError(t, err)
	assert.Equal(t, "big", string(f.Buf))
	assert.Equal(t, 1920, f.Width)
	s.Release(f)

	// No directory for SVGA, so the top level frames are used.
	svga, _ := frame.ProfileByID(frame.SVGA)
	require.NoError(t, s.ApplyResolution(svga))
	f, err = s.Capture()
	require.NoError(t, err)
	assert.Equal(t, "one", string(f.Buf))
	assert.Equal(t, 800, f.Width)
}

func TestReinitialize(t *testing.T) {
	s, dir := openTestSource(t)

	f, err := s.Capture()
	require.NoError(t, err)
	assert.Equal(t, "one", string(f.Buf))

	writeFrames(t, dir, "new")
	require.NoError(t, s.Reinitialize())

	f, err = s.Capture()
	require.NoError(t, err)
	assert.Equal(t, "new", string(f.Buf))
}

func TestReinitializeFailsWithoutFrames(t *testing.T) {
	s, dir := openTestSource(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "a.jpg")))
	require.NoError(t, os.Remove(filepath.Join(dir, "b.jpg")))

	err := s.Reinitialize()
	assert.True(t, errors.Is(err, ErrNoFrames))
}

func TestOpenEmptyDir(t *testing.T) {
	conf := DefaultConfig()
	conf.Dir = t.TempDir()
	_, err := Open(conf, new(nullWaiter))
	assert.True(t, errors.Is(err, ErrNoFrames))
}

func TestUnknownPowerPin(t *testing.T) {
	s, _ := openTestSource(t)
	s.conf.PowerPin = "NO_SUCH_PIN"
	assert.Error(t, s.Reinitialize())
}

func TestParameters(t *testing.T) {
	s, _ := openTestSource(t)

	v, ok := s.Parameter(frame.Quality)
	assert.True(t, ok)
	assert.Equal(t, frame.DefaultQuality, v)

	require.NoError(t, s.ApplyParameter(frame.VFlip, 1))
	v, _ = s.Parameter(frame.VFlip)
	assert.Equal(t, 1, v)
}
