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

// Package delivery gets validated frames to the collector over a link that
// may be slow, lossy or about to drop. Each frame is sent one of three
// ways depending on its size, with pauses from the active DelayProfile so
// the receiver can keep up. There is no application level acknowledgement:
// a frame counts as sent once every message for it has been handed to the
// transport.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/juju/ratelimit"

	"github.com/TheCacophonyProject/frame-streamer/frame"
	"github.com/TheCacophonyProject/frame-streamer/guard"
	"github.com/TheCacophonyProject/frame-streamer/loglimiter"
	"github.com/TheCacophonyProject/frame-streamer/throttle"
)

const (
	statsEvery     = 10
	minLogInterval = 10 * time.Second
)

// Transport is the outbound half of the collector connection.
type Transport interface {
	SendBinary([]byte) error
	SendText(string) error
	IsConnected() bool
}

// FrameProvider hands out frames that are safe to send.
type FrameProvider interface {
	CaptureValidated() (*frame.Frame, error)
	Release(*frame.Frame)
}

// Waiter pauses while the transport keeps being serviced.
type Waiter interface {
	Wait(time.Duration)
}

// Stats are the delivery counters reported to the collector.
type Stats struct {
	Sent    uint64
	Dropped uint64
	Failed  uint64

	LastFrameSize   int
	SuccessRate     float64
	AverageTransfer time.Duration
	LastSend        time.Time
}

func New(t Transport, frames FrameProvider, w Waiter, clock ratelimit.Clock) *Engine {
	e := &Engine{
		transport: t,
		frames:    frames,
		wait:      w,
		clock:     clock,
		highQual:  throttle.NewGateWithClock(throttle.DefaultThrottlerConfig(), nil, clock),
		log:       loglimiter.New(minLogInterval),
		stats:     Stats{SuccessRate: 1},
	}
	e.SetMode(DefaultMode)
	return e
}

type Engine struct {
	transport Transport
	frames    FrameProvider
	wait      Waiter
	clock     ratelimit.Clock
	highQual  *throttle.Gate
	log       *loglimiter.LogLimiter

	mode   Mode
	delays DelayProfile
	lastID uint32

	stats         Stats
	totalTransfer time.Duration
}

// transfer is the state of one chunked send. The chunk size and delays
// are fixed when it starts so a mode change mid-frame cannot split one
// frame's chunks across two plans.
type transfer struct {
	id        uint32
	total     int
	chunkSize int
	sent      int
	delays    DelayProfile
}

// SetMode switches delay profile and chunk plan. Anything other than
// Speed or Stability falls back to Stability.
func (e *Engine) SetMode(m Mode) {
	if !m.valid() {
		log.Printf("invalid mode %d, using %s", int(m), Stability)
		m = Stability
	}
	e.mode = m
	e.delays = DelaysFor(m)
	log.Printf("delivery mode %s (chunk delay %v, header delay %v, frame delay %v)",
		m, e.delays.BetweenChunks, e.delays.AfterHeader, e.delays.AfterFrame)
}

func (e *Engine) Mode() Mode {
	return e.mode
}

func (e *Engine) Delays() DelayProfile {
	return e.delays
}

func (e *Engine) Stats() Stats {
	return e.stats
}

// SetHighQualityGate replaces the gate used by TickHighQuality.
func (e *Engine) SetHighQualityGate(g *throttle.Gate) {
	e.highQual = g
}

// Tick captures and sends one frame. It only returns an error when the
// sensor is beyond recovery; every other problem is counted and logged.
func (e *Engine) Tick(ctx context.Context) error {
	if !e.transport.IsConnected() {
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}

	start := e.clock.Now()

	f, err := e.frames.CaptureValidated()
	if err != nil {
		if errors.Is(err, guard.ErrSensorFatal) {
			return err
		}
		e.stats.Dropped++
		e.log.Printf("frame dropped: %v", err)
		return nil
	}
	defer e.frames.Release(f)

	e.stats.LastFrameSize = f.Len()
	if err := frame.ValidateJPEG(f.Buf); err != nil {
		e.stats.Dropped++
		e.log.Printf("invalid frame dropped: %v", err)
		return nil
	}

	var ok bool
	switch SelectStrategy(f.Len()) {
	case Direct:
		ok = e.sendDirect(f)
	case AckWrapped:
		ok = e.sendAckWrapped(f)
	default:
		ok = e.sendChunked(ctx, f)
	}

	e.record(ok, e.clock.Now().Sub(start))
	return nil
}

// TickHighQuality is Tick limited to one frame per gate interval.
func (e *Engine) TickHighQuality(ctx context.Context) error {
	if !e.highQual.Allow() {
		return nil
	}
	return e.Tick(ctx)
}

func (e *Engine) record(ok bool, elapsed time.Duration) {
	s := &e.stats
	if ok {
		s.Sent++
		s.LastSend = e.clock.Now()
		e.totalTransfer += elapsed
		s.AverageTransfer = e.totalTransfer / time.Duration(s.Sent)
	} else {
		s.Failed++
		log.Printf("frame transfer failed after %v", elapsed)
	}
	s.SuccessRate = float64(s.Sent) / float64(s.Sent+s.Failed)

	if ok && s.Sent%statsEvery == 0 {
		log.Printf("frames: %d sent, %d failed, %d dropped; success %.1f%%; average transfer %v; mode %s",
			s.Sent, s.Failed, s.Dropped, s.SuccessRate*100, s.AverageTransfer, e.mode)
	}
}

func (e *Engine) sendDirect(f *frame.Frame) bool {
	e.sendBinary(f.Buf)
	e.wait.Wait(e.delays.SmallFrame)
	return true
}

func (e *Engine) sendAckWrapped(f *frame.Frame) bool {
	d := e.delays
	e.lastID++
	id := e.lastID

	e.sendJSON(frameStart{Type: "frame_start", ID: id, Size: f.Len()})
	e.wait.Wait(d.AfterHeader)
	e.sendBinary(f.Buf)
	e.wait.Wait(d.AfterFrame)
	e.sendJSON(frameEnd{Type: "frame_end", ID: id})
	e.wait.Wait(d.AfterFooter)
	return true
}

func (e *Engine) sendChunked(ctx context.Context, f *frame.Frame) bool {
	e.lastID++
	t := &transfer{
		id:        e.lastID,
		total:     f.Len(),
		chunkSize: ChunkSize(f.Len(), e.mode),
		delays:    e.delays,
	}
	chunkDelay := t.delays.BetweenChunks
	if t.total > thresholdXLarge {
		chunkDelay = chunkDelay * 3 / 2
	}
	chunks := chunkCount(t.total, t.chunkSize)

	e.sendJSON(imgStart{
		Type:      "img_start",
		ID:        t.id,
		Size:      t.total,
		Chunks:    chunks,
		ChunkSize: t.chunkSize,
		Width:     f.Width,
		Height:    f.Height,
	})
	e.wait.Wait(t.delays.AfterHeader)

	for t.sent < t.total {
		if err := ctx.Err(); err != nil {
			log.Printf("frame %d cancelled after %d of %d bytes: %v", t.id, t.sent, t.total, err)
			e.sendJSON(imgEnd{Type: "img_end", ID: t.id, Size: t.total, Success: false})
			return false
		}
		end := t.sent + t.chunkSize
		if end > t.total {
			end = t.total
		}
		e.sendBinary(f.Buf[t.sent:end])
		t.sent = end
		e.wait.Wait(chunkDelay)
	}

	e.sendJSON(imgEnd{Type: "img_end", ID: t.id, Size: t.total, Success: true})
	e.wait.Wait(t.delays.AfterFooter)
	return true
}

func (e *Engine) sendBinary(b []byte) {
	if err := e.transport.SendBinary(b); err != nil {
		e.log.Printf("send failed: %v", err)
	}
}

func (e *Engine) sendJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("could not encode message: %v", err)
		return
	}
	if err := e.transport.SendText(string(b)); err != nil {
		e.log.Printf("send failed: %v", err)
	}
}
