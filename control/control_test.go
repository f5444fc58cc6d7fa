package control

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/frame-streamer/delivery"
	"github.com/TheCacophonyProject/frame-streamer/frame"
	"github.com/TheCacophonyProject/frame-streamer/guard"
	"github.com/TheCacophonyProject/frame-streamer/pacing"
)

type fakeSender struct {
	sent []string
}

func (s *fakeSender) SendText(msg string) error {
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) decoded(t *testing.T) []map[string]interface{} {
	var out []map[string]interface{}
	for _, m := range s.sent {
		v := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(m), &v))
		out = append(out, v)
	}
	return out
}

type fakeCamera struct {
	res     frame.Resolution
	changes []int
	ints    map[string]int
	bools   map[string]bool
	err     error
}

func newFakeCamera() *fakeCamera {
	res, _ := frame.ProfileByID(frame.VGA)
	return &fakeCamera{res: res, ints: map[string]int{}, bools: map[string]bool{}}
}

func (c *fakeCamera) ChangeResolution(id int) error {
	c.changes = append(c.changes, id)
	if c.err != nil {
		return c.err
	}
	c.res, _ = frame.ProfileByID(id)
	return nil
}

func (c *fakeCamera) Resolution() frame.Resolution     { return c.res }
func (c *fakeCamera) Health() (guard.HealthState, int) { return guard.Healthy, 0 }

func (c *fakeCamera) setInt(name string, lo, hi int) func(int) error {
	return func(v int) error {
		if v < lo || v > hi {
			return guard.ErrOutOfRange
		}
		c.ints[name] = v
		return nil
	}
}

func (c *fakeCamera) SetQuality(v int) error    { return c.setInt("quality", 5, 63)(v) }
func (c *fakeCamera) SetBrightness(v int) error { return c.setInt("brightness", -2, 2)(v) }
func (c *fakeCamera) SetContrast(v int) error   { return c.setInt("contrast", -2, 2)(v) }

func (c *fakeCamera) SetExposure(b bool) error     { c.bools["exposure"] = b; return nil }
func (c *fakeCamera) SetGain(b bool) error         { c.bools["gain"] = b; return nil }
func (c *fakeCamera) SetWhiteBalance(b bool) error { c.bools["whitebalance"] = b; return nil }
func (c *fakeCamera) SetHMirror(b bool) error      { c.bools["hmirror"] = b; return nil }
func (c *fakeCamera) SetVFlip(b bool) error        { c.bools["vflip"] = b; return nil }

type fakeStreamer struct {
	mode  delivery.Mode
	stats delivery.Stats
}

func (s *fakeStreamer) SetMode(m delivery.Mode) { s.mode = m }
func (s *fakeStreamer) Mode() delivery.Mode     { return s.mode }
func (s *fakeStreamer) Stats() delivery.Stats   { return s.stats }

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time        { return c.now }
func (c *testClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	out       *fakeSender
	camera    *fakeCamera
	pacer     *pacing.Controller
	streamer  *fakeStreamer
	clock     *testClock
	reporter  *Reporter
	processor *Processor
}

func newFixture() *fixture {
	f := &fixture{
		out:      new(fakeSender),
		camera:   newFakeCamera(),
		pacer:    pacing.New(pacing.DefaultConfig()),
		streamer: &fakeStreamer{mode: delivery.Stability, stats: delivery.Stats{SuccessRate: 1}},
		clock:    &testClock{now: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)},
	}
	f.reporter = NewReporter(f.out, f.camera, f.pacer, f.streamer, f.clock, 10*time.Second)
	f.processor = NewProcessor(f.out, f.camera, f.pacer, f.streamer, f.reporter)
	return f
}

func (f *fixture) command(cmd string, val interface{}) {
	b, err := json.Marshal(map[string]interface{}{"type": "command", "cmd": cmd, "val": val})
	if err != nil {
		panic(err)
	}
	f.processor.Handle(b)
}

func TestCommandsAreQueuedUntilApply(t *testing.T) {
	f := newFixture()

	f.command(CmdResolution, "8")
	assert.Equal(t, 1, f.processor.pending())
	assert.Empty(t, f.camera.changes)
	assert.Empty(t, f.out.sent)

	f.processor.Apply()
	assert.Equal(t, []int{frame.HD}, f.camera.changes)
	assert.Equal(t, 0, f.processor.pending())
	assert.Equal(t, []map[string]interface{}{{
		"type":   "response",
		"cmd":    "resolution",
		"status": "ok",
		"value":  "8 (HD (1280x720))",
	}}, f.out.decoded(t))
}

func TestNumericValues(t *testing.T) {
	f := newFixture()

	f.command(CmdQuality, 20)
	f.command(CmdBrightness, "-1")
	f.processor.Apply()

	assert.Equal(t, 20, f.camera.ints["quality"])
	assert.Equal(t, -1, f.camera.ints["brightness"])
}

func TestRejectedValues(t *testing.T) {
	f := newFixture()

	f.command(CmdQuality, "4")
	f.command(CmdContrast, "abc")
	f.command(CmdFPS, "31")
	f.command(CmdMode, "turbo")
	f.processor.Apply()

	for _, msg := range f.out.decoded(t) {
		assert.Equal(t, "error", msg["status"], msg["cmd"])
	}
	assert.Len(t, f.out.sent, 4)
	assert.Empty(t, f.camera.ints)
	assert.Equal(t, pacing.DefaultRate, f.pacer.TargetRate())
}

func TestFailedResolutionReportsError(t *testing.T) {
	f := newFixture()
	f.camera.err = guard.ErrResolutionRejected

	f.command(CmdResolution, "11")
	f.processor.Apply()

	msgs := f.out.decoded(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "error", msgs[0]["status"])
	assert.Equal(t, guard.ErrResolutionRejected.Error(), msgs[0]["value"])
}

func TestFPSAndMode(t *testing.T) {
	f := newFixture()

	f.command(CmdFPS, "10")
	f.command(CmdMode, "velocidad")
	f.processor.Apply()

	assert.Equal(t, 10, f.pacer.TargetRate())
	assert.Equal(t, delivery.Speed, f.streamer.mode)
	msgs := f.out.decoded(t)
	assert.Equal(t, "10 (actual: 10.0)", msgs[0]["value"])
	assert.Equal(t, "speed", msgs[1]["value"])
}

func TestSwitches(t *testing.T) {
	f := newFixture()

	f.command(CmdHMirror, "on")
	f.command(CmdVFlip, "true")
	f.command(CmdGain, "0")
	f.command(CmdExposure, 1)
	f.command(CmdWhiteBalance, "off")
	f.processor.Apply()

	assert.Equal(t, map[string]bool{
		"hmirror":      true,
		"vflip":        true,
		"gain":         false,
		"exposure":     true,
		"whitebalance": false,
	}, f.camera.bools)
	assert.Equal(t, "on", f.out.decoded(t)[0]["value"])
}

func TestUnknownAndIgnoredMessages(t *testing.T) {
	f := newFixture()

	f.processor.Handle([]byte("not json"))
	f.processor.Handle([]byte(`{"type":"ack","id":3}`))
	f.processor.Handle([]byte(`{"type":"command"}`))
	assert.Equal(t, 0, f.processor.pending())

	f.command("selfdestruct", "1")
	f.processor.Apply()
	msgs := f.out.decoded(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "error", msgs[0]["status"])
}

func TestStatsSendsHealth(t *testing.T) {
	f := newFixture()

	f.command(CmdStats, "")
	f.processor.Apply()

	msgs := f.out.decoded(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "health", msgs[0]["type"])
	assert.Equal(t, "response", msgs[1]["type"])
	assert.Equal(t, "ok", msgs[1]["status"])
}

func TestRebootIsImmediate(t *testing.T) {
	f := newFixture()

	f.command(CmdQuality, "30")
	f.command(CmdReboot, "")

	_, ok := f.processor.RestartRequested()
	assert.True(t, ok)
	msgs := f.out.decoded(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "reboot", msgs[0]["cmd"])
	assert.Equal(t, "status", msgs[1]["type"])
	assert.Equal(t, 1, f.processor.pending())
}

func TestRegister(t *testing.T) {
	f := newFixture()
	f.clock.Sleep(3723 * time.Second)

	require.NoError(t, f.reporter.Register())

	msgs := f.out.decoded(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, map[string]interface{}{"type": "register", "device": "camera"}, msgs[0])
	assert.Equal(t, "info", msgs[1]["type"])
	assert.Equal(t, frame.SupportedResolutions(), msgs[1]["resolutions"])
	assert.Equal(t, "stability", msgs[1]["mode"])
	assert.Equal(t, 20.0, msgs[1]["fps"])
	assert.Equal(t, "health", msgs[2]["type"])
	assert.Equal(t, "1h 2m 3s", msgs[2]["uptime"])
	assert.Equal(t, "healthy", msgs[2]["health"])
	assert.Equal(t, "VGA (640x480)", msgs[2]["resolution"])
}

func TestPeriodicHealth(t *testing.T) {
	f := newFixture()
	f.streamer.stats = delivery.Stats{Sent: 9, Dropped: 2, Failed: 1, SuccessRate: 0.9, AverageTransfer: 120 * time.Millisecond}

	require.NoError(t, f.reporter.Periodic())
	require.NoError(t, f.reporter.Periodic())
	assert.Len(t, f.out.sent, 1)

	f.clock.Sleep(10 * time.Second)
	require.NoError(t, f.reporter.Periodic())
	msgs := f.out.decoded(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, 9.0, msgs[1]["frames"])
	assert.Equal(t, 2.0, msgs[1]["dropped"])
	assert.Equal(t, 1.0, msgs[1]["failed"])
	assert.Equal(t, 120.0, msgs[1]["avgMs"])
}

func TestReporterSendError(t *testing.T) {
	f := newFixture()
	f.reporter.setSender(failingSender{})
	assert.Error(t, f.reporter.SendHealth())
}

type failingSender struct{}

func (failingSender) SendText(string) error { return errors.New("not connected") }
