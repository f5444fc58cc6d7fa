package control

import (
	"encoding/json"
	"time"

	"github.com/juju/ratelimit"

	"github.com/TheCacophonyProject/frame-streamer/frame"
)

const DefaultHealthInterval = 10 * time.Second

// Reporter tells the collector who we are and how streaming is going.
type Reporter struct {
	out      Sender
	camera   Camera
	pacer    Pacer
	streamer Streamer
	clock    ratelimit.Clock
	interval time.Duration

	start    time.Time
	lastSent time.Time
}

func NewReporter(out Sender, camera Camera, pacer Pacer, streamer Streamer, clock ratelimit.Clock, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	return &Reporter{
		out:      out,
		camera:   camera,
		pacer:    pacer,
		streamer: streamer,
		clock:    clock,
		interval: interval,
		start:    clock.Now(),
	}
}

// setSender points the reporter at a new connection.
func (r *Reporter) setSender(out Sender) {
	r.out = out
}

// Register sends the register, info and health messages a collector
// expects at the start of a connection.
func (r *Reporter) Register() error {
	if err := r.send(register{Type: "register", Device: "camera"}); err != nil {
		return err
	}
	err := r.send(info{
		Type:        "info",
		Resolutions: frame.SupportedResolutions(),
		Mode:        r.streamer.Mode().String(),
		FPS:         r.pacer.TargetRate(),
	})
	if err != nil {
		return err
	}
	return r.SendHealth()
}

// Periodic sends a health message if the interval has passed.
func (r *Reporter) Periodic() error {
	if r.clock.Now().Sub(r.lastSent) < r.interval {
		return nil
	}
	return r.SendHealth()
}

func (r *Reporter) SendHealth() error {
	now := r.clock.Now()
	r.lastSent = now
	return r.send(r.healthMessage(now))
}

func (r *Reporter) healthMessage(now time.Time) health {
	stats := r.streamer.Stats()
	state, _ := r.camera.Health()
	return health{
		Type:        "health",
		Frames:      stats.Sent,
		Dropped:     stats.Dropped,
		Failed:      stats.Failed,
		SuccessRate: stats.SuccessRate,
		AvgMs:       stats.AverageTransfer.Milliseconds(),
		FPS:         r.pacer.AchievedRate(),
		Mode:        r.streamer.Mode().String(),
		Resolution:  r.camera.Resolution().String(),
		Health:      state.String(),
		Uptime:      formatUptime(now.Sub(r.start)),
	}
}

func (r *Reporter) send(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.out.SendText(string(b))
}
