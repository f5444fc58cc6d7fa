// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/TheCacophonyProject/window"
	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/ratelimit"

	"github.com/TheCacophonyProject/frame-streamer/camera"
	"github.com/TheCacophonyProject/frame-streamer/control"
	"github.com/TheCacophonyProject/frame-streamer/delivery"
	"github.com/TheCacophonyProject/frame-streamer/guard"
	"github.com/TheCacophonyProject/frame-streamer/loglimiter"
	"github.com/TheCacophonyProject/frame-streamer/pacing"
	"github.com/TheCacophonyProject/frame-streamer/scheduler"
	"github.com/TheCacophonyProject/frame-streamer/throttle"
	"github.com/TheCacophonyProject/frame-streamer/transport"
)

const (
	reconnectInterval = 3 * time.Second
	loopDelay         = 5 * time.Millisecond
	outsideWindowWait = time.Second
	watchdogInterval  = 5 * time.Second
	inboxSize         = 16
)

type fatalErr struct {
	reason string
	cause  error
}

func (e *fatalErr) Error() string {
	if e.cause == nil {
		return e.reason
	}
	return fmt.Sprintf("%s: %v", e.reason, e.cause)
}

func (e *fatalErr) Unwrap() error {
	return e.cause
}

type streamer struct {
	conf   *Config
	clock  ratelimit.Clock
	waiter *scheduler.Waiter
	link   *link
	inbox  chan []byte
	window *window.Window
	log    *loglimiter.LogLimiter

	source    *camera.DirSource
	guard     *guard.Guard
	pacer     *pacing.Controller
	engine    *delivery.Engine
	reporter  *control.Reporter
	processor *control.Processor

	lastWatchdog time.Time

	mu    sync.Mutex
	stats statsSnapshot
}

// statsSnapshot is what the dbus service reports. It is copied out of the
// streaming loop after every frame.
type statsSnapshot struct {
	Sent        uint64  `json:"sent"`
	Dropped     uint64  `json:"dropped"`
	Failed      uint64  `json:"failed"`
	SuccessRate float64 `json:"successRate"`
	AvgMs       int64   `json:"avgMs"`
	FPS         float64 `json:"fps"`
	Mode        string  `json:"mode"`
	Resolution  string  `json:"resolution"`
	Health      string  `json:"health"`
	Connected   bool    `json:"connected"`
}

func newStreamer(conf *Config) (*streamer, error) {
	s := &streamer{
		conf:  conf,
		clock: scheduler.RealClock{},
		link:  new(link),
		inbox: make(chan []byte, inboxSize),
		log:   loglimiter.New(time.Minute),
	}
	s.waiter = scheduler.NewWaiter(s.pump)

	w, err := streamWindow(conf)
	if err != nil {
		return nil, err
	}
	s.window = w

	camConf := camera.DefaultConfig()
	camConf.Dir = conf.FrameDir
	camConf.PowerPin = conf.PowerPin
	source, err := camera.Open(camConf, s.waiter)
	if err != nil {
		return nil, err
	}
	s.source = source

	s.guard = guard.New(source, s.waiter, guard.DefaultConfig())
	s.guard.SetListener(resetEvents{})

	s.pacer = pacing.New(pacing.Config{Rate: conf.FPS, Enabled: true})

	s.engine = delivery.New(s.link, s.guard, s.waiter, s.clock)
	mode, err := delivery.ParseMode(conf.Mode)
	if err != nil {
		return nil, err
	}
	s.engine.SetMode(mode)
	if conf.HighQuality {
		s.engine.SetHighQualityGate(throttle.NewGate(throttle.DefaultThrottlerConfig(), newThrottleEvents()))
	}

	s.reporter = control.NewReporter(s.link, s.guard, s.pacer, s.engine, s.clock, conf.HealthInterval)
	s.processor = control.NewProcessor(s.link, s.guard, s.pacer, s.engine, s.reporter)
	return s, nil
}

// pump is run every couple of milliseconds during any wait.
func (s *streamer) pump() {
	s.notifyWatchdog()
	for {
		select {
		case msg := <-s.inbox:
			s.processor.Handle(msg)
		default:
			s.link.pump()
			return
		}
	}
}

func (s *streamer) notifyWatchdog() {
	now := s.clock.Now()
	if now.Sub(s.lastWatchdog) < watchdogInterval {
		return
	}
	daemon.SdNotify(false, "WATCHDOG=1")
	s.lastWatchdog = now
}

// run streams until the context is cancelled or a restart is needed.
// Lost connections are redialled.
func (s *streamer) run(ctx context.Context) error {
	if err := s.applyStartupSettings(); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		client, err := transport.Dial(ctx, s.conf.Server, transport.DefaultConfig())
		if err != nil {
			s.log.Printf("can't connect to collector: %v", err)
		} else {
			log.Printf("connected to %s", s.conf.Server)
			client.SetHandler(s.processor.Handle)
			s.link.set(client)

			err = s.stream(ctx)
			var fatal *fatalErr
			if errors.As(err, &fatal) {
				// Left open so the collector can be told about the restart.
				return err
			}
			s.link.close()
			if err != nil {
				return err
			}
			log.Print("disconnected from collector")
		}

		s.waiter.Wait(reconnectInterval)
		s.processor.Apply()
		if err := s.checkRestart(); err != nil {
			return err
		}
	}
}

func (s *streamer) applyStartupSettings() error {
	if err := s.guard.SetQuality(s.conf.Quality); err != nil {
		log.Printf("failed to set quality: %v", err)
	}
	if err := s.guard.ChangeResolution(s.conf.Resolution); err != nil {
		if errors.Is(err, guard.ErrSensorFatal) {
			return &fatalErr{reason: "sensor failed at startup", cause: err}
		}
		log.Printf("using %s: %v", s.guard.Resolution(), err)
	}
	return nil
}

func (s *streamer) stream(ctx context.Context) error {
	if err := s.reporter.Register(); err != nil {
		log.Printf("failed to register with collector: %v", err)
	}

	tick := s.engine.Tick
	if s.conf.HighQuality {
		tick = s.engine.TickHighQuality
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.pump()
		if !s.link.IsConnected() {
			return nil
		}

		s.processor.Apply()
		if err := s.checkRestart(); err != nil {
			return err
		}
		if err := s.reporter.Periodic(); err != nil {
			s.log.Printf("failed to send health: %v", err)
		}

		if !s.window.Active() {
			s.log.Print("outside streaming window")
			s.waiter.Wait(outsideWindowWait)
			continue
		}

		now := s.clock.Now()
		if s.pacer.ShouldProceed(now) {
			if err := tick(ctx); err != nil {
				return &fatalErr{reason: "sensor failure", cause: err}
			}
			s.pacer.OnProceeded(now)
			s.updateSnapshot()
		}
		s.waiter.Wait(loopDelay)
	}
}

func (s *streamer) checkRestart() error {
	if reason, ok := s.processor.RestartRequested(); ok {
		return &fatalErr{reason: reason}
	}
	if state, _ := s.guard.Health(); state == guard.Fatal {
		return &fatalErr{reason: "sensor failure", cause: guard.ErrSensorFatal}
	}
	return nil
}

func (s *streamer) updateSnapshot() {
	stats := s.engine.Stats()
	state, _ := s.guard.Health()
	snap := statsSnapshot{
		Sent:        stats.Sent,
		Dropped:     stats.Dropped,
		Failed:      stats.Failed,
		SuccessRate: stats.SuccessRate,
		AvgMs:       stats.AverageTransfer.Milliseconds(),
		FPS:         s.pacer.AchievedRate(),
		Mode:        s.engine.Mode().String(),
		Resolution:  s.guard.Resolution().String(),
		Health:      state.String(),
		Connected:   s.link.IsConnected(),
	}
	s.mu.Lock()
	s.stats = snap
	s.mu.Unlock()
}

func (s *streamer) snapshot() statsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
