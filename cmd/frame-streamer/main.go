// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"
	"periph.io/x/periph/host"
)

var version = "<not set>"

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"path to configuration file"`
	Quick      bool   `arg:"-q,--quick" help:"don't cycle camera power on startup"`
	Timestamps bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/frame-streamer.yaml"
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()
	if !args.Timestamps {
		log.SetFlags(0) // Removes default timestamp flag
	}

	log.Printf("version: %s", version)
	conf, err := ParseConfigFile(args.ConfigFile)
	if err != nil {
		return err
	}
	logConfig(conf)

	log.Print("host initialisation")
	if _, err := host.Init(); err != nil {
		return err
	}

	s, err := newStreamer(conf)
	if err != nil {
		return err
	}

	if !args.Quick {
		if err := s.source.CyclePower(); err != nil {
			return err
		}
	}

	log.Print("starting dbus service")
	if err := startService(s.inbox, s.snapshot); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	daemon.SdNotify(false, "READY=1")

	err = s.run(ctx)
	var fatal *fatalErr
	if errors.As(err, &fatal) {
		return s.escalate(fatal)
	}
	if errors.Is(err, context.Canceled) {
		log.Print("stopping")
		return nil
	}
	return err
}

func logConfig(conf *Config) {
	log.Printf("server: %s", conf.Server)
	log.Printf("frame dir: %s", conf.FrameDir)
	log.Printf("power pin: %s", conf.PowerPin)
	log.Printf("fps: %d, mode: %s, resolution: %d, quality: %d", conf.FPS, conf.Mode, conf.Resolution, conf.Quality)
	if conf.DeviceWindows {
		log.Printf("window: from %s", conf.DeviceConfig)
	} else if conf.WindowStart != "" {
		log.Printf("window: %s to %s", conf.WindowStart, conf.WindowEnd)
	}
	if conf.HighQuality {
		log.Print("high quality still mode")
	}
}
