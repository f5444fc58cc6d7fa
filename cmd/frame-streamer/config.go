// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"errors"
	"fmt"
	"io/ioutil"
	"strings"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/window"
	yaml "gopkg.in/yaml.v2"

	"github.com/TheCacophonyProject/frame-streamer/delivery"
	"github.com/TheCacophonyProject/frame-streamer/frame"
	"github.com/TheCacophonyProject/frame-streamer/pacing"
)

type Config struct {
	Server         string        `yaml:"server"`
	FrameDir       string        `yaml:"frame-dir"`
	PowerPin       string        `yaml:"power-pin"`
	FPS            int           `yaml:"fps"`
	Mode           string        `yaml:"mode"`
	Resolution     int           `yaml:"resolution"`
	Quality        int           `yaml:"quality"`
	WindowStart    string        `yaml:"window-start"`
	WindowEnd      string        `yaml:"window-end"`
	DeviceWindows  bool          `yaml:"device-windows"`
	DeviceConfig   string        `yaml:"device-config"`
	HealthInterval time.Duration `yaml:"health-interval"`
	RestartGrace   time.Duration `yaml:"restart-grace"`
	RebootOnFatal  bool          `yaml:"reboot-on-fatal"`
	HighQuality    bool          `yaml:"high-quality"`
}

var defaultConfig = Config{
	Server:         "ws://127.0.0.1:8000/ws",
	FrameDir:       "/var/lib/frame-streamer/frames",
	FPS:            pacing.DefaultRate,
	Mode:           delivery.Stability.String(),
	Resolution:     frame.DefaultResolution,
	Quality:        frame.DefaultQuality,
	DeviceConfig:   goconfig.DefaultConfigDir,
	HealthInterval: 10 * time.Second,
	RestartGrace:   2 * time.Second,
}

func (conf *Config) Validate() error {
	if !strings.HasPrefix(conf.Server, "ws://") && !strings.HasPrefix(conf.Server, "wss://") {
		return fmt.Errorf("server should be a ws:// or wss:// url, got %q", conf.Server)
	}
	if conf.FrameDir == "" {
		return errors.New("frame-dir is required")
	}
	if conf.FPS < pacing.MinRate || conf.FPS > pacing.MaxRate {
		return fmt.Errorf("fps should be in range %d - %d", pacing.MinRate, pacing.MaxRate)
	}
	if _, err := delivery.ParseMode(conf.Mode); err != nil {
		return err
	}
	if _, ok := frame.ProfileByID(conf.Resolution); !ok {
		return fmt.Errorf("resolution should be a profile id 0 - %d", len(frame.Profiles())-1)
	}
	if conf.Quality < frame.MinQuality || conf.Quality > frame.MaxQuality {
		return fmt.Errorf("quality should be in range %d - %d", frame.MinQuality, frame.MaxQuality)
	}
	if conf.WindowStart == "" && conf.WindowEnd != "" {
		return errors.New("window-end is set but window-start isn't")
	}
	if conf.WindowStart != "" && conf.WindowEnd == "" {
		return errors.New("window-start is set but window-end isn't")
	}
	if conf.WindowStart != "" {
		if _, err := window.New(conf.WindowStart, conf.WindowEnd, 0, 0); err != nil {
			return err
		}
	}
	if conf.DeviceWindows && conf.DeviceConfig == "" {
		return errors.New("device-windows needs device-config")
	}
	if conf.HealthInterval <= 0 {
		return errors.New("health-interval should be positive")
	}
	if conf.RestartGrace < 0 {
		return errors.New("restart-grace can't be negative")
	}
	return nil
}

func ParseConfigFile(filename string) (*Config, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseConfig(buf)
}

func ParseConfig(buf []byte) (*Config, error) {
	conf := defaultConfig
	if err := yaml.Unmarshal(buf, &conf); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}
