// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"fmt"
	"log"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/window"
)

// Equal absolute start and end times make a window that is always active.
const alwaysActive = "12:00"

// streamWindow builds the window frames are streamed in. Times may be
// absolute ("21:00") or relative to sunset and sunrise ("-30m"), so the
// device location is read from the shared device config.
func streamWindow(conf *Config) (*window.Window, error) {
	start, end := conf.WindowStart, conf.WindowEnd
	if start == "" && !conf.DeviceWindows {
		return window.New(alwaysActive, alwaysActive, 0, 0)
	}

	location := goconfig.DefaultWindowLocation()
	deviceConf, err := goconfig.New(conf.DeviceConfig)
	if err != nil {
		if conf.DeviceWindows {
			return nil, fmt.Errorf("can't read device windows: %v", err)
		}
		log.Printf("can't read device config, using default location: %v", err)
	} else {
		if err := deviceConf.Unmarshal(goconfig.LocationKey, &location); err != nil {
			return nil, err
		}
		if conf.DeviceWindows {
			windows := goconfig.DefaultWindows()
			if err := deviceConf.Unmarshal(goconfig.WindowsKey, &windows); err != nil {
				return nil, err
			}
			start, end = windows.StartRecording, windows.StopRecording
		}
	}

	return window.New(start, end, float64(location.Latitude), float64(location.Longitude))
}
