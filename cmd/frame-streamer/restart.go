// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"encoding/json"
	"log"
	"time"

	"github.com/TheCacophonyProject/event-reporter/eventclient"
	"github.com/godbus/dbus"

	"github.com/TheCacophonyProject/frame-streamer/throttle"
)

// escalate handles a condition the streamer can't recover from. The
// collector is told, the transport is serviced for the grace period so the
// message gets out, and an event is queued. Then either the device is
// rebooted or the error is returned so the process exits and systemd
// restarts it.
func (s *streamer) escalate(fatal *fatalErr) error {
	log.Printf("restarting: %v", fatal)

	msg, err := json.Marshal(map[string]string{"type": "status", "msg": "device restarting: " + fatal.reason})
	if err == nil {
		if err := s.link.SendText(string(msg)); err != nil {
			log.Printf("could not notify collector: %v", err)
		}
	}
	s.waiter.Wait(s.conf.RestartGrace)
	s.link.close()

	queueEvent("streamerRestart", map[string]interface{}{
		"reason": fatal.Error(),
		"reboot": s.conf.RebootOnFatal,
	})

	if !s.conf.RebootOnFatal {
		return fatal
	}
	log.Print("rebooting device")
	return rebootDevice()
}

func rebootDevice() error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	obj := conn.Object("org.freedesktop.login1", "/org/freedesktop/login1")
	return obj.Call("org.freedesktop.login1.Manager.Reboot", 0, false).Err
}

var addEvent = eventclient.AddEvent

func queueEvent(eventType string, details map[string]interface{}) {
	err := addEvent(eventclient.Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Details:   details,
	})
	if err != nil {
		log.Printf("could not record %s event: %v", eventType, err)
	}
}

// resetEvents records every sensor reset attempt.
type resetEvents struct{}

func (resetEvents) SensorReset(err error) {
	details := map[string]interface{}{"success": err == nil}
	if err != nil {
		details["error"] = err.Error()
	}
	queueEvent("sensorReset", details)
}

// throttleEvents records when the high quality stream starts dropping
// frames to its rate limit, at most once per throttleEventInterval.
type throttleEvents struct {
	limit *throttle.Gate
}

const throttleEventInterval = time.Hour

func newThrottleEvents() *throttleEvents {
	return &throttleEvents{
		limit: throttle.NewGate(throttle.ThrottlerConfig{Interval: throttleEventInterval, Burst: 1}, nil),
	}
}

func (t *throttleEvents) WhenThrottled() {
	if !t.limit.Allow() {
		return
	}
	queueEvent("throttle", map[string]interface{}{
		"description": map[string]interface{}{
			"type": "throttle",
		},
	})
}
