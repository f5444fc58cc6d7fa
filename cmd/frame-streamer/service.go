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

package main

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/TheCacophonyProject/frame-streamer/control"
)

const (
	dbusName = "org.cacophony.framestreamer"
	dbusPath = "/org/cacophony/framestreamer"
)

// streamerService lets local tools adjust streaming. Requests are turned
// into collector style commands and handed to the streaming loop, which
// owns the camera.
type streamerService struct {
	inbox    chan<- []byte
	snapshot func() statsSnapshot
}

func startService(inbox chan<- []byte, snapshot func() statsSnapshot) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}
	s := &streamerService{inbox: inbox, snapshot: snapshot}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

func (s streamerService) SetMode(mode string) *dbus.Error {
	return s.queue("SetMode", control.CmdMode, mode)
}

func (s streamerService) SetFPS(fps int32) *dbus.Error {
	return s.queue("SetFPS", control.CmdFPS, strconv.Itoa(int(fps)))
}

func (s streamerService) SetResolution(id int32) *dbus.Error {
	return s.queue("SetResolution", control.CmdResolution, strconv.Itoa(int(id)))
}

func (s streamerService) SetQuality(quality int32) *dbus.Error {
	return s.queue("SetQuality", control.CmdQuality, strconv.Itoa(int(quality)))
}

// Stats returns the delivery statistics as JSON.
func (s streamerService) Stats() (string, *dbus.Error) {
	b, err := json.Marshal(s.snapshot())
	if err != nil {
		return "", makeDbusError("Stats", err)
	}
	return string(b), nil
}

func (s streamerService) queue(method, cmd, val string) *dbus.Error {
	msg, err := commandMessage(cmd, val)
	if err != nil {
		return makeDbusError(method, err)
	}
	select {
	case s.inbox <- msg:
		return nil
	default:
		return makeDbusError(method, errors.New("streamer busy, try again"))
	}
}

func commandMessage(cmd, val string) ([]byte, error) {
	return json.Marshal(map[string]string{
		"type": "command",
		"cmd":  cmd,
		"val":  val,
	})
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + "." + name,
		Body: []interface{}{err.Error()},
	}
}
