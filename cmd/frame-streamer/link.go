// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"github.com/TheCacophonyProject/frame-streamer/transport"
)

// link stands in for whichever collector connection is current so the
// engine and reporter survive reconnects.
type link struct {
	client *transport.Client
}

func (l *link) set(c *transport.Client) {
	l.client = c
}

func (l *link) close() {
	if l.client != nil {
		l.client.Close()
		l.client = nil
	}
}

func (l *link) IsConnected() bool {
	return l.client != nil && l.client.IsConnected()
}

func (l *link) SendBinary(b []byte) error {
	if l.client == nil {
		return transport.ErrNotConnected
	}
	return l.client.SendBinary(b)
}

func (l *link) SendText(s string) error {
	if l.client == nil {
		return transport.ErrNotConnected
	}
	return l.client.SendText(s)
}

func (l *link) pump() {
	if l.client != nil {
		l.client.Pump()
	}
}
