// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/frame-streamer/control"
	"github.com/TheCacophonyProject/frame-streamer/transport"
)

func writeJPEG(t *testing.T, name string, n int) {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(0x10 + i%0x80)
	}
	buf[0], buf[1] = 0xFF, 0xD8
	buf[n-2], buf[n-1] = 0xFF, 0xD9
	require.NoError(t, os.WriteFile(name, buf, 0644))
}

type fakeCollector struct {
	server *httptest.Server

	mu       sync.Mutex
	texts    []map[string]interface{}
	binaries int
}

func newFakeCollector(t *testing.T, commands ...string) *fakeCollector {
	col := &fakeCollector{}
	col.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for _, c := range commands {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(c)); err != nil {
				return
			}
		}
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			col.mu.Lock()
			if mt == websocket.BinaryMessage {
				col.binaries++
			} else {
				v := map[string]interface{}{}
				if json.Unmarshal(data, &v) == nil {
					col.texts = append(col.texts, v)
				}
			}
			col.mu.Unlock()
		}
	}))
	t.Cleanup(col.server.Close)
	return col
}

func (col *fakeCollector) url() string {
	return "ws" + strings.TrimPrefix(col.server.URL, "http")
}

func (col *fakeCollector) types() []string {
	col.mu.Lock()
	defer col.mu.Unlock()
	var out []string
	for _, m := range col.texts {
		out = append(out, m["type"].(string))
	}
	return out
}

func newTestStreamer(t *testing.T, server string) *streamer {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "a.jpg"), 5000)
	writeJPEG(t, filepath.Join(dir, "b.jpg"), 6000)

	conf := defaultConfig
	conf.Server = server
	conf.FrameDir = dir
	conf.RestartGrace = 10 * time.Millisecond
	s, err := newStreamer(&conf)
	require.NoError(t, err)
	return s
}

func TestStreamsFrames(t *testing.T) {
	col := newFakeCollector(t)
	s := newTestStreamer(t, col.url())

	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()
	err := s.run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	types := col.types()
	require.GreaterOrEqual(t, len(types), 3)
	assert.Equal(t, []string{"register", "info", "health"}, types[:3])

	snap := s.snapshot()
	assert.Greater(t, snap.Sent, uint64(2))
	assert.Equal(t, "healthy", snap.Health)
	require.Eventually(t, func() bool {
		col.mu.Lock()
		defer col.mu.Unlock()
		return uint64(col.binaries) == snap.Sent
	}, time.Second, 10*time.Millisecond)
}

func TestRebootCommandStopsStreaming(t *testing.T) {
	col := newFakeCollector(t, `{"type":"command","cmd":"reboot"}`)
	s := newTestStreamer(t, col.url())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.run(ctx)

	var fatal *fatalErr
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, control.RebootReason, fatal.reason)
	assert.True(t, s.link.IsConnected())

	assert.Equal(t, fatal, s.escalate(fatal))
	assert.False(t, s.link.IsConnected())
}

func TestRedialsUnreachableCollector(t *testing.T) {
	col := newFakeCollector(t)
	url := col.url()
	col.server.Close()
	s := newTestStreamer(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := s.run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, s.link.IsConnected())
}

func TestLinkWithoutClient(t *testing.T) {
	l := new(link)
	assert.False(t, l.IsConnected())
	assert.Equal(t, transport.ErrNotConnected, l.SendText("x"))
	assert.Equal(t, transport.ErrNotConnected, l.SendBinary([]byte{1}))
	l.pump()
	l.close()
}

func TestServiceQueuesCommands(t *testing.T) {
	inbox := make(chan []byte, 1)
	s := streamerService{inbox: inbox}

	require.Nil(t, s.SetFPS(12))
	msg := <-inbox
	assert.JSONEq(t, `{"type":"command","cmd":"fps","val":"12"}`, string(msg))

	require.Nil(t, s.SetMode("speed"))
	dbusErr := s.SetResolution(3)
	require.NotNil(t, dbusErr)
	assert.Equal(t, dbusName+".SetResolution", dbusErr.Name)
}

func TestServiceStats(t *testing.T) {
	s := streamerService{snapshot: func() statsSnapshot {
		return statsSnapshot{Sent: 4, Mode: "speed"}
	}}
	out, dbusErr := s.Stats()
	require.Nil(t, dbusErr)
	assert.Contains(t, out, `"sent":4`)
	assert.Contains(t, out, `"mode":"speed"`)
}
