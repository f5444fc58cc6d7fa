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

// Package transport is the persistent websocket connection to the
// collector. Sends happen on the caller's goroutine; inbound text messages
// are queued by a reader goroutine and only handed to the Handler from
// Pump, so command handling always runs on the streaming loop.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrNotConnected = errors.New("not connected")

type Config struct {
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	InboundQueue   int
	MaxMessageSize int64
}

func DefaultConfig() Config {
	return Config{
		PingPeriod:     15 * time.Second,
		PongWait:       45 * time.Second,
		WriteWait:      5 * time.Second,
		InboundQueue:   32,
		MaxMessageSize: 64 * 1024,
	}
}

// Handler receives inbound text messages.
type Handler func(msg []byte)

type Client struct {
	conf    Config
	ws      *websocket.Conn
	inbound chan []byte
	done    chan struct{}

	mu        sync.Mutex
	connected bool
	handler   Handler
	closeOnce sync.Once
}

// Dial connects to url. The returned client is connected until the peer
// goes away, a heartbeat is missed, or Close is called.
func Dial(ctx context.Context, url string, conf Config) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	c := &Client{
		conf:      conf,
		ws:        ws,
		inbound:   make(chan []byte, conf.InboundQueue),
		done:      make(chan struct{}),
		connected: true,
	}
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

func (c *Client) SetHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// finished is closed once the connection has ended.
func (c *Client) finished() <-chan struct{} {
	return c.done
}

func (c *Client) SendBinary(b []byte) error {
	return c.write(websocket.BinaryMessage, b)
}

func (c *Client) SendText(s string) error {
	return c.write(websocket.TextMessage, []byte(s))
}

func (c *Client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.conf.WriteWait))
	if err := c.ws.WriteMessage(messageType, data); err != nil {
		c.lostLocked(err)
		return err
	}
	return nil
}

// Pump hands every queued inbound message to the handler without
// blocking.
func (c *Client) Pump() {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	for {
		select {
		case msg := <-c.inbound:
			if h != nil {
				h(msg)
			}
		default:
			return
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	wasConnected := c.connected
	c.lostLocked(nil)
	c.mu.Unlock()
	if wasConnected {
		deadline := time.Now().Add(c.conf.WriteWait)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
	}
	return c.ws.Close()
}

func (c *Client) lostLocked(err error) {
	if !c.connected {
		return
	}
	c.connected = false
	if err != nil {
		log.Printf("connection lost: %v", err)
	}
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) lost(err error) {
	c.mu.Lock()
	c.lostLocked(err)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	c.ws.SetReadLimit(c.conf.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.conf.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.conf.PongWait))
	})

	for {
		messageType, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.lost(err)
			} else {
				c.lost(nil)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		select {
		case c.inbound <- msg:
		default:
			log.Print("inbound queue full, dropping message")
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.conf.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.conf.WriteWait)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.lost(fmt.Errorf("heartbeat: %w", err))
				return
			}
		}
	}
}
