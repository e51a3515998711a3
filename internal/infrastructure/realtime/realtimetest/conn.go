// Package realtimetest provides an in-memory realtime.Conn for tests.
package realtimetest

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Conn records every payload sent to it.
type Conn struct {
	id string

	mu       sync.Mutex
	open     bool
	sent     [][]byte
	closed   bool
	code     int
	failSend error
}

func NewConn() *Conn {
	return &Conn{id: uuid.NewString(), open: true}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Conn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend != nil {
		return c.failSend
	}
	if !c.open {
		return errors.New("realtimetest: connection closed")
	}
	c.sent = append(c.sent, append([]byte(nil), payload...))
	return nil
}

func (c *Conn) Close(code int, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.closed = true
	c.code = code
}

// SetOpen flips the readiness reported by IsOpen without closing.
func (c *Conn) SetOpen(open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = open
}

// FailSends makes every later Send return err.
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failSend = err
}

// Closed reports whether Close was called and with which code.
func (c *Conn) Closed() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.code
}

// Sent returns a copy of every payload received so far.
func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// Frames decodes every payload as a JSON object.
func (c *Conn) Frames() []map[string]any {
	var out []map[string]any
	for _, raw := range c.Sent() {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// FramesOfType returns the decoded frames whose "type" equals t.
func (c *Conn) FramesOfType(t string) []map[string]any {
	var out []map[string]any
	for _, f := range c.Frames() {
		if f["type"] == t {
			out = append(out, f)
		}
	}
	return out
}

// Reset drops the recorded payloads.
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}
