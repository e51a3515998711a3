package realtime

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 << 10
	sendBuffer     = 128
)

// Close codes used by the server.
const (
	CloseSessionReplaced = 4001
	CloseBufferExceeded  = websocket.CloseGoingAway
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrBufferExceeded   = errors.New("connection buffer exceeded")
)

// Connection wraps a websocket and serializes outbound writes through a buffered channel.
// It is safe for concurrent use.
type Connection struct {
	id   string
	ws   *websocket.Conn
	log  *zap.Logger
	send chan []byte

	once   sync.Once
	closed atomic.Bool
	done   chan struct{}
}

// NewConnection wraps ws. Call Start to run the write loop and ReadLoop to consume frames.
func NewConnection(ws *websocket.Conn, log *zap.Logger) *Connection {
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	return &Connection{
		id:   id,
		ws:   ws,
		log:  log.With(zap.String("connection_id", id)),
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Connection) ID() string { return c.id }

// IsOpen reports whether the connection still accepts writes.
func (c *Connection) IsOpen() bool { return !c.closed.Load() }

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Start launches the write loop. It must be called exactly once per connection.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send enqueues payload for delivery. A client too slow to drain its buffer is disconnected.
func (c *Connection) Send(payload []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	select {
	case <-c.done:
		return ErrConnectionClosed
	case c.send <- payload:
		return nil
	default:
		c.Close(CloseBufferExceeded, "send buffer full")
		return ErrBufferExceeded
	}
}

// ReadLoop delivers every inbound text frame to handle until the peer goes away
// or the connection is closed. It returns the error that ended the loop.
func (c *Connection) ReadLoop(handle func(data []byte)) error {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}

// Close sends a close frame and tears the socket down. Only the first call has any effect.
// The send channel is never closed so concurrent Send calls cannot panic.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.log.Debug("connection_write_failed", zap.Error(err))
				c.Close(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.log.Debug("connection_ping_failed", zap.Error(err))
				c.Close(websocket.CloseInternalServerErr, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(kind int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(kind, payload)
}
