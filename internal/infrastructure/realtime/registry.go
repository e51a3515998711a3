package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"pulsechat/internal/infrastructure/metrics"
)

// Conn is the transport seen by the registry.
type Conn interface {
	ID() string
	Send(payload []byte) error
	IsOpen() bool
}

type closer interface {
	Close(code int, reason string)
}

// Registry maps each participant to at most one live connection.
// A second Bind for the same participant replaces the first; the replaced
// socket is only forgotten here, closing it is the transport's job.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]Conn   // participantID -> connection
	owners   map[string]string // connectionID -> participantID
	live     map[string]Conn   // connectionID -> tracked connection, bound or not
	closed   bool
	handlers sync.WaitGroup

	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewRegistry constructs an empty Registry. m may be nil.
func NewRegistry(log *zap.Logger, m *metrics.Metrics) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		bindings: make(map[string]Conn),
		owners:   make(map[string]string),
		live:     make(map[string]Conn),
		log:      log.Named("registry"),
		metrics:  m,
	}
}

// Bind makes conn the participant's current connection and returns the one it replaced, if any.
func (r *Registry) Bind(participantID string, conn Conn) (previous Conn) {
	r.mu.Lock()
	if prev, ok := r.bindings[participantID]; ok && prev.ID() != conn.ID() {
		previous = prev
		delete(r.owners, prev.ID())
	}
	// A connection re-authenticating as someone else releases its old identity.
	if owner, ok := r.owners[conn.ID()]; ok && owner != participantID {
		delete(r.bindings, owner)
	}
	r.bindings[participantID] = conn
	r.owners[conn.ID()] = participantID
	n := len(r.bindings)
	r.mu.Unlock()

	r.metrics.SetConnections(n)
	if previous != nil {
		r.log.Info("binding_replaced",
			zap.String("participant_id", participantID),
			zap.String("previous_connection_id", previous.ID()),
			zap.String("connection_id", conn.ID()))
	}
	return previous
}

// Unbind removes conn if it is still the connection on file for its participant.
// It reports the participant it was bound to; ok is false for stale or unknown connections.
func (r *Registry) Unbind(conn Conn) (participantID string, ok bool) {
	r.mu.Lock()
	participantID, ok = r.owners[conn.ID()]
	if ok {
		delete(r.owners, conn.ID())
		if current, bound := r.bindings[participantID]; bound && current.ID() == conn.ID() {
			delete(r.bindings, participantID)
		}
	}
	n := len(r.bindings)
	r.mu.Unlock()

	if ok {
		r.metrics.SetConnections(n)
	}
	return participantID, ok
}

// Lookup returns the participant's current connection.
func (r *Registry) Lookup(participantID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.bindings[participantID]
	return c, ok
}

// Owner returns the participant conn is bound to.
func (r *Registry) Owner(conn Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pid, ok := r.owners[conn.ID()]
	return pid, ok
}

// Count returns the number of bound participants.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}

// Send delivers payload to the participant's open connection.
// It reports false when there is nothing to deliver to or the write was refused.
func (r *Registry) Send(participantID string, payload []byte) bool {
	conn, ok := r.Lookup(participantID)
	if !ok || !conn.IsOpen() {
		return false
	}
	if err := conn.Send(payload); err != nil {
		r.log.Warn("send_failed",
			zap.String("participant_id", participantID),
			zap.String("connection_id", conn.ID()),
			zap.Error(err))
		return false
	}
	return true
}

// Track records a live socket whose handler is running. The handler must
// call release when it has finished all work for conn. ok is false once the
// registry is closed; the caller should then drop the socket.
func (r *Registry) Track(conn Conn) (release func(), ok bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return func() {}, false
	}
	r.live[conn.ID()] = conn
	r.handlers.Add(1)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.live, conn.ID())
			r.mu.Unlock()
			r.handlers.Done()
		})
	}, true
}

// Close forgets every binding and closes every bound or tracked connection
// that supports it. Later Track calls are refused.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	seen := make(map[string]struct{}, len(r.live))
	conns := make([]Conn, 0, len(r.bindings)+len(r.live))
	for _, c := range r.bindings {
		seen[c.ID()] = struct{}{}
		conns = append(conns, c)
	}
	for id, c := range r.live {
		if _, dup := seen[id]; !dup {
			conns = append(conns, c)
		}
	}
	r.bindings = make(map[string]Conn)
	r.owners = make(map[string]string)
	r.mu.Unlock()

	r.metrics.SetConnections(0)
	for _, c := range conns {
		if cl, ok := c.(closer); ok {
			cl.Close(1001, "server shutdown")
		}
	}
}

// Wait blocks until every tracked handler has released or ctx is done.
// Call it after Close.
func (r *Registry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
