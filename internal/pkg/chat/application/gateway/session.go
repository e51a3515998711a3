package gateway

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// keyedMutex hands out one mutex per participant id. Entries are dropped
// once nobody holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// presenceWriter tracks the store write in flight for one participant.
type presenceWriter struct {
	dirty bool
}

// syncPresence makes the stored presence of participantID match whether it
// holds a binding right now. Only one write per participant is in flight;
// callers that arrive meanwhile mark it dirty and return, and the active
// writer re-reads the registry before finishing.
func (g *Gateway) syncPresence(ctx context.Context, participantID string) {
	g.presenceMu.Lock()
	w, running := g.presenceWriters[participantID]
	if running {
		w.dirty = true
		g.presenceMu.Unlock()
		return
	}
	w = &presenceWriter{dirty: true}
	g.presenceWriters[participantID] = w

	for w.dirty {
		w.dirty = false
		_, online := g.registry.Lookup(participantID)
		g.presenceMu.Unlock()

		g.writePresence(ctx, participantID, online)

		g.presenceMu.Lock()
	}
	delete(g.presenceWriters, participantID)
	g.presenceMu.Unlock()
}

func (g *Gateway) writePresence(ctx context.Context, participantID string, online bool) {
	var err error
	if online {
		err = g.presence.Online(ctx, participantID)
	} else {
		err = g.presence.Offline(ctx, participantID)
	}
	if err != nil {
		g.log.Warn("presence_update_failed",
			zap.String("participant_id", participantID),
			zap.Bool("online", online),
			zap.Error(err))
	}
}
