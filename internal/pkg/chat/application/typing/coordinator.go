// Package typing tracks who is typing in which conversation and broadcasts
// start and stop transitions to the other participants.
package typing

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	mirror "pulsechat/internal/infrastructure/mirror/port"
	chat "pulsechat/internal/pkg/chat/application/domain"
	"pulsechat/internal/pkg/chat/protocol"
)

// DefaultQuietInterval is how long a participant stays "typing" without a refresh.
const DefaultQuietInterval = 3 * time.Second

// Fanout resolves participants and delivers frames. fanout.Fanout implements it.
type Fanout interface {
	Participants(ctx context.Context, conversationID string) ([]string, error)
	DeliverFrame(recipients []string, f protocol.Frame) int
}

type key struct {
	conversationID string
	participantID  string
}

type entry struct {
	timer      *time.Timer
	generation uint64
	recipients []string
}

// Coordinator owns the typing state. At most one entry, and therefore one
// expiry timer, exists per (conversation, participant).
type Coordinator struct {
	mu         sync.Mutex
	entries    map[key]*entry
	generation uint64

	quiet  time.Duration
	fanout Fanout
	mirror mirror.Mirror
	log    *zap.Logger
}

// Options tune a Coordinator. Zero values fall back to defaults.
type Options struct {
	QuietInterval time.Duration
	Mirror        mirror.Mirror
	Logger        *zap.Logger
}

func New(f Fanout, o Options) *Coordinator {
	if o.QuietInterval <= 0 {
		o.QuietInterval = DefaultQuietInterval
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Coordinator{
		entries: make(map[key]*entry),
		quiet:   o.QuietInterval,
		fanout:  f,
		mirror:  o.Mirror,
		log:     o.Logger.Named("typing"),
	}
}

// Update applies a typing signal from participantID.
//
// A true signal starts (or refreshes) the quiet timer; only the first one of a
// burst is broadcast. A false signal, or the timer firing, clears the entry and
// broadcasts false. A false for a participant who is not typing is dropped.
func (c *Coordinator) Update(ctx context.Context, conversationID, participantID string, isTyping bool) error {
	participants, err := c.fanout.Participants(ctx, conversationID)
	if err != nil {
		return err
	}
	recipients, member := others(participants, participantID)
	if !member {
		return chat.ErrNotParticipant
	}

	k := key{conversationID: conversationID, participantID: participantID}

	c.mu.Lock()
	e, active := c.entries[k]
	switch {
	case isTyping && active:
		c.generation++
		e.generation = c.generation
		e.recipients = recipients
		e.timer.Stop()
		e.timer = c.schedule(k, e.generation)
		c.mu.Unlock()
		c.mirrorTyping(ctx, k, true)
		return nil
	case isTyping:
		c.generation++
		e = &entry{generation: c.generation, recipients: recipients}
		e.timer = c.schedule(k, e.generation)
		c.entries[k] = e
	case active:
		e.timer.Stop()
		delete(c.entries, k)
	default:
		c.mu.Unlock()
		return nil
	}
	// Delivery stays under the lock so a start and its stop cannot be reordered.
	// Registry sends only enqueue on the connection buffer.
	c.fanout.DeliverFrame(recipients, protocol.Typing{
		ConversationID: conversationID,
		ParticipantID:  participantID,
		IsTyping:       isTyping,
	})
	c.mu.Unlock()

	c.mirrorTyping(ctx, k, isTyping)
	return nil
}

// CancelParticipant stops every typing entry of participantID and tells the
// other participants it stopped. It returns the conversations that were affected.
func (c *Coordinator) CancelParticipant(ctx context.Context, participantID string) []string {
	var cleared []string

	c.mu.Lock()
	for k, e := range c.entries {
		if k.participantID != participantID {
			continue
		}
		e.timer.Stop()
		delete(c.entries, k)
		cleared = append(cleared, k.conversationID)
		c.fanout.DeliverFrame(e.recipients, protocol.Typing{
			ConversationID: k.conversationID,
			ParticipantID:  participantID,
			IsTyping:       false,
		})
	}
	c.mu.Unlock()

	sort.Strings(cleared)
	for _, conv := range cleared {
		c.mirrorTyping(ctx, key{conversationID: conv, participantID: participantID}, false)
	}
	return cleared
}

// Active returns the participants currently typing in conversationID, sorted.
func (c *Coordinator) Active(conversationID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for k := range c.entries {
		if k.conversationID == conversationID {
			ids = append(ids, k.participantID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Close stops every pending timer without broadcasting.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		e.timer.Stop()
		delete(c.entries, k)
	}
}

// schedule must be called with c.mu held.
func (c *Coordinator) schedule(k key, generation uint64) *time.Timer {
	return time.AfterFunc(c.quiet, func() { c.expire(k, generation) })
}

func (c *Coordinator) expire(k key, generation uint64) {
	c.mu.Lock()
	e, ok := c.entries[k]
	// A refresh or an explicit stop already superseded this timer.
	if !ok || e.generation != generation {
		c.mu.Unlock()
		return
	}
	delete(c.entries, k)
	c.fanout.DeliverFrame(e.recipients, protocol.Typing{
		ConversationID: k.conversationID,
		ParticipantID:  k.participantID,
		IsTyping:       false,
	})
	c.mu.Unlock()

	c.log.Debug("typing_expired",
		zap.String("conversation_id", k.conversationID),
		zap.String("participant_id", k.participantID))
	c.mirrorTyping(context.Background(), k, false)
}

func (c *Coordinator) mirrorTyping(ctx context.Context, k key, typing bool) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.SetTyping(ctx, k.conversationID, k.participantID, typing, c.quiet); err != nil {
		c.log.Warn("typing_mirror_failed",
			zap.String("conversation_id", k.conversationID),
			zap.String("participant_id", k.participantID),
			zap.Error(err))
	}
}

func others(participants []string, participantID string) ([]string, bool) {
	member := false
	out := make([]string, 0, len(participants))
	for _, id := range participants {
		if id == participantID {
			member = true
			continue
		}
		out = append(out, id)
	}
	return out, member
}
