// Package fanout pushes frames to every live participant of a conversation.
package fanout

import (
	"context"

	"go.uber.org/zap"

	"pulsechat/internal/infrastructure/metrics"
	chat "pulsechat/internal/pkg/chat/application/domain"
	"pulsechat/internal/pkg/chat/protocol"
)

// Sender addresses one participant's live connection. realtime.Registry implements it.
type Sender interface {
	Send(participantID string, payload []byte) bool
}

// Roster resolves the participants of a conversation.
type Roster interface {
	Participants(ctx context.Context, conversationID string) ([]string, error)
}

// Fanout delivers frames on a fire-and-forget basis: offline participants are
// skipped and nothing is queued for them.
type Fanout struct {
	sender  Sender
	roster  Roster
	metrics *metrics.Metrics
	log     *zap.Logger
}

func New(sender Sender, roster Roster, m *metrics.Metrics, log *zap.Logger) *Fanout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fanout{sender: sender, roster: roster, metrics: m, log: log.Named("fanout")}
}

// Participants returns every participant of the conversation.
func (f *Fanout) Participants(ctx context.Context, conversationID string) ([]string, error) {
	return f.roster.Participants(ctx, conversationID)
}

// Recipients returns the participants of the conversation other than excludeID.
func (f *Fanout) Recipients(ctx context.Context, conversationID, excludeID string) ([]string, error) {
	ids, err := f.roster.Participants(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != excludeID {
			out = append(out, id)
		}
	}
	return out, nil
}

// DeliverFrame encodes fr once and sends it to each recipient with a live
// connection. It returns the number of successful sends.
func (f *Fanout) DeliverFrame(recipients []string, fr protocol.Frame) int {
	if len(recipients) == 0 {
		return 0
	}
	payload, err := protocol.Encode(fr)
	if err != nil {
		f.log.Error("fanout_encode_failed", zap.String("frame_type", string(fr.Type())), zap.Error(err))
		return 0
	}
	delivered := 0
	for _, id := range recipients {
		if f.sender.Send(id, payload) {
			delivered++
		}
	}
	f.metrics.Delivered(string(fr.Type()), delivered)
	return delivered
}

// Broadcast sends fr to every participant of the conversation except excludeID.
func (f *Fanout) Broadcast(ctx context.Context, conversationID, excludeID string, fr protocol.Frame) (int, error) {
	recipients, err := f.Recipients(ctx, conversationID, excludeID)
	if err != nil {
		return 0, err
	}
	return f.DeliverFrame(recipients, fr), nil
}

// NotifyNewMessage pushes a new_message frame to every participant except the sender.
// Failures are logged; the message is already durable.
func (f *Fanout) NotifyNewMessage(ctx context.Context, msg chat.Message) int {
	n, err := f.Broadcast(ctx, msg.ConversationID, msg.SenderID, protocol.NewMessage{Message: protocol.ToPayload(msg)})
	if err != nil {
		f.log.Warn("fanout_resolve_failed",
			zap.String("conversation_id", msg.ConversationID),
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return 0
	}
	f.log.Debug("fanout_new_message",
		zap.String("conversation_id", msg.ConversationID),
		zap.String("message_id", msg.ID),
		zap.Int("delivered", n))
	return n
}
