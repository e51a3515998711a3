// Package gateway interprets client frames for one socket at a time.
// It owns no transport: the websocket controller feeds it raw frames and
// tells it when the socket goes away.
package gateway

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"pulsechat/internal/infrastructure/metrics"
	"pulsechat/internal/infrastructure/realtime"
	chat "pulsechat/internal/pkg/chat/application/domain"
	"pulsechat/internal/pkg/chat/application/presence"
	"pulsechat/internal/pkg/chat/application/typing"
	"pulsechat/internal/pkg/chat/application/usecase"
	"pulsechat/internal/pkg/chat/protocol"
)

// Error frame codes.
const (
	CodeBadRequest      = "bad_request"
	CodeUnauthenticated = "unauthenticated"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeInternal        = "internal"
)

type closer interface {
	Close(code int, reason string)
}

// Gateway is shared by every socket; per-socket identity lives in the registry.
type Gateway struct {
	registry *realtime.Registry
	presence *presence.Tracker
	typing   *typing.Coordinator
	join     *usecase.JoinConversationUseCase
	metrics  *metrics.Metrics
	log      *zap.Logger

	// lifecycle serializes bind and unbind of one participant with the
	// typing cleanup that goes with them.
	lifecycle       keyedMutex
	presenceMu      sync.Mutex
	presenceWriters map[string]*presenceWriter
}

func New(
	registry *realtime.Registry,
	tracker *presence.Tracker,
	coordinator *typing.Coordinator,
	join *usecase.JoinConversationUseCase,
	m *metrics.Metrics,
	log *zap.Logger,
) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		registry: registry,
		presence: tracker,
		typing:   coordinator,
		join:     join,
		metrics:  m,
		log:      log.Named("gateway"),

		presenceWriters: make(map[string]*presenceWriter),
	}
}

// Handle processes one inbound frame from conn. It never returns an error:
// problems are reported to the sender as error frames and logged.
func (g *Gateway) Handle(ctx context.Context, conn realtime.Conn, data []byte) {
	frame, err := protocol.Decode(data)
	if err != nil {
		g.metrics.FrameReceived("invalid")
		g.reply(conn, protocol.Error{Code: CodeBadRequest, Message: err.Error()})
		return
	}
	g.metrics.FrameReceived(string(frame.Type()))

	if auth, ok := frame.(protocol.Authenticate); ok {
		g.authenticate(ctx, conn, auth)
		return
	}

	// A replaced connection is no longer on file and cannot act for anyone.
	participantID, ok := g.registry.Owner(conn)
	if !ok {
		g.reply(conn, protocol.Error{Code: CodeUnauthenticated, Message: "authenticate first"})
		return
	}

	switch f := frame.(type) {
	case protocol.Typing:
		g.handleTyping(ctx, conn, participantID, f)
	case protocol.JoinChat:
		g.handleJoin(ctx, conn, participantID, f)
	}
}

// Track registers a socket whose handler is running so shutdown can close it
// and wait for the handler. See realtime.Registry.Track.
func (g *Gateway) Track(conn realtime.Conn) (release func(), ok bool) {
	return g.registry.Track(conn)
}

// Disconnect releases conn. Stale connections that were already replaced are ignored.
func (g *Gateway) Disconnect(ctx context.Context, conn realtime.Conn) {
	participantID, ok := g.registry.Owner(conn)
	if !ok || !g.unbind(ctx, participantID, conn) {
		return
	}
	g.syncPresence(ctx, participantID)
	g.log.Info("participant_disconnected",
		zap.String("participant_id", participantID),
		zap.String("connection_id", conn.ID()))
}

func (g *Gateway) authenticate(ctx context.Context, conn realtime.Conn, f protocol.Authenticate) {
	if previousID, ok := g.registry.Owner(conn); ok && previousID != f.ParticipantID {
		if g.unbind(ctx, previousID, conn) {
			g.syncPresence(ctx, previousID)
		}
	}

	unlock := g.lifecycle.lock(f.ParticipantID)
	previous := g.registry.Bind(f.ParticipantID, conn)
	unlock()
	if c, ok := previous.(closer); ok {
		c.Close(realtime.CloseSessionReplaced, "session replaced")
	}

	g.syncPresence(ctx, f.ParticipantID)
	g.reply(conn, protocol.Authenticated{ParticipantID: f.ParticipantID})
	g.log.Info("participant_authenticated",
		zap.String("participant_id", f.ParticipantID),
		zap.String("connection_id", conn.ID()))
}

func (g *Gateway) handleTyping(ctx context.Context, conn realtime.Conn, participantID string, f protocol.Typing) {
	if f.ParticipantID != "" && f.ParticipantID != participantID {
		g.reply(conn, protocol.Error{Code: CodeForbidden, Message: "participantId does not match the authenticated participant"})
		return
	}
	err := g.typing.Update(ctx, f.ConversationID, participantID, f.IsTyping)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrNotParticipant):
		g.reply(conn, protocol.Error{Code: CodeForbidden, Message: err.Error()})
	case errors.Is(err, usecase.ErrNotFound):
		g.reply(conn, protocol.Error{Code: CodeNotFound, Message: "unknown conversation"})
	default:
		g.log.Warn("typing_update_failed",
			zap.String("conversation_id", f.ConversationID),
			zap.String("participant_id", participantID),
			zap.Error(err))
	}
}

func (g *Gateway) handleJoin(ctx context.Context, conn realtime.Conn, participantID string, f protocol.JoinChat) {
	if f.ParticipantID != "" && f.ParticipantID != participantID {
		g.reply(conn, protocol.Error{Code: CodeForbidden, Message: "participantId does not match the authenticated participant"})
		return
	}
	err := g.join.Execute(ctx, usecase.JoinConversationInput{ConversationID: f.ConversationID, ParticipantID: participantID})
	switch {
	case err == nil:
		g.reply(conn, protocol.JoinedChat{ConversationID: f.ConversationID})
		// Catch the joiner up on who is already typing.
		for _, typer := range g.typing.Active(f.ConversationID) {
			if typer != participantID {
				g.reply(conn, protocol.Typing{ConversationID: f.ConversationID, ParticipantID: typer, IsTyping: true})
			}
		}
	case errors.Is(err, chat.ErrNotParticipant):
		g.reply(conn, protocol.Error{Code: CodeForbidden, Message: err.Error()})
	case errors.Is(err, usecase.ErrNotFound):
		g.reply(conn, protocol.Error{Code: CodeNotFound, Message: "unknown conversation"})
	default:
		g.log.Warn("join_failed",
			zap.String("conversation_id", f.ConversationID),
			zap.String("participant_id", participantID),
			zap.Error(err))
		g.reply(conn, protocol.Error{Code: CodeInternal, Message: "join failed"})
	}
}

// unbind drops conn's binding for participantID together with that session's
// typing state. It reports false when conn no longer holds the binding, in
// which case a newer session owns participantID and nothing is touched.
func (g *Gateway) unbind(ctx context.Context, participantID string, conn realtime.Conn) bool {
	unlock := g.lifecycle.lock(participantID)
	defer unlock()
	owner, ok := g.registry.Unbind(conn)
	if !ok {
		return false
	}
	g.typing.CancelParticipant(ctx, owner)
	return true
}

func (g *Gateway) reply(conn realtime.Conn, f protocol.Frame) {
	payload, err := protocol.Encode(f)
	if err != nil {
		g.log.Error("encode_failed", zap.String("frame_type", string(f.Type())), zap.Error(err))
		return
	}
	if err := conn.Send(payload); err != nil {
		g.log.Debug("reply_failed", zap.String("connection_id", conn.ID()), zap.Error(err))
	}
}
