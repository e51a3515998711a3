package port

import (
	"context"
	"time"

	chat "pulsechat/internal/pkg/chat/application/domain"
)

// Mirror copies chat state into a shared key-value store so other processes
// can observe it. The relational store stays authoritative; every mirror call
// is best effort and callers only log its errors.
type Mirror interface {
	// Publish stores a message under its conversation and announces it on the
	// conversation's event channel.
	Publish(ctx context.Context, msg chat.Message) error

	// Remove drops one mirrored message and announces the removal.
	Remove(ctx context.Context, conversationID, messageID string) error

	// DeleteConversationSubtree drops every key that belongs to a conversation.
	DeleteConversationSubtree(ctx context.Context, conversationID string) error

	// SetPresence records whether a participant currently holds a live connection.
	SetPresence(ctx context.Context, participantID string, online bool, at time.Time) error

	// SetTyping marks a participant as typing in a conversation for ttl,
	// or clears the mark when typing is false.
	SetTyping(ctx context.Context, conversationID, participantID string, typing bool, ttl time.Duration) error

	Close() error
}
