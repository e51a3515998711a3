package adapter

import (
	"context"
	"time"

	"pulsechat/internal/infrastructure/mirror/port"
	chat "pulsechat/internal/pkg/chat/application/domain"
)

// NoopMirror is used when no REDIS_URL is configured.
type NoopMirror struct{}

var _ port.Mirror = NoopMirror{}

func (NoopMirror) Publish(context.Context, chat.Message) error { return nil }

func (NoopMirror) Remove(context.Context, string, string) error { return nil }

func (NoopMirror) DeleteConversationSubtree(context.Context, string) error { return nil }

func (NoopMirror) SetPresence(context.Context, string, bool, time.Time) error { return nil }

func (NoopMirror) SetTyping(context.Context, string, string, bool, time.Duration) error {
	return nil
}

func (NoopMirror) Close() error { return nil }
