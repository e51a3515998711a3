package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	mirror "pulsechat/internal/infrastructure/mirror/port"
	chat "pulsechat/internal/pkg/chat/application/domain"
	repository "pulsechat/internal/pkg/chat/persistence/repository/port"
)

// Notifier pushes a stored message to connected participants. fanout.Fanout implements it.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, msg chat.Message) int
}

// SendMessageInput carries the data needed to send a new message
type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Kind           chat.MessageKind
	Content        string
	Media          *chat.MediaAttributes
	IsPrivate      bool
}

// SendMessageUseCase validates and persists a message, bumps the conversation's
// activity, mirrors it and notifies the other participants.
// Only validation and the message insert can fail the call; every later step
// is logged and swallowed because the message is already durable.
type SendMessageUseCase struct {
	Repo     repository.ChatRepository
	Mirror   mirror.Mirror
	Notifier Notifier
	Log      *zap.Logger
	now      func() time.Time
}

func NewSendMessageUseCase(repo repository.ChatRepository, m mirror.Mirror, n Notifier, log *zap.Logger) *SendMessageUseCase {
	if log == nil {
		log = zap.NewNop()
	}
	return &SendMessageUseCase{Repo: repo, Mirror: m, Notifier: n, Log: log.Named("send_message"), now: time.Now}
}

func (uc *SendMessageUseCase) Execute(ctx context.Context, in SendMessageInput) (*chat.Message, error) {
	if in.ConversationID == "" || in.SenderID == "" {
		return nil, fmt.Errorf("%w: conversationId and senderId are required", ErrInvalidInput)
	}

	conv, err := uc.conversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(in.SenderID) {
		return nil, chat.ErrNotParticipant
	}

	msg, err := chat.NewMessage(chat.Message{
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		Kind:           in.Kind,
		Content:        in.Content,
		Media:          in.Media,
		IsPrivate:      in.IsPrivate,
		CreatedAt:      uc.now(),
	})
	if err != nil {
		return nil, err
	}

	stored, err := uc.Repo.CreateMessage(ctx, *msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	fields := []zap.Field{zap.String("conversation_id", stored.ConversationID), zap.String("message_id", stored.ID)}
	if err := uc.Repo.TouchActivity(ctx, stored.ConversationID, stored.CreatedAt); err != nil {
		uc.Log.Warn("touch_activity_failed", append(fields, zap.Error(err))...)
	}
	if uc.Mirror != nil {
		if err := uc.Mirror.Publish(ctx, stored); err != nil {
			uc.Log.Warn("mirror_publish_failed", append(fields, zap.Error(err))...)
		}
	}
	if uc.Notifier != nil {
		uc.Notifier.NotifyNewMessage(ctx, stored)
	}
	return &stored, nil
}

// conversation loads the conversation, creating it from its deterministic id
// when a client sends into a chat that was never opened (or was evicted).
func (uc *SendMessageUseCase) conversation(ctx context.Context, id string) (chat.Conversation, error) {
	conv, err := uc.Repo.GetConversation(ctx, id)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return chat.Conversation{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	ids := chat.SplitConversationID(id)
	if ids == nil {
		return chat.Conversation{}, fmt.Errorf("%w: conversation %s", ErrNotFound, id)
	}
	fresh, err := chat.NewConversation(ids, uc.now())
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if fresh.ID != id {
		return chat.Conversation{}, fmt.Errorf("%w: conversation %s", ErrNotFound, id)
	}
	created, err := uc.Repo.CreateConversation(ctx, *fresh)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return created, nil
}
