package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	mirror "pulsechat/internal/infrastructure/mirror/port"
	repository "pulsechat/internal/pkg/chat/persistence/repository/port"
)

// DeleteMessageInput addresses one message. ConversationID is optional; when
// empty it is looked up so the mirror can be cleaned too.
type DeleteMessageInput struct {
	MessageID      string
	ConversationID string
}

// DeleteMessageUseCase removes a message from the store and the realtime mirror.
type DeleteMessageUseCase struct {
	Repo   repository.MessageStore
	Mirror mirror.Mirror
	Log    *zap.Logger
}

func NewDeleteMessageUseCase(repo repository.MessageStore, m mirror.Mirror, log *zap.Logger) *DeleteMessageUseCase {
	if log == nil {
		log = zap.NewNop()
	}
	return &DeleteMessageUseCase{Repo: repo, Mirror: m, Log: log.Named("delete_message")}
}

func (uc *DeleteMessageUseCase) Execute(ctx context.Context, in DeleteMessageInput) error {
	if in.MessageID == "" {
		return fmt.Errorf("%w: messageId is required", ErrInvalidInput)
	}
	if in.ConversationID == "" {
		msg, err := uc.Repo.GetMessage(ctx, in.MessageID)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: message %s", ErrNotFound, in.MessageID)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		in.ConversationID = msg.ConversationID
	}

	if err := uc.Repo.DeleteMessage(ctx, in.MessageID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: message %s", ErrNotFound, in.MessageID)
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if uc.Mirror != nil {
		if err := uc.Mirror.Remove(ctx, in.ConversationID, in.MessageID); err != nil {
			uc.Log.Warn("mirror_remove_failed",
				zap.String("conversation_id", in.ConversationID),
				zap.String("message_id", in.MessageID),
				zap.Error(err))
		}
	}
	return nil
}
