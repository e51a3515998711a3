package usecase

import (
	"context"
	"fmt"

	chat "pulsechat/internal/pkg/chat/application/domain"
	repository "pulsechat/internal/pkg/chat/persistence/repository/port"
)

// DefaultMessagePage is the page size used when no limit is given.
const DefaultMessagePage = 50

// GetMessageInput carries parameters to fetch messages of a conversation
type GetMessageInput struct {
	ConversationID string
	Limit          int
	Offset         int
}

// GetMessageUseCase fetches one page of a conversation's messages, oldest first.
type GetMessageUseCase struct {
	Repo repository.MessageStore
}

func NewGetMessageUseCase(repo repository.MessageStore) *GetMessageUseCase {
	return &GetMessageUseCase{Repo: repo}
}

func (uc *GetMessageUseCase) Execute(ctx context.Context, in GetMessageInput) ([]chat.Message, error) {
	if in.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversationId is required", ErrInvalidInput)
	}
	if in.Limit <= 0 {
		in.Limit = DefaultMessagePage
	}
	if in.Offset < 0 {
		in.Offset = 0
	}
	msgs, err := uc.Repo.ListMessages(ctx, in.ConversationID, in.Limit, in.Offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return msgs, nil
}
