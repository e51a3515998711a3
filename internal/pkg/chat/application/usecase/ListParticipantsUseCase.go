package usecase

import (
	"context"
	"errors"
	"fmt"

	chat "pulsechat/internal/pkg/chat/application/domain"
	repository "pulsechat/internal/pkg/chat/persistence/repository/port"
)

// ListParticipantsInput wraps the conversation identifier to fetch its participants.
type ListParticipantsInput struct {
	ConversationID string
}

// ListParticipantsUseCase returns the participant ids of a conversation.
// A conversation that has no stored row yet (or was evicted) still has a
// roster: the ids encoded in its deterministic id.
type ListParticipantsUseCase struct {
	Repo repository.ConversationStore
}

func NewListParticipantsUseCase(repo repository.ConversationStore) *ListParticipantsUseCase {
	return &ListParticipantsUseCase{Repo: repo}
}

func (uc *ListParticipantsUseCase) Execute(ctx context.Context, in ListParticipantsInput) ([]string, error) {
	if in.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversationId is required", ErrInvalidInput)
	}
	return uc.Participants(ctx, in.ConversationID)
}

// Participants implements fanout.Roster.
func (uc *ListParticipantsUseCase) Participants(ctx context.Context, conversationID string) ([]string, error) {
	conv, err := uc.Repo.GetConversation(ctx, conversationID)
	switch {
	case err == nil:
		return conv.Participants, nil
	case errors.Is(err, repository.ErrNotFound):
		ids := chat.SplitConversationID(conversationID)
		if ids == nil {
			return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
}
