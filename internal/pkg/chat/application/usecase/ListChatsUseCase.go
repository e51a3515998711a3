package usecase

import (
	"context"
	"errors"
	"fmt"

	chat "pulsechat/internal/pkg/chat/application/domain"
	repository "pulsechat/internal/pkg/chat/persistence/repository/port"
)

// ChatSummary is one row of a participant's chat list.
type ChatSummary struct {
	Conversation chat.Conversation
	Others       []chat.Participant
	LastMessage  *chat.Message
}

// ListChatsUseCase lists a participant's conversations, most recently active first,
// with the other participants' profiles and the newest message of each.
type ListChatsUseCase struct {
	Repo repository.ChatRepository
}

func NewListChatsUseCase(repo repository.ChatRepository) *ListChatsUseCase {
	return &ListChatsUseCase{Repo: repo}
}

func (uc *ListChatsUseCase) Execute(ctx context.Context, participantID string) ([]ChatSummary, error) {
	if participantID == "" {
		return nil, fmt.Errorf("%w: participantId is required", ErrInvalidInput)
	}
	convs, err := uc.Repo.ListForParticipant(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	out := make([]ChatSummary, 0, len(convs))
	for _, conv := range convs {
		summary := ChatSummary{Conversation: conv, Others: []chat.Participant{}}
		for _, id := range conv.Others(participantID) {
			p, err := uc.Repo.GetParticipant(ctx, id)
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
			}
			summary.Others = append(summary.Others, p)
		}
		last, err := uc.Repo.LastMessage(ctx, conv.ID)
		switch {
		case err == nil:
			summary.LastMessage = &last
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		out = append(out, summary)
	}
	return out, nil
}
