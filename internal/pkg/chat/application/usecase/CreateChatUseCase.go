package usecase

import (
	"context"
	"fmt"
	"time"

	chat "pulsechat/internal/pkg/chat/application/domain"
	repository "pulsechat/internal/pkg/chat/persistence/repository/port"
)

// CreateChatInput names the participants of the conversation to open.
type CreateChatInput struct {
	ParticipantIDs []string
}

// CreateChatUseCase opens the conversation between a set of participants.
// The id is derived from the participants, so opening the same chat twice
// returns the existing conversation. Participants without a row get one so
// they show up in chat lists and can be added as contacts.
type CreateChatUseCase struct {
	Repo repository.ChatRepository
	now  func() time.Time
}

func NewCreateChatUseCase(repo repository.ChatRepository) *CreateChatUseCase {
	return &CreateChatUseCase{Repo: repo, now: time.Now}
}

func (uc *CreateChatUseCase) Execute(ctx context.Context, in CreateChatInput) (*chat.Conversation, error) {
	conv, err := chat.NewConversation(in.ParticipantIDs, uc.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	for _, id := range conv.Participants {
		p := chat.Participant{ID: id, DisplayName: id, LastSeen: conv.CreatedAt}
		if err := uc.Repo.EnsureParticipant(ctx, p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}

	created, err := uc.Repo.CreateConversation(ctx, *conv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return &created, nil
}
