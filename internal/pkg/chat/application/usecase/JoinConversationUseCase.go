package usecase

import (
	"context"
	"fmt"

	chat "pulsechat/internal/pkg/chat/application/domain"
)

// JoinConversationInput validates a request to follow a conversation over the socket.
type JoinConversationInput struct {
	ConversationID string
	ParticipantID  string
}

// JoinConversationUseCase checks that the participant belongs to the conversation.
type JoinConversationUseCase struct {
	Roster *ListParticipantsUseCase
}

func NewJoinConversationUseCase(roster *ListParticipantsUseCase) *JoinConversationUseCase {
	return &JoinConversationUseCase{Roster: roster}
}

func (uc *JoinConversationUseCase) Execute(ctx context.Context, in JoinConversationInput) error {
	if in.ConversationID == "" || in.ParticipantID == "" {
		return fmt.Errorf("%w: conversationId and participantId are required", ErrInvalidInput)
	}

	ids, err := uc.Roster.Participants(ctx, in.ConversationID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == in.ParticipantID {
			return nil
		}
	}
	return chat.ErrNotParticipant
}
