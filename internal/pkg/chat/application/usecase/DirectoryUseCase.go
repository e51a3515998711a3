package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	chat "pulsechat/internal/pkg/chat/application/domain"
	repository "pulsechat/internal/pkg/chat/persistence/repository/port"
)

// ListPublicUsersUseCase returns the participants who opted into the public directory.
type ListPublicUsersUseCase struct {
	Repo repository.UserStore
}

func NewListPublicUsersUseCase(repo repository.UserStore) *ListPublicUsersUseCase {
	return &ListPublicUsersUseCase{Repo: repo}
}

func (uc *ListPublicUsersUseCase) Execute(ctx context.Context) ([]chat.Participant, error) {
	users, err := uc.Repo.ListPublicParticipants(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return users, nil
}

// SetVisibilityInput toggles whether a participant is listed publicly.
type SetVisibilityInput struct {
	ParticipantID string
	IsPublic      bool
}

type SetVisibilityUseCase struct {
	Repo repository.UserStore
}

func NewSetVisibilityUseCase(repo repository.UserStore) *SetVisibilityUseCase {
	return &SetVisibilityUseCase{Repo: repo}
}

func (uc *SetVisibilityUseCase) Execute(ctx context.Context, in SetVisibilityInput) (*chat.Participant, error) {
	id := strings.TrimSpace(in.ParticipantID)
	if id == "" {
		return nil, fmt.Errorf("%w: participant id is required", ErrInvalidInput)
	}
	p, err := uc.Repo.SetVisibility(ctx, id, in.IsPublic)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return &p, nil
}
