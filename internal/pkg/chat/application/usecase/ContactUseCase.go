package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	chat "pulsechat/internal/pkg/chat/application/domain"
	repository "pulsechat/internal/pkg/chat/persistence/repository/port"
)

// ContactView is a contact entry with the contact's current profile.
// User is nil when the participant row has since gone away.
type ContactView struct {
	Contact chat.Contact
	User    *chat.Participant
}

// ContactRepository is what the contact use cases read and write.
type ContactRepository interface {
	repository.UserStore
	repository.ContactStore
}

// ListContactsUseCase lists a participant's address book, oldest entry first.
type ListContactsUseCase struct {
	Repo ContactRepository
}

func NewListContactsUseCase(repo ContactRepository) *ListContactsUseCase {
	return &ListContactsUseCase{Repo: repo}
}

func (uc *ListContactsUseCase) Execute(ctx context.Context, ownerID string) ([]ContactView, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	contacts, err := uc.Repo.ListContacts(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	out := make([]ContactView, 0, len(contacts))
	for _, c := range contacts {
		view := ContactView{Contact: c}
		p, err := uc.Repo.GetParticipant(ctx, c.ContactID)
		switch {
		case err == nil:
			view.User = &p
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		out = append(out, view)
	}
	return out, nil
}

// AddContactInput names the owner, the participant to add and an optional label.
type AddContactInput struct {
	OwnerID     string
	ContactID   string
	ContactName string
}

// AddContactUseCase adds an existing participant to an address book. The
// label defaults to the contact's display name.
type AddContactUseCase struct {
	Repo ContactRepository
	now  func() time.Time
}

func NewAddContactUseCase(repo ContactRepository) *AddContactUseCase {
	return &AddContactUseCase{Repo: repo, now: time.Now}
}

func (uc *AddContactUseCase) Execute(ctx context.Context, in AddContactInput) (*ContactView, error) {
	c, err := chat.NewContact(in.OwnerID, in.ContactID, in.ContactName, uc.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	user, err := uc.Repo.GetParticipant(ctx, c.ContactID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, c.ContactID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if c.ContactName == "" {
		c.ContactName = user.DisplayName
	}

	err = uc.Repo.AddContact(ctx, *c)
	if errors.Is(err, repository.ErrConflict) {
		return nil, fmt.Errorf("%w: contact already added", ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return &ContactView{Contact: *c, User: &user}, nil
}
