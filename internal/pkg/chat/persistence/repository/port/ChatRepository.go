package repository

import (
	"context"
	"errors"
	"time"

	chat "pulsechat/internal/pkg/chat/application/domain"
)

var (
	// ErrNotFound is returned by every store when the addressed row does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict is returned when an insert hits an existing row.
	ErrConflict = errors.New("repository: already exists")
)

// UserStore persists participants and their presence.
type UserStore interface {
	GetParticipant(ctx context.Context, id string) (chat.Participant, error)
	// SetOnlineStatus records presence, creating the participant row if it does not exist yet.
	SetOnlineStatus(ctx context.Context, id string, online bool, at time.Time) error
	// EnsureParticipant inserts p unless a row with its id exists; existing rows are left untouched.
	EnsureParticipant(ctx context.Context, p chat.Participant) error
	// SetVisibility updates the directory flag and returns the updated row, or ErrNotFound.
	SetVisibility(ctx context.Context, id string, public bool) (chat.Participant, error)
	// ListPublicParticipants returns every public participant ordered by display name, then id.
	ListPublicParticipants(ctx context.Context) ([]chat.Participant, error)
}

// ContactStore persists per-participant address books.
type ContactStore interface {
	// ListContacts returns the contacts of ownerID, oldest first.
	ListContacts(ctx context.Context, ownerID string) ([]chat.Contact, error)
	// AddContact returns ErrConflict when ownerID already lists the contact.
	AddContact(ctx context.Context, c chat.Contact) error
}

// ConversationStore persists conversations and their activity watermark.
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (chat.Conversation, error)
	// CreateConversation is idempotent: an existing conversation with the same id is returned unchanged.
	CreateConversation(ctx context.Context, c chat.Conversation) (chat.Conversation, error)
	TouchActivity(ctx context.Context, id string, at time.Time) error
	ListInactiveSince(ctx context.Context, threshold time.Time) ([]string, error)
	ListForParticipant(ctx context.Context, participantID string) ([]chat.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

// MessageStore persists messages.
type MessageStore interface {
	// ListMessages returns messages of a conversation oldest first.
	ListMessages(ctx context.Context, conversationID string, limit int, offset int) ([]chat.Message, error)
	GetMessage(ctx context.Context, id string) (chat.Message, error)
	// LastMessage returns the newest message of a conversation or ErrNotFound.
	LastMessage(ctx context.Context, conversationID string) (chat.Message, error)
	CreateMessage(ctx context.Context, m chat.Message) (chat.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	// ListOlderThan returns up to limit messages created before threshold,
	// oldest first. A limit of zero or less means no limit.
	ListOlderThan(ctx context.Context, threshold time.Time, limit int) ([]chat.Message, error)
	// DeleteMany removes the given ids and reports how many rows actually existed.
	DeleteMany(ctx context.Context, ids []string) (int, error)
}

// ChatRepository is the full persistence surface; every adapter implements it.
type ChatRepository interface {
	UserStore
	ContactStore
	ConversationStore
	MessageStore
	Close() error
}
