package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageKind represents the payload kind of a message
type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
	MessageKindVideo MessageKind = "video"
	MessageKindFile  MessageKind = "file"
)

// Valid reports whether k is one of the known kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindImage, MessageKindVideo, MessageKindFile:
		return true
	}
	return false
}

// MediaAttributes references an uploaded object; the bytes live in an external store.
type MediaAttributes struct {
	URL      string `db:"media_url"`
	MimeType string `db:"media_type"`
	FileName string `db:"file_name"`
	FileSize int64  `db:"file_size"`
}

// Message is an immutable log entry in a conversation
type Message struct {
	ID             string           `db:"id"`
	ConversationID string           `db:"conversation_id"`
	SenderID       string           `db:"sender_id"`
	Kind           MessageKind      `db:"kind"`
	Content        string           `db:"content"`
	Media          *MediaAttributes `db:"-"`
	IsPrivate      bool             `db:"is_private"`
	CreatedAt      time.Time        `db:"created_at"`
}

// NewMessage validates m and fills in its id and creation time.
func NewMessage(m Message) (*Message, error) {
	if m.ConversationID == "" || m.SenderID == "" {
		return nil, ErrMissingMessageContext
	}
	if m.Kind == "" {
		m.Kind = MessageKindText
	}
	if !m.Kind.Valid() {
		return nil, ErrUnknownMessageKind
	}

	m.Content = strings.TrimSpace(m.Content)
	if m.Media != nil && strings.TrimSpace(m.Media.URL) == "" {
		m.Media = nil
	}

	switch m.Kind {
	case MessageKindText:
		if m.Content == "" && m.Media == nil {
			return nil, ErrEmptyMessage
		}
	default:
		if m.Media == nil {
			return nil, ErrMissingMedia
		}
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.CreatedAt = m.CreatedAt.UTC()

	return &m, nil
}
