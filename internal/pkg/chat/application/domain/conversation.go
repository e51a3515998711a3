package chat

import (
	"sort"
	"strings"
	"time"
)

// ConversationIDSeparator joins the sorted participant ids of a conversation.
const ConversationIDSeparator = "_"

// Conversation represents a thread between two or more participants.
// Its ID is always the sorted join of Participants, so lookups do not depend
// on which side opened the chat.
type Conversation struct {
	ID           string    `db:"id"`
	Participants []string  `db:"participants"`
	LastActivity time.Time `db:"last_activity"`
	CreatedAt    time.Time `db:"created_at"`
}

// NormalizeParticipants trims, de-duplicates and sorts participant ids.
func NormalizeParticipants(participantIDs []string) []string {
	seen := make(map[string]struct{}, len(participantIDs))
	out := make([]string, 0, len(participantIDs))
	for _, id := range participantIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ConversationID derives the deterministic conversation id for the given participants.
func ConversationID(participantIDs ...string) (string, error) {
	ids := NormalizeParticipants(participantIDs)
	for _, id := range ids {
		if strings.Contains(id, ConversationIDSeparator) {
			return "", ErrInvalidParticipantID
		}
	}
	if len(ids) < 2 {
		return "", ErrTooFewParticipants
	}
	return strings.Join(ids, ConversationIDSeparator), nil
}

// SplitConversationID recovers the participant ids encoded in a conversation id.
// It returns nil when the id does not name at least two participants or is not
// the form ConversationID would derive for them ("bob_alice", "alice__bob").
func SplitConversationID(conversationID string) []string {
	parts := NormalizeParticipants(strings.Split(conversationID, ConversationIDSeparator))
	if len(parts) < 2 || strings.Join(parts, ConversationIDSeparator) != conversationID {
		return nil
	}
	return parts
}

// NewConversation builds a conversation with a derived id.
func NewConversation(participantIDs []string, now time.Time) (*Conversation, error) {
	id, err := ConversationID(participantIDs...)
	if err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Conversation{
		ID:           id,
		Participants: NormalizeParticipants(participantIDs),
		LastActivity: now,
		CreatedAt:    now,
	}, nil
}

// HasParticipant tells whether participantID is part of this conversation.
func (c Conversation) HasParticipant(participantID string) bool {
	for _, id := range c.Participants {
		if id == participantID {
			return true
		}
	}
	return false
}

// Others returns every participant except participantID.
func (c Conversation) Others(participantID string) []string {
	out := make([]string, 0, len(c.Participants))
	for _, id := range c.Participants {
		if id != participantID {
			out = append(out, id)
		}
	}
	return out
}
