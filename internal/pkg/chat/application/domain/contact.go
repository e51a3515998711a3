package chat

import (
	"strings"
	"time"
)

// Contact is one entry in a participant's address book. It is one-directional:
// OwnerID lists ContactID, not the other way round.
type Contact struct {
	OwnerID     string    `db:"owner_id"`
	ContactID   string    `db:"contact_id"`
	ContactName string    `db:"contact_name"`
	AddedAt     time.Time `db:"added_at"`
}

// NewContact validates and normalizes a contact entry.
func NewContact(ownerID, contactID, name string, now time.Time) (*Contact, error) {
	ownerID = strings.TrimSpace(ownerID)
	contactID = strings.TrimSpace(contactID)
	if ownerID == "" || contactID == "" {
		return nil, ErrContactMissing
	}
	if ownerID == contactID {
		return nil, ErrContactSelf
	}
	if now.IsZero() {
		now = time.Now()
	}
	return &Contact{
		OwnerID:     ownerID,
		ContactID:   contactID,
		ContactName: strings.TrimSpace(name),
		AddedAt:     now.UTC(),
	}, nil
}
