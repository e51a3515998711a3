package chat

import "time"

// Participant is a chat user as seen by the realtime layer.
// Accounts are created elsewhere; presence writes IsOnline and LastSeen and
// the directory endpoints write IsPublic.
type Participant struct {
	ID          string    `db:"id"`
	DisplayName string    `db:"display_name"`
	IsOnline    bool      `db:"is_online"`
	IsPublic    bool      `db:"is_public"`
	LastSeen    time.Time `db:"last_seen"`
}
