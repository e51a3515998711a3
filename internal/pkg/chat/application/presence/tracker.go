// Package presence records whether participants hold a live connection.
package presence

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	mirror "pulsechat/internal/infrastructure/mirror/port"
	repository "pulsechat/internal/pkg/chat/persistence/repository/port"
)

// Tracker writes presence to the user store and mirrors it best effort.
type Tracker struct {
	users  repository.UserStore
	mirror mirror.Mirror
	log    *zap.Logger
	now    func() time.Time
}

// New builds a Tracker. m may be nil.
func New(users repository.UserStore, m mirror.Mirror, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{users: users, mirror: m, log: log.Named("presence"), now: time.Now}
}

// Online marks participantID online and stamps its last-seen time.
func (t *Tracker) Online(ctx context.Context, participantID string) error {
	return t.set(ctx, participantID, true)
}

// Offline marks participantID offline and stamps its last-seen time.
func (t *Tracker) Offline(ctx context.Context, participantID string) error {
	return t.set(ctx, participantID, false)
}

func (t *Tracker) set(ctx context.Context, participantID string, online bool) error {
	at := t.now().UTC()
	if err := t.users.SetOnlineStatus(ctx, participantID, online, at); err != nil {
		return fmt.Errorf("presence: set online=%t for %s: %w", online, participantID, err)
	}
	if t.mirror != nil {
		if err := t.mirror.SetPresence(ctx, participantID, online, at); err != nil {
			t.log.Warn("presence_mirror_failed",
				zap.String("participant_id", participantID),
				zap.Bool("online", online),
				zap.Error(err))
		}
	}
	return nil
}
