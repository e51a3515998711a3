package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	chat "pulsechat/internal/pkg/chat/application/domain"
	repository "pulsechat/internal/pkg/chat/persistence/repository/port"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE SCHEMA IF NOT EXISTS chat;

CREATE TABLE IF NOT EXISTS chat.participant (
	id           text PRIMARY KEY,
	display_name text NOT NULL DEFAULT '',
	is_online    boolean NOT NULL DEFAULT false,
	last_seen    timestamptz NOT NULL DEFAULT now()
);
ALTER TABLE chat.participant ADD COLUMN IF NOT EXISTS is_public boolean NOT NULL DEFAULT false;
CREATE INDEX IF NOT EXISTS participant_public_idx ON chat.participant (display_name, id) WHERE is_public;

CREATE TABLE IF NOT EXISTS chat.contact (
	owner_id     text NOT NULL,
	contact_id   text NOT NULL,
	contact_name text NOT NULL DEFAULT '',
	added_at     timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (owner_id, contact_id)
);

CREATE TABLE IF NOT EXISTS chat.conversation (
	id            text PRIMARY KEY,
	participants  text[] NOT NULL,
	last_activity timestamptz NOT NULL,
	created_at    timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS conversation_last_activity_idx ON chat.conversation (last_activity);
CREATE INDEX IF NOT EXISTS conversation_participants_idx ON chat.conversation USING gin (participants);

CREATE TABLE IF NOT EXISTS chat.message (
	id              text PRIMARY KEY,
	conversation_id text NOT NULL,
	sender_id       text NOT NULL,
	kind            text NOT NULL,
	content         text NOT NULL DEFAULT '',
	media_url       text,
	media_type      text,
	file_name       text,
	file_size       bigint,
	is_private      boolean NOT NULL DEFAULT false,
	created_at      timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS message_created_at_idx ON chat.message (created_at);
CREATE INDEX IF NOT EXISTS message_conversation_idx ON chat.message (conversation_id, created_at);
`

const pgParticipantColumns = `id, display_name, is_online, is_public, last_seen`

const pgMessageColumns = `id, conversation_id, sender_id, kind, content, media_url, media_type, file_name, file_size, is_private, created_at`

var errNilPool = errors.New("PgChatRepository: nil pool")

type PgChatRepository struct {
	pool *pgxpool.Pool
}

func NewPgChatRepository(pool *pgxpool.Pool) *PgChatRepository {
	return &PgChatRepository{pool: pool}
}

var _ repository.ChatRepository = (*PgChatRepository)(nil)

// EnsureSchema creates the chat schema and its indexes when missing.
func (r *PgChatRepository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return errNilPool
	}
	if _, err := r.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *PgChatRepository) Close() error {
	if r != nil && r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func (r *PgChatRepository) GetParticipant(ctx context.Context, id string) (chat.Participant, error) {
	if r == nil || r.pool == nil {
		return chat.Participant{}, errNilPool
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+pgParticipantColumns+`
		FROM chat.participant
		WHERE id = $1
	`, id)
	if err != nil {
		return chat.Participant{}, err
	}
	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[chat.Participant])
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Participant{}, repository.ErrNotFound
	}
	return p, err
}

func (r *PgChatRepository) SetOnlineStatus(ctx context.Context, id string, online bool, at time.Time) error {
	if r == nil || r.pool == nil {
		return errNilPool
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat.participant (id, display_name, is_online, last_seen)
		VALUES ($1, $1, $2, $3)
		ON CONFLICT (id)
		DO UPDATE SET is_online = EXCLUDED.is_online,
		              last_seen = EXCLUDED.last_seen
	`, id, online, at.UTC())
	return err
}

func (r *PgChatRepository) EnsureParticipant(ctx context.Context, p chat.Participant) error {
	if r == nil || r.pool == nil {
		return errNilPool
	}
	lastSeen := p.LastSeen
	if lastSeen.IsZero() {
		lastSeen = time.Now()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat.participant (id, display_name, is_online, is_public, last_seen)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.DisplayName, p.IsOnline, p.IsPublic, lastSeen.UTC())
	return err
}

func (r *PgChatRepository) SetVisibility(ctx context.Context, id string, public bool) (chat.Participant, error) {
	if r == nil || r.pool == nil {
		return chat.Participant{}, errNilPool
	}
	rows, err := r.pool.Query(ctx, `
		UPDATE chat.participant SET is_public = $2
		WHERE id = $1
		RETURNING `+pgParticipantColumns, id, public)
	if err != nil {
		return chat.Participant{}, err
	}
	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[chat.Participant])
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Participant{}, repository.ErrNotFound
	}
	return p, err
}

func (r *PgChatRepository) ListPublicParticipants(ctx context.Context) ([]chat.Participant, error) {
	if r == nil || r.pool == nil {
		return nil, errNilPool
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+pgParticipantColumns+`
		FROM chat.participant
		WHERE is_public
		ORDER BY display_name ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[chat.Participant])
}

func (r *PgChatRepository) ListContacts(ctx context.Context, ownerID string) ([]chat.Contact, error) {
	if r == nil || r.pool == nil {
		return nil, errNilPool
	}
	rows, err := r.pool.Query(ctx, `
		SELECT owner_id, contact_id, contact_name, added_at
		FROM chat.contact
		WHERE owner_id = $1
		ORDER BY added_at ASC, contact_id ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[chat.Contact])
}

func (r *PgChatRepository) AddContact(ctx context.Context, c chat.Contact) error {
	if r == nil || r.pool == nil {
		return errNilPool
	}
	ct, err := r.pool.Exec(ctx, `
		INSERT INTO chat.contact (owner_id, contact_id, contact_name, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id, contact_id) DO NOTHING
	`, c.OwnerID, c.ContactID, c.ContactName, c.AddedAt.UTC())
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (r *PgChatRepository) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	if r == nil || r.pool == nil {
		return chat.Conversation{}, errNilPool
	}
	var c chat.Conversation
	err := r.pool.QueryRow(ctx, `
		SELECT id, participants, last_activity, created_at
		FROM chat.conversation
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Participants, &c.LastActivity, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Conversation{}, repository.ErrNotFound
	}
	return c, err
}

func (r *PgChatRepository) CreateConversation(ctx context.Context, c chat.Conversation) (chat.Conversation, error) {
	if r == nil || r.pool == nil {
		return chat.Conversation{}, errNilPool
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat.conversation (id, participants, last_activity, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, c.ID, c.Participants, c.LastActivity.UTC(), c.CreatedAt.UTC())
	if err != nil {
		return chat.Conversation{}, err
	}
	return r.GetConversation(ctx, c.ID)
}

func (r *PgChatRepository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	if r == nil || r.pool == nil {
		return errNilPool
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE chat.conversation
		SET last_activity = $2
		WHERE id = $1
	`, id, at.UTC())
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *PgChatRepository) ListInactiveSince(ctx context.Context, threshold time.Time) ([]string, error) {
	if r == nil || r.pool == nil {
		return nil, errNilPool
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id
		FROM chat.conversation
		WHERE last_activity < $1
		ORDER BY id
	`, threshold.UTC())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PgChatRepository) ListForParticipant(ctx context.Context, participantID string) ([]chat.Conversation, error) {
	if r == nil || r.pool == nil {
		return nil, errNilPool
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, participants, last_activity, created_at
		FROM chat.conversation
		WHERE $1 = ANY(participants)
		ORDER BY last_activity DESC
	`, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []chat.Conversation
	for rows.Next() {
		var c chat.Conversation
		if err := rows.Scan(&c.ID, &c.Participants, &c.LastActivity, &c.CreatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return convs, nil
}

func (r *PgChatRepository) DeleteConversation(ctx context.Context, id string) error {
	if r == nil || r.pool == nil {
		return errNilPool
	}
	ct, err := r.pool.Exec(ctx, `DELETE FROM chat.conversation WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *PgChatRepository) ListMessages(ctx context.Context, conversationID string, limit int, offset int) ([]chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errNilPool
	}
	limit, offset = normalizePage(limit, offset)
	rows, err := r.pool.Query(ctx, `
		SELECT `+pgMessageColumns+`
		FROM chat.message
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectPgMessages(rows)
}

func (r *PgChatRepository) GetMessage(ctx context.Context, id string) (chat.Message, error) {
	if r == nil || r.pool == nil {
		return chat.Message{}, errNilPool
	}
	rows, err := r.pool.Query(ctx, `SELECT `+pgMessageColumns+` FROM chat.message WHERE id = $1`, id)
	if err != nil {
		return chat.Message{}, err
	}
	msgs, err := collectPgMessages(rows)
	if err != nil {
		return chat.Message{}, err
	}
	if len(msgs) == 0 {
		return chat.Message{}, repository.ErrNotFound
	}
	return msgs[0], nil
}

func (r *PgChatRepository) LastMessage(ctx context.Context, conversationID string) (chat.Message, error) {
	if r == nil || r.pool == nil {
		return chat.Message{}, errNilPool
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+pgMessageColumns+`
		FROM chat.message
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, conversationID)
	if err != nil {
		return chat.Message{}, err
	}
	msgs, err := collectPgMessages(rows)
	if err != nil {
		return chat.Message{}, err
	}
	if len(msgs) == 0 {
		return chat.Message{}, repository.ErrNotFound
	}
	return msgs[0], nil
}

func (r *PgChatRepository) CreateMessage(ctx context.Context, m chat.Message) (chat.Message, error) {
	if r == nil || r.pool == nil {
		return chat.Message{}, errNilPool
	}
	mediaURL, mediaType, fileName, fileSize := mediaColumns(m.Media)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat.message (`+pgMessageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, m.ID, m.ConversationID, m.SenderID, string(m.Kind), m.Content,
		mediaURL, mediaType, fileName, fileSize, m.IsPrivate, m.CreatedAt.UTC())
	if err != nil {
		return chat.Message{}, err
	}
	return m, nil
}

func (r *PgChatRepository) DeleteMessage(ctx context.Context, id string) error {
	if r == nil || r.pool == nil {
		return errNilPool
	}
	ct, err := r.pool.Exec(ctx, `DELETE FROM chat.message WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *PgChatRepository) ListOlderThan(ctx context.Context, threshold time.Time, limit int) ([]chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errNilPool
	}
	// LIMIT NULL is LIMIT ALL.
	var rowLimit *int
	if limit > 0 {
		rowLimit = &limit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+pgMessageColumns+`
		FROM chat.message
		WHERE created_at < $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, threshold.UTC(), rowLimit)
	if err != nil {
		return nil, err
	}
	return collectPgMessages(rows)
}

func (r *PgChatRepository) DeleteMany(ctx context.Context, ids []string) (int, error) {
	if r == nil || r.pool == nil {
		return 0, errNilPool
	}
	if len(ids) == 0 {
		return 0, nil
	}
	ct, err := r.pool.Exec(ctx, `DELETE FROM chat.message WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func collectPgMessages(rows pgx.Rows) ([]chat.Message, error) {
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var (
			msg       chat.Message
			kind      string
			mediaURL  *string
			mediaType *string
			fileName  *string
			fileSize  *int64
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &kind, &msg.Content,
			&mediaURL, &mediaType, &fileName, &fileSize, &msg.IsPrivate, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Kind = chat.MessageKind(kind)
		msg.Media = mediaFromColumns(mediaURL, mediaType, fileName, fileSize)
		msgs = append(msgs, msg)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return msgs, nil
}
