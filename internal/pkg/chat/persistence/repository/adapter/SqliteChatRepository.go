package adapter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	chat "pulsechat/internal/pkg/chat/application/domain"
	repository "pulsechat/internal/pkg/chat/persistence/repository/port"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS participant (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	is_online    INTEGER NOT NULL DEFAULT 0,
	is_public    INTEGER NOT NULL DEFAULT 0,
	last_seen    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS participant_public_idx ON participant (is_public, display_name);

CREATE TABLE IF NOT EXISTS contact (
	owner_id     TEXT NOT NULL,
	contact_id   TEXT NOT NULL,
	contact_name TEXT NOT NULL DEFAULT '',
	added_at     INTEGER NOT NULL,
	PRIMARY KEY (owner_id, contact_id)
);

CREATE TABLE IF NOT EXISTS conversation (
	id            TEXT PRIMARY KEY,
	participants  TEXT NOT NULL,
	last_activity INTEGER NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS conversation_last_activity_idx ON conversation (last_activity);

CREATE TABLE IF NOT EXISTS message (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	sender_id       TEXT NOT NULL,
	kind            TEXT NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	media_url       TEXT,
	media_type      TEXT,
	file_name       TEXT,
	file_size       INTEGER,
	is_private      INTEGER NOT NULL DEFAULT 0,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS message_created_at_idx ON message (created_at);
CREATE INDEX IF NOT EXISTS message_conversation_idx ON message (conversation_id, created_at);
`

const sqliteParticipantColumns = `id, display_name, is_online, is_public, last_seen`

const sqliteMessageColumns = `id, conversation_id, sender_id, kind, content, media_url, media_type, file_name, file_size, is_private, created_at`

// SqliteChatRepository stores chat state in a single SQLite file.
// Timestamps are kept as unix milliseconds and participant lists as JSON arrays.
type SqliteChatRepository struct {
	db *sql.DB
}

func NewSqliteChatRepository(db *sql.DB) *SqliteChatRepository {
	return &SqliteChatRepository{db: db}
}

var _ repository.ChatRepository = (*SqliteChatRepository)(nil)

func (r *SqliteChatRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *SqliteChatRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *SqliteChatRepository) GetParticipant(ctx context.Context, id string) (chat.Participant, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteParticipantColumns+` FROM participant WHERE id = ?`, id)
	p, err := scanSqliteParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Participant{}, repository.ErrNotFound
	}
	if err != nil {
		return chat.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

func (r *SqliteChatRepository) SetOnlineStatus(ctx context.Context, id string, online bool, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO participant (id, display_name, is_online, last_seen)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	is_online = excluded.is_online,
	last_seen = excluded.last_seen
`, id, id, boolToInt(online), toMillis(at))
	if err != nil {
		return fmt.Errorf("set online status: %w", err)
	}
	return nil
}

func (r *SqliteChatRepository) EnsureParticipant(ctx context.Context, p chat.Participant) error {
	lastSeen := p.LastSeen
	if lastSeen.IsZero() {
		lastSeen = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO participant (id, display_name, is_online, is_public, last_seen)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`, p.ID, p.DisplayName, boolToInt(p.IsOnline), boolToInt(p.IsPublic), toMillis(lastSeen))
	if err != nil {
		return fmt.Errorf("ensure participant: %w", err)
	}
	return nil
}

func (r *SqliteChatRepository) SetVisibility(ctx context.Context, id string, public bool) (chat.Participant, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE participant SET is_public = ? WHERE id = ?
RETURNING `+sqliteParticipantColumns, boolToInt(public), id)
	p, err := scanSqliteParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Participant{}, repository.ErrNotFound
	}
	if err != nil {
		return chat.Participant{}, fmt.Errorf("set visibility: %w", err)
	}
	return p, nil
}

func (r *SqliteChatRepository) ListPublicParticipants(ctx context.Context) ([]chat.Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+sqliteParticipantColumns+`
FROM participant
WHERE is_public = 1
ORDER BY display_name ASC, id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list public participants: %w", err)
	}
	defer rows.Close()

	var out []chat.Participant
	for rows.Next() {
		p, err := scanSqliteParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("list public participants: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SqliteChatRepository) ListContacts(ctx context.Context, ownerID string) ([]chat.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT owner_id, contact_id, contact_name, added_at
FROM contact
WHERE owner_id = ?
ORDER BY added_at ASC, contact_id ASC
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []chat.Contact
	for rows.Next() {
		var (
			c       chat.Contact
			addedAt int64
		)
		if err := rows.Scan(&c.OwnerID, &c.ContactID, &c.ContactName, &addedAt); err != nil {
			return nil, fmt.Errorf("list contacts: %w", err)
		}
		c.AddedAt = fromMillis(addedAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SqliteChatRepository) AddContact(ctx context.Context, c chat.Contact) error {
	res, err := r.db.ExecContext(ctx, `
INSERT INTO contact (owner_id, contact_id, contact_name, added_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(owner_id, contact_id) DO NOTHING
`, c.OwnerID, c.ContactID, c.ContactName, toMillis(c.AddedAt))
	if err != nil {
		return fmt.Errorf("add contact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("add contact: %w", err)
	}
	if n == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (r *SqliteChatRepository) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, participants, last_activity, created_at FROM conversation WHERE id = ?
`, id)
	c, err := scanSqliteConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Conversation{}, repository.ErrNotFound
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (r *SqliteChatRepository) CreateConversation(ctx context.Context, c chat.Conversation) (chat.Conversation, error) {
	participants, err := json.Marshal(c.Participants)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("encode participants: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO conversation (id, participants, last_activity, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`, c.ID, string(participants), toMillis(c.LastActivity), toMillis(c.CreatedAt))
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return r.GetConversation(ctx, c.ID)
}

func (r *SqliteChatRepository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversation SET last_activity = ? WHERE id = ?`, toMillis(at), id)
	if err != nil {
		return fmt.Errorf("touch activity: %w", err)
	}
	return requireAffected(res)
}

func (r *SqliteChatRepository) ListInactiveSince(ctx context.Context, threshold time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id FROM conversation WHERE last_activity < ? ORDER BY id
`, toMillis(threshold))
	if err != nil {
		return nil, fmt.Errorf("list inactive conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SqliteChatRepository) ListForParticipant(ctx context.Context, participantID string) ([]chat.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT c.id, c.participants, c.last_activity, c.created_at
FROM conversation c
WHERE EXISTS (SELECT 1 FROM json_each(c.participants) p WHERE p.value = ?)
ORDER BY c.last_activity DESC
`, participantID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []chat.Conversation
	for rows.Next() {
		c, err := scanSqliteConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (r *SqliteChatRepository) DeleteConversation(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversation WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return requireAffected(res)
}

func (r *SqliteChatRepository) ListMessages(ctx context.Context, conversationID string, limit int, offset int) ([]chat.Message, error) {
	limit, offset = normalizePage(limit, offset)
	rows, err := r.db.QueryContext(ctx, `
SELECT `+sqliteMessageColumns+`
FROM message
WHERE conversation_id = ?
ORDER BY created_at ASC, id ASC
LIMIT ? OFFSET ?
`, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return collectSqliteMessages(rows)
}

func (r *SqliteChatRepository) GetMessage(ctx context.Context, id string) (chat.Message, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqliteMessageColumns+` FROM message WHERE id = ?`, id)
	if err != nil {
		return chat.Message{}, fmt.Errorf("get message: %w", err)
	}
	msgs, err := collectSqliteMessages(rows)
	if err != nil {
		return chat.Message{}, err
	}
	if len(msgs) == 0 {
		return chat.Message{}, repository.ErrNotFound
	}
	return msgs[0], nil
}

func (r *SqliteChatRepository) LastMessage(ctx context.Context, conversationID string) (chat.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+sqliteMessageColumns+`
FROM message
WHERE conversation_id = ?
ORDER BY created_at DESC, id DESC
LIMIT 1
`, conversationID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("last message: %w", err)
	}
	msgs, err := collectSqliteMessages(rows)
	if err != nil {
		return chat.Message{}, err
	}
	if len(msgs) == 0 {
		return chat.Message{}, repository.ErrNotFound
	}
	return msgs[0], nil
}

func (r *SqliteChatRepository) CreateMessage(ctx context.Context, m chat.Message) (chat.Message, error) {
	mediaURL, mediaType, fileName, fileSize := mediaColumns(m.Media)
	_, err := r.db.ExecContext(ctx, `
INSERT INTO message (`+sqliteMessageColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, m.ID, m.ConversationID, m.SenderID, string(m.Kind), m.Content,
		mediaURL, mediaType, fileName, fileSize, boolToInt(m.IsPrivate), toMillis(m.CreatedAt))
	if err != nil {
		return chat.Message{}, fmt.Errorf("create message: %w", err)
	}
	return m, nil
}

func (r *SqliteChatRepository) DeleteMessage(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM message WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return requireAffected(res)
}

func (r *SqliteChatRepository) ListOlderThan(ctx context.Context, threshold time.Time, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+sqliteMessageColumns+`
FROM message
WHERE created_at < ?
ORDER BY created_at ASC, id ASC
LIMIT ?
`, toMillis(threshold), limit)
	if err != nil {
		return nil, fmt.Errorf("list expired messages: %w", err)
	}
	return collectSqliteMessages(rows)
}

func (r *SqliteChatRepository) DeleteMany(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM message WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSqliteConversation(row rowScanner) (chat.Conversation, error) {
	var (
		c            chat.Conversation
		participants string
		lastActivity int64
		createdAt    int64
	)
	if err := row.Scan(&c.ID, &participants, &lastActivity, &createdAt); err != nil {
		return chat.Conversation{}, err
	}
	if err := json.Unmarshal([]byte(participants), &c.Participants); err != nil {
		return chat.Conversation{}, fmt.Errorf("decode participants: %w", err)
	}
	c.LastActivity = fromMillis(lastActivity)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

func collectSqliteMessages(rows *sql.Rows) ([]chat.Message, error) {
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var (
			msg       chat.Message
			kind      string
			mediaURL  sql.NullString
			mediaType sql.NullString
			fileName  sql.NullString
			fileSize  sql.NullInt64
			private   int
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &kind, &msg.Content,
			&mediaURL, &mediaType, &fileName, &fileSize, &private, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Kind = chat.MessageKind(kind)
		msg.IsPrivate = private != 0
		msg.CreatedAt = fromMillis(createdAt)
		msg.Media = mediaFromColumns(nullString(mediaURL), nullString(mediaType), nullString(fileName), nullInt(fileSize))
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanSqliteParticipant(row rowScanner) (chat.Participant, error) {
	var (
		p              chat.Participant
		online, public int
		lastSeen       int64
	)
	if err := row.Scan(&p.ID, &p.DisplayName, &online, &public, &lastSeen); err != nil {
		return chat.Participant{}, err
	}
	p.IsOnline = online != 0
	p.IsPublic = public != 0
	p.LastSeen = fromMillis(lastSeen)
	return p, nil
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}
