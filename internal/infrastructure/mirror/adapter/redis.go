package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"pulsechat/internal/infrastructure/mirror/port"
	chat "pulsechat/internal/pkg/chat/application/domain"
	"pulsechat/internal/pkg/chat/protocol"
)

// Event kinds published on chats:{id}:events.
const (
	EventMessageCreated = "message_created"
	EventMessageDeleted = "message_deleted"
)

// Event is the JSON body published on a conversation's event channel.
type Event struct {
	Type           string                   `json:"type"`
	ConversationID string                   `json:"conversationId"`
	MessageID      string                   `json:"messageId"`
	Message        *protocol.MessagePayload `json:"message,omitempty"`
}

type presenceRecord struct {
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

// RedisMirror implements port.Mirror on top of a go-redis v9 client.
//
// Key layout:
//
//	chats:{id}                  hash with conversation metadata
//	chats:{id}:messages         hash of message id to JSON payload
//	chats:{id}:events           pub/sub channel
//	chats:{id}:typing:{pid}     typing marker with TTL
//	users:{pid}:status          presence record with TTL
type RedisMirror struct {
	client      *redis.Client
	presenceTTL time.Duration
}

// Dial parses url, connects and pings the server.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("redis: url is empty")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return c, nil
}

// NewRedisMirror wraps client. presenceTTL bounds how long a presence record
// survives a crashed process; zero keeps it forever.
func NewRedisMirror(client *redis.Client, presenceTTL time.Duration) *RedisMirror {
	return &RedisMirror{client: client, presenceTTL: presenceTTL}
}

// Ensure interface compliance at compile time
var _ port.Mirror = (*RedisMirror)(nil)

func conversationKey(id string) string { return "chats:" + id }
func messagesKey(id string) string     { return "chats:" + id + ":messages" }
func eventsChannel(id string) string   { return "chats:" + id + ":events" }
func typingKey(id, pid string) string  { return "chats:" + id + ":typing:" + pid }
func statusKey(pid string) string      { return "users:" + pid + ":status" }

func (r *RedisMirror) Publish(ctx context.Context, msg chat.Message) error {
	payload := protocol.ToPayload(msg)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mirror: encode message: %w", err)
	}
	event, err := json.Marshal(Event{
		Type:           EventMessageCreated,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Message:        &payload,
	})
	if err != nil {
		return fmt.Errorf("mirror: encode event: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, messagesKey(msg.ConversationID), msg.ID, body)
		p.HSet(ctx, conversationKey(msg.ConversationID), "lastActivity", msg.CreatedAt.UTC().Format(time.RFC3339Nano))
		p.Publish(ctx, eventsChannel(msg.ConversationID), event)
		return nil
	})
	return err
}

func (r *RedisMirror) Remove(ctx context.Context, conversationID, messageID string) error {
	event, err := json.Marshal(Event{
		Type:           EventMessageDeleted,
		ConversationID: conversationID,
		MessageID:      messageID,
	})
	if err != nil {
		return fmt.Errorf("mirror: encode event: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, messagesKey(conversationID), messageID)
		p.Publish(ctx, eventsChannel(conversationID), event)
		return nil
	})
	return err
}

func (r *RedisMirror) DeleteConversationSubtree(ctx context.Context, conversationID string) error {
	keys := []string{conversationKey(conversationID), messagesKey(conversationID)}
	iter := r.client.Scan(ctx, 0, escapeGlob(typingKey(conversationID, ""))+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisMirror) SetPresence(ctx context.Context, participantID string, online bool, at time.Time) error {
	body, err := json.Marshal(presenceRecord{Online: online, LastSeen: at.UTC()})
	if err != nil {
		return fmt.Errorf("mirror: encode presence: %w", err)
	}
	return r.client.Set(ctx, statusKey(participantID), body, r.presenceTTL).Err()
}

func (r *RedisMirror) SetTyping(ctx context.Context, conversationID, participantID string, typing bool, ttl time.Duration) error {
	key := typingKey(conversationID, participantID)
	if !typing {
		return r.client.Del(ctx, key).Err()
	}
	return r.client.Set(ctx, key, "1", ttl).Err()
}

func (r *RedisMirror) Close() error {
	return r.client.Close()
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, ch := range s {
		switch ch {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(ch)
	}
	return b.String()
}
