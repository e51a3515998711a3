package adapter

import (
	"context"
	"sort"
	"sync"
	"time"

	chat "pulsechat/internal/pkg/chat/application/domain"
	repository "pulsechat/internal/pkg/chat/persistence/repository/port"
)

// MemoryChatRepository keeps everything in process memory.
// It backs STORE_DRIVER=memory and the unit tests of the application layer.
type MemoryChatRepository struct {
	mu            sync.RWMutex
	participants  map[string]chat.Participant
	contacts      map[string][]chat.Contact // owner id -> contacts
	conversations map[string]chat.Conversation
	messages      map[string]chat.Message
}

func NewMemoryChatRepository() *MemoryChatRepository {
	return &MemoryChatRepository{
		participants:  make(map[string]chat.Participant),
		contacts:      make(map[string][]chat.Contact),
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string]chat.Message),
	}
}

var _ repository.ChatRepository = (*MemoryChatRepository)(nil)

func (r *MemoryChatRepository) Close() error { return nil }

func (r *MemoryChatRepository) GetParticipant(ctx context.Context, id string) (chat.Participant, error) {
	if err := ctx.Err(); err != nil {
		return chat.Participant{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	if !ok {
		return chat.Participant{}, repository.ErrNotFound
	}
	return p, nil
}

func (r *MemoryChatRepository) SetOnlineStatus(ctx context.Context, id string, online bool, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		p = chat.Participant{ID: id, DisplayName: id}
	}
	p.IsOnline = online
	p.LastSeen = at.UTC()
	r.participants[id] = p
	return nil
}

func (r *MemoryChatRepository) EnsureParticipant(ctx context.Context, p chat.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[p.ID]; ok {
		return nil
	}
	if p.LastSeen.IsZero() {
		p.LastSeen = time.Now()
	}
	p.LastSeen = p.LastSeen.UTC()
	r.participants[p.ID] = p
	return nil
}

func (r *MemoryChatRepository) SetVisibility(ctx context.Context, id string, public bool) (chat.Participant, error) {
	if err := ctx.Err(); err != nil {
		return chat.Participant{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return chat.Participant{}, repository.ErrNotFound
	}
	p.IsPublic = public
	r.participants[id] = p
	return p, nil
}

func (r *MemoryChatRepository) ListPublicParticipants(ctx context.Context) ([]chat.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []chat.Participant
	for _, p := range r.participants {
		if p.IsPublic {
			out = append(out, p)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryChatRepository) ListContacts(ctx context.Context, ownerID string) ([]chat.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := append([]chat.Contact(nil), r.contacts[ownerID]...)
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.Before(out[j].AddedAt)
		}
		return out[i].ContactID < out[j].ContactID
	})
	return out, nil
}

func (r *MemoryChatRepository) AddContact(ctx context.Context, c chat.Contact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.contacts[c.OwnerID] {
		if existing.ContactID == c.ContactID {
			return repository.ErrConflict
		}
	}
	c.AddedAt = c.AddedAt.UTC()
	r.contacts[c.OwnerID] = append(r.contacts[c.OwnerID], c)
	return nil
}

func (r *MemoryChatRepository) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return chat.Conversation{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conversations[id]
	if !ok {
		return chat.Conversation{}, repository.ErrNotFound
	}
	return cloneConversation(c), nil
}

func (r *MemoryChatRepository) CreateConversation(ctx context.Context, c chat.Conversation) (chat.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return chat.Conversation{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.conversations[c.ID]; ok {
		return cloneConversation(existing), nil
	}
	c = cloneConversation(c)
	r.conversations[c.ID] = c
	return cloneConversation(c), nil
}

func (r *MemoryChatRepository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.LastActivity = at.UTC()
	r.conversations[id] = c
	return nil
}

func (r *MemoryChatRepository) ListInactiveSince(ctx context.Context, threshold time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, c := range r.conversations {
		if c.LastActivity.Before(threshold) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MemoryChatRepository) ListForParticipant(ctx context.Context, participantID string) ([]chat.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []chat.Conversation
	for _, c := range r.conversations {
		if c.HasParticipant(participantID) {
			out = append(out, cloneConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

func (r *MemoryChatRepository) DeleteConversation(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conversations[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.conversations, id)
	return nil
}

func (r *MemoryChatRepository) ListMessages(ctx context.Context, conversationID string, limit int, offset int) ([]chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit, offset = normalizePage(limit, offset)
	r.mu.RLock()
	var msgs []chat.Message
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			msgs = append(msgs, m)
		}
	}
	r.mu.RUnlock()

	sortMessages(msgs)
	if offset >= len(msgs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	return msgs[offset:end], nil
}

func (r *MemoryChatRepository) GetMessage(ctx context.Context, id string) (chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return chat.Message{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	if !ok {
		return chat.Message{}, repository.ErrNotFound
	}
	return m, nil
}

func (r *MemoryChatRepository) LastMessage(ctx context.Context, conversationID string) (chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return chat.Message{}, err
	}
	r.mu.RLock()
	var msgs []chat.Message
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			msgs = append(msgs, m)
		}
	}
	r.mu.RUnlock()
	if len(msgs) == 0 {
		return chat.Message{}, repository.ErrNotFound
	}
	sortMessages(msgs)
	return msgs[len(msgs)-1], nil
}

func (r *MemoryChatRepository) CreateMessage(ctx context.Context, m chat.Message) (chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return chat.Message{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.Media != nil {
		media := *m.Media
		m.Media = &media
	}
	r.messages[m.ID] = m
	return m, nil
}

func (r *MemoryChatRepository) DeleteMessage(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.messages, id)
	return nil
}

func (r *MemoryChatRepository) ListOlderThan(ctx context.Context, threshold time.Time, limit int) ([]chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var msgs []chat.Message
	for _, m := range r.messages {
		if m.CreatedAt.Before(threshold) {
			msgs = append(msgs, m)
		}
	}
	r.mu.RUnlock()
	sortMessages(msgs)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (r *MemoryChatRepository) DeleteMany(ctx context.Context, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if _, ok := r.messages[id]; ok {
			delete(r.messages, id)
			deleted++
		}
	}
	return deleted, nil
}

func cloneConversation(c chat.Conversation) chat.Conversation {
	c.Participants = append([]string(nil), c.Participants...)
	return c
}

func sortMessages(msgs []chat.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
