package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mirroradapter "pulsechat/internal/infrastructure/mirror/adapter"
	chat "pulsechat/internal/pkg/chat/application/domain"
	"pulsechat/internal/pkg/chat/persistence/repository/adapter"
	repository "pulsechat/internal/pkg/chat/persistence/repository/port"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []chat.Message
}

func (n *recordingNotifier) NotifyNewMessage(_ context.Context, msg chat.Message) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return 1
}

type brokenRepo struct{ *adapter.MemoryChatRepository }

func (brokenRepo) CreateMessage(context.Context, chat.Message) (chat.Message, error) {
	return chat.Message{}, errors.New("disk full")
}

func (brokenRepo) TouchActivity(context.Context, string, time.Time) error {
	return errors.New("disk full")
}

func TestCreateChatIsIdempotent(t *testing.T) {
	repo := adapter.NewMemoryChatRepository()
	uc := NewCreateChatUseCase(repo)
	uc.now = func() time.Time { return t0 }

	first, err := uc.Execute(context.Background(), CreateChatInput{ParticipantIDs: []string{"bob", "alice"}})
	require.NoError(t, err)
	assert.Equal(t, "alice_bob", first.ID)

	uc.now = func() time.Time { return t0.Add(time.Hour) }
	second, err := uc.Execute(context.Background(), CreateChatInput{ParticipantIDs: []string{"alice", "bob"}})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, t0, second.CreatedAt)

	_, err = uc.Execute(context.Background(), CreateChatInput{ParticipantIDs: []string{"alice"}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSendMessagePersistsTouchesAndNotifies(t *testing.T) {
	repo := adapter.NewMemoryChatRepository()
	conv, err := chat.NewConversation([]string{"alice", "bob"}, t0)
	require.NoError(t, err)
	_, err = repo.CreateConversation(context.Background(), *conv)
	require.NoError(t, err)

	srv := miniredis.RunT(t)
	client, err := mirroradapter.Dial(context.Background(), "redis://"+srv.Addr())
	require.NoError(t, err)
	m := mirroradapter.NewRedisMirror(client, 0)
	t.Cleanup(func() { _ = m.Close() })

	n := &recordingNotifier{}
	uc := NewSendMessageUseCase(repo, m, n, nil)
	sentAt := t0.Add(time.Hour)
	uc.now = func() time.Time { return sentAt }

	msg, err := uc.Execute(context.Background(), SendMessageInput{
		ConversationID: "alice_bob",
		SenderID:       "alice",
		Content:        "  hi bob  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "hi bob", msg.Content)
	assert.Equal(t, chat.MessageKindText, msg.Kind)

	stored, err := repo.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, *msg, stored)

	got, err := repo.GetConversation(context.Background(), "alice_bob")
	require.NoError(t, err)
	assert.Equal(t, sentAt, got.LastActivity)

	require.Len(t, n.msgs, 1)
	assert.Equal(t, msg.ID, n.msgs[0].ID)
	assert.NotEmpty(t, srv.HGet("chats:alice_bob:messages", msg.ID))
}

func TestSendMessageCreatesMissingConversation(t *testing.T) {
	repo := adapter.NewMemoryChatRepository()
	uc := NewSendMessageUseCase(repo, nil, nil, nil)

	_, err := uc.Execute(context.Background(), SendMessageInput{ConversationID: "alice_bob", SenderID: "bob", Content: "yo"})
	require.NoError(t, err)
	conv, err := repo.GetConversation(context.Background(), "alice_bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, conv.Participants)

	_, err = uc.Execute(context.Background(), SendMessageInput{ConversationID: "bob_alice", SenderID: "bob", Content: "yo"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = uc.Execute(context.Background(), SendMessageInput{ConversationID: "solo", SenderID: "solo", Content: "yo"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendMessageRejections(t *testing.T) {
	repo := adapter.NewMemoryChatRepository()
	uc := NewSendMessageUseCase(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := uc.Execute(ctx, SendMessageInput{ConversationID: "alice_bob"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = uc.Execute(ctx, SendMessageInput{ConversationID: "alice_bob", SenderID: "mallory", Content: "x"})
	assert.ErrorIs(t, err, chat.ErrNotParticipant)

	_, err = uc.Execute(ctx, SendMessageInput{ConversationID: "alice_bob", SenderID: "alice", Content: "   "})
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)

	_, err = uc.Execute(ctx, SendMessageInput{ConversationID: "alice_bob", SenderID: "alice", Kind: chat.MessageKindImage})
	assert.ErrorIs(t, err, chat.ErrMissingMedia)

	_, err = uc.Execute(ctx, SendMessageInput{ConversationID: "alice_bob", SenderID: "alice", Kind: "sticker", Content: "x"})
	assert.ErrorIs(t, err, chat.ErrUnknownMessageKind)

	broken := NewSendMessageUseCase(brokenRepo{repo}, nil, nil, nil)
	_, err = broken.Execute(ctx, SendMessageInput{ConversationID: "alice_bob", SenderID: "alice", Content: "x"})
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestSendMessageSurvivesActivityFailure(t *testing.T) {
	repo := adapter.NewMemoryChatRepository()
	n := &recordingNotifier{}
	uc := NewSendMessageUseCase(touchFailingRepo{repo}, nil, n, nil)

	msg, err := uc.Execute(context.Background(), SendMessageInput{ConversationID: "alice_bob", SenderID: "alice", Content: "x"})
	require.NoError(t, err)
	assert.Len(t, n.msgs, 1)
	_, err = repo.GetMessage(context.Background(), msg.ID)
	assert.NoError(t, err)
}

type touchFailingRepo struct{ *adapter.MemoryChatRepository }

func (touchFailingRepo) TouchActivity(context.Context, string, time.Time) error {
	return errors.New("timeout")
}

func TestGetMessageDefaultsAndOrder(t *testing.T) {
	repo := adapter.NewMemoryChatRepository()
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		m, err := chat.NewMessage(chat.Message{ConversationID: "alice_bob", SenderID: "alice", Content: "x", CreatedAt: t0.Add(time.Duration(i) * time.Second)})
		require.NoError(t, err)
		_, err = repo.CreateMessage(ctx, *m)
		require.NoError(t, err)
	}
	uc := NewGetMessageUseCase(repo)

	page, err := uc.Execute(ctx, GetMessageInput{ConversationID: "alice_bob"})
	require.NoError(t, err)
	require.Len(t, page, DefaultMessagePage)
	assert.True(t, page[0].CreatedAt.Before(page[1].CreatedAt))

	rest, err := uc.Execute(ctx, GetMessageInput{ConversationID: "alice_bob", Limit: 50, Offset: 50})
	require.NoError(t, err)
	assert.Len(t, rest, 10)

	empty, err := uc.Execute(ctx, GetMessageInput{ConversationID: "carol_dave"})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = uc.Execute(ctx, GetMessageInput{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParticipantsFallsBackToConversationID(t *testing.T) {
	repo := adapter.NewMemoryChatRepository()
	conv, err := chat.NewConversation([]string{"alice", "bob", "carol"}, t0)
	require.NoError(t, err)
	_, err = repo.CreateConversation(context.Background(), *conv)
	require.NoError(t, err)
	uc := NewListParticipantsUseCase(repo)

	ids, err := uc.Execute(context.Background(), ListParticipantsInput{ConversationID: "alice_bob_carol"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, ids)

	ids, err = uc.Participants(context.Background(), "dave_erin")
	require.NoError(t, err)
	assert.Equal(t, []string{"dave", "erin"}, ids)

	_, err = uc.Participants(context.Background(), "lonely")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJoinConversation(t *testing.T) {
	uc := NewJoinConversationUseCase(NewListParticipantsUseCase(adapter.NewMemoryChatRepository()))
	ctx := context.Background()

	assert.NoError(t, uc.Execute(ctx, JoinConversationInput{ConversationID: "alice_bob", ParticipantID: "bob"}))
	assert.ErrorIs(t, uc.Execute(ctx, JoinConversationInput{ConversationID: "alice_bob", ParticipantID: "carol"}), chat.ErrNotParticipant)
	assert.ErrorIs(t, uc.Execute(ctx, JoinConversationInput{ConversationID: "alice_bob"}), ErrInvalidInput)
}

func TestListChats(t *testing.T) {
	repo := adapter.NewMemoryChatRepository()
	ctx := context.Background()
	require.NoError(t, repo.EnsureParticipant(ctx, chat.Participant{ID: "bob", DisplayName: "Bob", LastSeen: t0}))

	create := NewCreateChatUseCase(repo)
	create.now = func() time.Time { return t0 }
	_, err := create.Execute(ctx, CreateChatInput{ParticipantIDs: []string{"alice", "bob"}})
	require.NoError(t, err)
	create.now = func() time.Time { return t0.Add(time.Hour) }
	_, err = create.Execute(ctx, CreateChatInput{ParticipantIDs: []string{"alice", "carol"}})
	require.NoError(t, err)

	send := NewSendMessageUseCase(repo, nil, nil, nil)
	send.now = func() time.Time { return t0.Add(2 * time.Hour) }
	last, err := send.Execute(ctx, SendMessageInput{ConversationID: "alice_bob", SenderID: "bob", Content: "latest"})
	require.NoError(t, err)

	chats, err := NewListChatsUseCase(repo).Execute(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, chats, 2)

	assert.Equal(t, "alice_bob", chats[0].Conversation.ID)
	require.Len(t, chats[0].Others, 1)
	assert.Equal(t, "Bob", chats[0].Others[0].DisplayName)
	require.NotNil(t, chats[0].LastMessage)
	assert.Equal(t, last.ID, chats[0].LastMessage.ID)

	assert.Equal(t, "alice_carol", chats[1].Conversation.ID)
	require.Len(t, chats[1].Others, 1)
	assert.Equal(t, "carol", chats[1].Others[0].DisplayName)
	assert.Nil(t, chats[1].LastMessage)
}

func TestDeleteMessage(t *testing.T) {
	repo := adapter.NewMemoryChatRepository()
	ctx := context.Background()
	send := NewSendMessageUseCase(repo, nil, nil, nil)
	msg, err := send.Execute(ctx, SendMessageInput{ConversationID: "alice_bob", SenderID: "bob", Content: "oops"})
	require.NoError(t, err)

	uc := NewDeleteMessageUseCase(repo, mirroradapter.NoopMirror{}, nil)
	require.NoError(t, uc.Execute(ctx, DeleteMessageInput{MessageID: msg.ID}))
	_, err = repo.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.ErrorIs(t, uc.Execute(ctx, DeleteMessageInput{MessageID: msg.ID}), ErrNotFound)
	assert.ErrorIs(t, uc.Execute(ctx, DeleteMessageInput{MessageID: msg.ID, ConversationID: "alice_bob"}), ErrNotFound)
	assert.ErrorIs(t, uc.Execute(ctx, DeleteMessageInput{}), ErrInvalidInput)
}
