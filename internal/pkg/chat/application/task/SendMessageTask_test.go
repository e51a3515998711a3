package task

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qport "pulsechat/internal/infrastructure/queue/port"
	chat "pulsechat/internal/pkg/chat/application/domain"
	"pulsechat/internal/pkg/chat/application/usecase"
	"pulsechat/internal/pkg/chat/persistence/repository/adapter"
)

type fakeServer struct {
	handlers map[string]qport.Handler
}

func (s *fakeServer) Register(taskType string, h qport.Handler) { s.handlers[taskType] = h }
func (s *fakeServer) Run(context.Context) error { return nil }
func (s *fakeServer) Stop(context.Context) error { return nil }

func TestSendMessageTaskRoundTrip(t *testing.T) {
	repo := adapter.NewMemoryChatRepository()
	srv := &fakeServer{handlers: map[string]qport.Handler{}}
	RegisterSendMessageTask(srv, usecase.NewSendMessageUseCase(repo, nil, nil, nil))

	task, err := NewSendMessageTask(SendMessageTaskPayload{
		ConversationID: "alice_bob",
		SenderID:       "alice",
		Kind:           "image",
		MediaURL:       "https://cdn.example/a.png",
		MediaType:      "image/png",
	})
	require.NoError(t, err)

	h := srv.handlers[SendMessageTaskType]
	require.NotNil(t, h)
	require.NoError(t, h(context.Background(), task))

	msgs, err := repo.ListMessages(context.Background(), "alice_bob", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.MessageKindImage, msgs[0].Kind)
	require.NotNil(t, msgs[0].Media)
	assert.Equal(t, "image/png", msgs[0].Media.MimeType)
}

func TestSendMessageTaskSkipsRetryOnBadInput(t *testing.T) {
	h := HandleSendMessage(usecase.NewSendMessageUseCase(adapter.NewMemoryChatRepository(), nil, nil, nil))

	err := h(context.Background(), qport.Task{Type: SendMessageTaskType, Payload: []byte("{")})
	assert.ErrorIs(t, err, asynq.SkipRetry)

	task, err := NewSendMessageTask(SendMessageTaskPayload{ConversationID: "alice_bob", SenderID: "mallory", Content: "x"})
	require.NoError(t, err)
	err = h(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, chat.ErrNotParticipant)
}
