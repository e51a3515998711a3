package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsechat/internal/infrastructure/metrics"
	mirror "pulsechat/internal/infrastructure/mirror/adapter"
	qport "pulsechat/internal/infrastructure/queue/port"
	"pulsechat/internal/infrastructure/realtime"
	chat "pulsechat/internal/pkg/chat/application/domain"
	"pulsechat/internal/pkg/chat/application/fanout"
	"pulsechat/internal/pkg/chat/application/gateway"
	"pulsechat/internal/pkg/chat/application/presence"
	"pulsechat/internal/pkg/chat/application/retention"
	"pulsechat/internal/pkg/chat/application/task"
	"pulsechat/internal/pkg/chat/application/typing"
	"pulsechat/internal/pkg/chat/application/usecase"
	"pulsechat/internal/pkg/chat/persistence/repository/adapter"
)

type recordingQueue struct {
	mu    sync.Mutex
	tasks []qport.Task
	opts  []qport.EnqueueOption
	err   error
}

func (q *recordingQueue) Enqueue(_ context.Context, t qport.Task, opts ...qport.EnqueueOption) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	q.opts = append(q.opts, opts...)
	if q.err != nil {
		return "", q.err
	}
	return "task-1", nil
}

func (q *recordingQueue) Close() error { return nil }

type testServer struct {
	srv      *httptest.Server
	repo     *adapter.MemoryChatRepository
	registry *realtime.Registry
}

func newTestServer(t *testing.T, q qport.Client) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := metrics.New(prometheus.NewRegistry())
	repo := adapter.NewMemoryChatRepository()
	noop := mirror.NoopMirror{}
	registry := realtime.NewRegistry(nil, m)
	roster := usecase.NewListParticipantsUseCase(repo)
	out := fanout.New(registry, roster, m, nil)
	coord := typing.New(out, typing.Options{QuietInterval: time.Hour})
	t.Cleanup(coord.Close)

	deps := Deps{
		CreateChat:    usecase.NewCreateChatUseCase(repo),
		ListChats:     usecase.NewListChatsUseCase(repo),
		GetMessages:   usecase.NewGetMessageUseCase(repo),
		SendMessage:   usecase.NewSendMessageUseCase(repo, noop, out, nil),
		DeleteMessage: usecase.NewDeleteMessageUseCase(repo, noop, nil),
		PublicUsers:   usecase.NewListPublicUsersUseCase(repo),
		SetVisibility: usecase.NewSetVisibilityUseCase(repo),
		ListContacts:  usecase.NewListContactsUseCase(repo),
		AddContact:    usecase.NewAddContactUseCase(repo),
		Gateway: gateway.New(registry, presence.New(repo, noop, nil), coord,
			usecase.NewJoinConversationUseCase(roster), m, nil),
		Retention: retention.New(repo, noop, retention.DefaultConfig(), m, nil),
		Queue:     q,
	}

	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), deps)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, repo: repo, registry: registry}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := nethttp.NewRequest(method, s.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := nethttp.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (s *testServer) dial(t *testing.T, participantID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/v1/ws?participantId=" + participantID
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	frame := readFrame(t, ws)
	require.Equal(t, "authenticated", frame["type"])
	require.Equal(t, participantID, frame["participantId"])
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]any
	require.NoError(t, ws.ReadJSON(&frame))
	return frame
}

func TestCreateChatIsIdempotent(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, nethttp.MethodPost, "/api/v1/chats", map[string]any{"participantIds": []string{"bob", "alice"}})
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "alice_bob", body["id"])

	status, body = s.do(t, nethttp.MethodPost, "/api/v1/chats", map[string]any{"userId": "alice", "contactUserId": "bob"})
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "alice_bob", body["id"])

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/chats", map[string]any{"participantIds": []string{"alice"}})
	assert.Equal(t, nethttp.StatusBadRequest, status)
}

func TestSendMessageReachesOtherParticipantSocket(t *testing.T) {
	s := newTestServer(t, nil)
	bob := s.dial(t, "bob")

	status, body := s.do(t, nethttp.MethodPost, "/api/v1/messages", map[string]any{
		"conversationId": "alice_bob",
		"senderId":       "alice",
		"content":        "hi",
	})
	require.Equal(t, nethttp.StatusCreated, status)
	assert.Equal(t, "hi", body["content"])

	frame := readFrame(t, bob)
	require.Equal(t, "new_message", frame["type"])
	msg, ok := frame["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hi", msg["content"])
	assert.Equal(t, "alice", msg["senderId"])

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/messages/alice_bob", nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/chats/alice", nil)
	require.Equal(t, nethttp.StatusOK, status)
	require.EqualValues(t, 1, body["count"])
	chats := body["chats"].([]any)
	first := chats[0].(map[string]any)
	assert.Equal(t, "alice_bob", first["id"])
	assert.NotNil(t, first["lastMessage"])
	others := first["others"].([]any)
	require.Len(t, others, 1)
	assert.Equal(t, "bob", others[0].(map[string]any)["id"])
}

func TestTypingOverWebsocket(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.dial(t, "alice")
	bob := s.dial(t, "bob")

	require.NoError(t, alice.WriteJSON(map[string]any{"type": "typing", "conversationId": "alice_bob", "isTyping": true}))
	frame := readFrame(t, bob)
	assert.Equal(t, "typing", frame["type"])
	assert.Equal(t, "alice", frame["participantId"])
	assert.Equal(t, true, frame["isTyping"])

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{not json")))
	frame = readFrame(t, alice)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "bad_request", frame["code"])
}

func TestSecondSocketReplacesFirst(t *testing.T) {
	s := newTestServer(t, nil)
	first := s.dial(t, "alice")
	_ = s.dial(t, "alice")

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, realtime.CloseSessionReplaced, closeErr.Code)
}

func (s *testServer) dialRaw(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/v1/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func requireClosedWith(t *testing.T, ws *websocket.Conn, code int) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, code, closeErr.Code)
}

func TestShutdownClosesSocketsAndWaitsForHandlers(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.dial(t, "alice")
	anonymous := s.dialRaw(t)
	// A reply means the handler is running and tracked.
	require.NoError(t, anonymous.WriteJSON(map[string]any{"type": "join_chat", "conversationId": "alice_bob"}))
	assert.Equal(t, "error", readFrame(t, anonymous)["type"])

	s.registry.Close()
	requireClosedWith(t, alice, websocket.CloseGoingAway)
	requireClosedWith(t, anonymous, websocket.CloseGoingAway)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.registry.Wait(ctx))

	late := s.dialRaw(t)
	requireClosedWith(t, late, websocket.CloseGoingAway)
}

func TestSendMessageErrors(t *testing.T) {
	s := newTestServer(t, nil)

	status, _ := s.do(t, nethttp.MethodPost, "/api/v1/messages", map[string]any{
		"conversationId": "alice_bob", "senderId": "mallory", "content": "hi",
	})
	assert.Equal(t, nethttp.StatusForbidden, status)

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/messages", map[string]any{
		"conversationId": "alice_bob", "senderId": "alice", "content": "   ",
	})
	assert.Equal(t, nethttp.StatusBadRequest, status)

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/messages", map[string]any{"content": "hi"})
	assert.Equal(t, nethttp.StatusBadRequest, status)

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/messages?async=1", map[string]any{
		"conversationId": "alice_bob", "senderId": "alice", "content": "hi",
	})
	assert.Equal(t, nethttp.StatusServiceUnavailable, status)
}

func TestSendMessageAsyncEnqueues(t *testing.T) {
	q := &recordingQueue{}
	s := newTestServer(t, q)

	status, body := s.do(t, nethttp.MethodPost, "/api/v1/messages?async=1", map[string]any{
		"conversationId": "alice_bob", "senderId": "alice", "content": "later",
	})
	require.Equal(t, nethttp.StatusAccepted, status)
	assert.Equal(t, "task-1", body["taskId"])

	require.Len(t, q.tasks, 1)
	assert.Equal(t, task.SendMessageTaskType, q.tasks[0].Type)
	require.Len(t, q.opts, 1)
	assert.Equal(t, "chat", q.opts[0].Queue)
	assert.Equal(t, 20, q.opts[0].MaxRetry)
	assert.Equal(t, time.Hour, q.opts[0].Retention)
	assert.Zero(t, q.opts[0].UniqueTTL)

	var p task.SendMessageTaskPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload, &p))
	assert.Equal(t, "later", p.Content)
}

func TestSendMessageAsyncDeduplicatesByClientMessageID(t *testing.T) {
	q := &recordingQueue{}
	s := newTestServer(t, q)
	body := map[string]any{
		"conversationId": "alice_bob", "senderId": "alice", "content": "once", "clientMessageId": "c-42",
	}

	status, _ := s.do(t, nethttp.MethodPost, "/api/v1/messages?async=1", body)
	require.Equal(t, nethttp.StatusAccepted, status)
	require.Len(t, q.opts, 1)
	assert.Equal(t, 5*time.Minute, q.opts[0].UniqueTTL)

	q.err = fmt.Errorf("%w: task already exists", qport.ErrDuplicateTask)
	status, resp := s.do(t, nethttp.MethodPost, "/api/v1/messages?async=1", body)
	assert.Equal(t, nethttp.StatusConflict, status)
	assert.Equal(t, "duplicate", resp["status"])
}

func TestDeleteMessage(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, nethttp.MethodPost, "/api/v1/messages", map[string]any{
		"conversationId": "alice_bob", "senderId": "alice", "content": "oops",
	})
	require.Equal(t, nethttp.StatusCreated, status)
	id := body["id"].(string)

	status, _ = s.do(t, nethttp.MethodDelete, "/api/v1/messages/"+id+"?conversationId=alice_bob", nil)
	assert.Equal(t, nethttp.StatusOK, status)

	status, _ = s.do(t, nethttp.MethodDelete, "/api/v1/messages/"+id, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
}

func TestAdminCleanupEvictsExpiredMessages(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()

	conv, err := chat.NewConversation([]string{"alice", "bob"}, time.Now())
	require.NoError(t, err)
	_, err = s.repo.CreateConversation(ctx, *conv)
	require.NoError(t, err)
	_, err = s.repo.CreateMessage(ctx, chat.Message{
		ID:             "old",
		ConversationID: conv.ID,
		SenderID:       "alice",
		Kind:           chat.MessageKindText,
		Content:        "stale",
		CreatedAt:      time.Now().Add(-8 * 24 * time.Hour),
	})
	require.NoError(t, err)

	status, body := s.do(t, nethttp.MethodPost, "/api/v1/admin/cleanup", nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.EqualValues(t, 1, body["messagesDeleted"])
	assert.EqualValues(t, 0, body["conversationsDeleted"])
	assert.Equal(t, false, body["skipped"])
}

func TestPublicDirectoryAndVisibility(t *testing.T) {
	s := newTestServer(t, nil)

	status, _ := s.do(t, nethttp.MethodPost, "/api/v1/chats", map[string]any{"participantIds": []string{"alice", "bob"}})
	require.Equal(t, nethttp.StatusOK, status)

	status, body := s.do(t, nethttp.MethodGet, "/api/v1/users/public", nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.EqualValues(t, 0, body["count"])

	status, body = s.do(t, nethttp.MethodPatch, "/api/v1/users/bob/visibility", map[string]any{"isPublic": true})
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, true, body["isPublic"])

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/users/public", nil)
	require.Equal(t, nethttp.StatusOK, status)
	require.EqualValues(t, 1, body["count"])
	assert.Equal(t, "bob", body["users"].([]any)[0].(map[string]any)["id"])

	status, _ = s.do(t, nethttp.MethodPatch, "/api/v1/users/bob/visibility", map[string]any{})
	assert.Equal(t, nethttp.StatusBadRequest, status)

	status, _ = s.do(t, nethttp.MethodPatch, "/api/v1/users/nobody/visibility", map[string]any{"isPublic": true})
	assert.Equal(t, nethttp.StatusNotFound, status)
}

func TestContacts(t *testing.T) {
	s := newTestServer(t, nil)

	status, _ := s.do(t, nethttp.MethodPost, "/api/v1/chats", map[string]any{"participantIds": []string{"alice", "bob"}})
	require.Equal(t, nethttp.StatusOK, status)

	status, body := s.do(t, nethttp.MethodPost, "/api/v1/contacts", map[string]any{
		"userId": "alice", "contactUserId": "bob",
	})
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "bob", body["contactName"])

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/contacts", map[string]any{
		"userId": "alice", "contactUserId": "bob",
	})
	assert.Equal(t, nethttp.StatusConflict, status)

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/contacts", map[string]any{
		"userId": "alice", "contactUserId": "nobody",
	})
	assert.Equal(t, nethttp.StatusNotFound, status)

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/contacts", map[string]any{
		"userId": "alice", "contactUserId": "alice",
	})
	assert.Equal(t, nethttp.StatusBadRequest, status)

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/contacts", map[string]any{"userId": "alice"})
	assert.Equal(t, nethttp.StatusBadRequest, status)

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/contacts/alice", nil)
	require.Equal(t, nethttp.StatusOK, status)
	require.EqualValues(t, 1, body["count"])
	entry := body["contacts"].([]any)[0].(map[string]any)
	assert.Equal(t, "bob", entry["contactUserId"])
	assert.Equal(t, "bob", entry["user"].(map[string]any)["id"])

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/contacts/bob", nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.EqualValues(t, 0, body["count"])
}
