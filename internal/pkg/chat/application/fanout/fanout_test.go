package fanout_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsechat/internal/infrastructure/metrics"
	"pulsechat/internal/infrastructure/realtime"
	"pulsechat/internal/infrastructure/realtime/realtimetest"
	chat "pulsechat/internal/pkg/chat/application/domain"
	"pulsechat/internal/pkg/chat/application/fanout"
	"pulsechat/internal/pkg/chat/protocol"
)

type staticRoster map[string][]string

func (r staticRoster) Participants(_ context.Context, id string) ([]string, error) {
	ids, ok := r[id]
	if !ok {
		return nil, errors.New("unknown conversation")
	}
	return ids, nil
}

func setup(t *testing.T) (*fanout.Fanout, *realtime.Registry, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	reg := realtime.NewRegistry(nil, m)
	roster := staticRoster{"alice_bob_carol": {"alice", "bob", "carol"}}
	return fanout.New(reg, roster, m, nil), reg, m
}

func TestNotifyNewMessageSkipsSenderAndOffline(t *testing.T) {
	f, reg, m := setup(t)
	alice, bob := realtimetest.NewConn(), realtimetest.NewConn()
	reg.Bind("alice", alice)
	reg.Bind("bob", bob)

	msg := chat.Message{
		ID:             "m1",
		ConversationID: "alice_bob_carol",
		SenderID:       "alice",
		Kind:           chat.MessageKindText,
		Content:        "hey",
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	n := f.NotifyNewMessage(context.Background(), msg)

	assert.Equal(t, 1, n)
	assert.Empty(t, alice.Sent())
	frames := bob.FramesOfType(string(protocol.TypeNewMessage))
	require.Len(t, frames, 1)
	payload := frames[0]["message"].(map[string]any)
	assert.Equal(t, "m1", payload["id"])
	assert.Equal(t, "hey", payload["content"])
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FanoutDeliveries.WithLabelValues("new_message")))
}

func TestNotifyNewMessageUnknownConversation(t *testing.T) {
	f, reg, _ := setup(t)
	bob := realtimetest.NewConn()
	reg.Bind("bob", bob)

	n := f.NotifyNewMessage(context.Background(), chat.Message{ConversationID: "x_y", SenderID: "x"})
	assert.Zero(t, n)
	assert.Empty(t, bob.Sent())
}

func TestBroadcastEncodesOnce(t *testing.T) {
	f, reg, _ := setup(t)
	bob, carol := realtimetest.NewConn(), realtimetest.NewConn()
	reg.Bind("bob", bob)
	reg.Bind("carol", carol)

	n, err := f.Broadcast(context.Background(), "alice_bob_carol", "alice", protocol.Typing{
		ConversationID: "alice_bob_carol", ParticipantID: "alice", IsTyping: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, bob.Sent(), 1)
	assert.Equal(t, bob.Sent()[0], carol.Sent()[0])

	var frame map[string]any
	require.NoError(t, json.Unmarshal(bob.Sent()[0], &frame))
	assert.Equal(t, true, frame["isTyping"])
}

func TestRecipientsExcludes(t *testing.T) {
	f, _, _ := setup(t)
	ids, err := f.Recipients(context.Background(), "alice_bob_carol", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, ids)
}
