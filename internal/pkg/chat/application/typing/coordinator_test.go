package typing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mirroradapter "pulsechat/internal/infrastructure/mirror/adapter"
	chat "pulsechat/internal/pkg/chat/application/domain"
	"pulsechat/internal/pkg/chat/protocol"
)

type delivery struct {
	recipients []string
	frame      protocol.Typing
}

type recordingFanout struct {
	participants map[string][]string

	mu         sync.Mutex
	deliveries []delivery
}

func (f *recordingFanout) Participants(_ context.Context, id string) ([]string, error) {
	if ids, ok := f.participants[id]; ok {
		return ids, nil
	}
	return chat.SplitConversationID(id), nil
}

func (f *recordingFanout) DeliverFrame(recipients []string, fr protocol.Frame) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, delivery{recipients: recipients, frame: fr.(protocol.Typing)})
	return len(recipients)
}

func (f *recordingFanout) snapshot() []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivery(nil), f.deliveries...)
}

const quiet = 40 * time.Millisecond

func newCoordinator(t *testing.T) (*Coordinator, *recordingFanout) {
	t.Helper()
	f := &recordingFanout{}
	c := New(f, Options{QuietInterval: quiet})
	t.Cleanup(c.Close)
	return c, f
}

func TestTypingStartIsBroadcastToOthers(t *testing.T) {
	c, f := newCoordinator(t)
	require.NoError(t, c.Update(context.Background(), "alice_bob_carol", "alice", true))

	got := f.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"bob", "carol"}, got[0].recipients)
	assert.Equal(t, protocol.Typing{ConversationID: "alice_bob_carol", ParticipantID: "alice", IsTyping: true}, got[0].frame)
	assert.Equal(t, []string{"alice"}, c.Active("alice_bob_carol"))
}

func TestTypingExpiresAfterQuietInterval(t *testing.T) {
	c, f := newCoordinator(t)
	require.NoError(t, c.Update(context.Background(), "alice_bob", "alice", true))

	assert.Eventually(t, func() bool { return len(f.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	got := f.snapshot()
	assert.False(t, got[1].frame.IsTyping)
	assert.Equal(t, []string{"bob"}, got[1].recipients)
	assert.Empty(t, c.Active("alice_bob"))
}

func TestRepeatedStartRefreshesWithoutRebroadcast(t *testing.T) {
	const interval = 200 * time.Millisecond
	f := &recordingFanout{}
	c := New(f, Options{QuietInterval: interval})
	t.Cleanup(c.Close)

	ctx := context.Background()
	require.NoError(t, c.Update(ctx, "alice_bob", "alice", true))
	for i := 0; i < 4; i++ {
		time.Sleep(interval / 4)
		require.NoError(t, c.Update(ctx, "alice_bob", "alice", true))
	}

	// Still typing: the refreshes kept pushing the deadline out.
	assert.Len(t, f.snapshot(), 1)
	assert.Equal(t, []string{"alice"}, c.Active("alice_bob"))

	assert.Eventually(t, func() bool { return len(f.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(2 * interval)
	// Exactly one stop, no stale timer fired a second one.
	assert.Len(t, f.snapshot(), 2)
}

func TestExplicitStopCancelsTimer(t *testing.T) {
	c, f := newCoordinator(t)
	ctx := context.Background()
	require.NoError(t, c.Update(ctx, "alice_bob", "alice", true))
	require.NoError(t, c.Update(ctx, "alice_bob", "alice", false))

	got := f.snapshot()
	require.Len(t, got, 2)
	assert.False(t, got[1].frame.IsTyping)

	time.Sleep(2 * quiet)
	assert.Len(t, f.snapshot(), 2)
}

func TestStopWithoutStartIsDropped(t *testing.T) {
	c, f := newCoordinator(t)
	require.NoError(t, c.Update(context.Background(), "alice_bob", "alice", false))
	assert.Empty(t, f.snapshot())
}

func TestNonParticipantIsRejected(t *testing.T) {
	c, f := newCoordinator(t)
	err := c.Update(context.Background(), "alice_bob", "mallory", true)
	assert.ErrorIs(t, err, chat.ErrNotParticipant)
	assert.Empty(t, f.snapshot())
}

func TestCancelParticipantClearsEveryConversation(t *testing.T) {
	c, f := newCoordinator(t)
	ctx := context.Background()
	require.NoError(t, c.Update(ctx, "alice_bob", "alice", true))
	require.NoError(t, c.Update(ctx, "alice_carol", "alice", true))
	require.NoError(t, c.Update(ctx, "alice_bob", "bob", true))

	cleared := c.CancelParticipant(ctx, "alice")
	assert.Equal(t, []string{"alice_bob", "alice_carol"}, cleared)
	assert.Equal(t, []string{"bob"}, c.Active("alice_bob"))
	assert.Empty(t, c.Active("alice_carol"))

	stops := 0
	for _, d := range f.snapshot() {
		if d.frame.ParticipantID == "alice" && !d.frame.IsTyping {
			stops++
		}
	}
	assert.Equal(t, 2, stops)

	time.Sleep(2 * quiet)
	// Only bob's own expiry fires afterwards.
	assert.Len(t, f.snapshot(), 6)
}

func TestTypingIsMirrored(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := mirroradapter.Dial(context.Background(), "redis://"+srv.Addr())
	require.NoError(t, err)
	m := mirroradapter.NewRedisMirror(client, time.Minute)
	t.Cleanup(func() { _ = m.Close() })

	f := &recordingFanout{}
	c := New(f, Options{QuietInterval: time.Hour, Mirror: m})
	t.Cleanup(c.Close)

	ctx := context.Background()
	require.NoError(t, c.Update(ctx, "alice_bob", "alice", true))
	assert.True(t, srv.Exists("chats:alice_bob:typing:alice"))
	require.NoError(t, c.Update(ctx, "alice_bob", "alice", false))
	assert.False(t, srv.Exists("chats:alice_bob:typing:alice"))
}
