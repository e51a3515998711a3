package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mirroradapter "pulsechat/internal/infrastructure/mirror/adapter"
	"pulsechat/internal/pkg/chat/persistence/repository/adapter"
)

type failingUsers struct{ *adapter.MemoryChatRepository }

func (failingUsers) SetOnlineStatus(context.Context, string, bool, time.Time) error {
	return errors.New("db down")
}

func TestOnlineOffline(t *testing.T) {
	repo := adapter.NewMemoryChatRepository()
	tr := New(repo, nil, nil)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return at }

	ctx := context.Background()
	require.NoError(t, tr.Online(ctx, "alice"))
	p, err := repo.GetParticipant(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, p.IsOnline)
	assert.Equal(t, at, p.LastSeen)

	at = at.Add(time.Minute)
	require.NoError(t, tr.Offline(ctx, "alice"))
	p, err = repo.GetParticipant(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, p.IsOnline)
	assert.Equal(t, at, p.LastSeen)
}

func TestStoreErrorIsReturned(t *testing.T) {
	tr := New(failingUsers{adapter.NewMemoryChatRepository()}, nil, nil)
	err := tr.Online(context.Background(), "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestPresenceIsMirrored(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := mirroradapter.Dial(context.Background(), "redis://"+srv.Addr())
	require.NoError(t, err)
	m := mirroradapter.NewRedisMirror(client, 0)
	t.Cleanup(func() { _ = m.Close() })

	tr := New(adapter.NewMemoryChatRepository(), m, nil)
	require.NoError(t, tr.Online(context.Background(), "bob"))

	raw, err := srv.Get("users:bob:status")
	require.NoError(t, err)
	assert.Contains(t, raw, `"online":true`)
}

func TestMirrorFailureDoesNotFail(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := mirroradapter.Dial(context.Background(), "redis://"+srv.Addr())
	require.NoError(t, err)
	m := mirroradapter.NewRedisMirror(client, 0)
	srv.Close()

	repo := adapter.NewMemoryChatRepository()
	tr := New(repo, m, nil)
	require.NoError(t, tr.Offline(context.Background(), "bob"))
	p, err := repo.GetParticipant(context.Background(), "bob")
	require.NoError(t, err)
	assert.False(t, p.IsOnline)
}
