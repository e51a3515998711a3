package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationIDIsOrderIndependent(t *testing.T) {
	a, err := ConversationID("bob", "alice")
	require.NoError(t, err)
	b, err := ConversationID("alice", "bob")
	require.NoError(t, err)

	assert.Equal(t, "alice_bob", a)
	assert.Equal(t, a, b)
}

func TestConversationIDRejectsBadInput(t *testing.T) {
	_, err := ConversationID("alice")
	assert.ErrorIs(t, err, ErrTooFewParticipants)

	_, err = ConversationID("alice", "alice", " ")
	assert.ErrorIs(t, err, ErrTooFewParticipants)

	_, err = ConversationID("alice", "bob_smith")
	assert.ErrorIs(t, err, ErrInvalidParticipantID)
}

func TestSplitConversationID(t *testing.T) {
	assert.Equal(t, []string{"alice", "bob", "carol"}, SplitConversationID("alice_bob_carol"))
	assert.Nil(t, SplitConversationID("carol_alice_bob"))
	assert.Nil(t, SplitConversationID("bob_alice"))
	assert.Nil(t, SplitConversationID("alice__bob"))
	assert.Nil(t, SplitConversationID("alice_alice_bob"))
	assert.Nil(t, SplitConversationID("alice"))
	assert.Nil(t, SplitConversationID(""))
}

func TestNewConversation(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	conv, err := NewConversation([]string{"bob", "alice", "bob"}, now)
	require.NoError(t, err)

	assert.Equal(t, "alice_bob", conv.ID)
	assert.Equal(t, []string{"alice", "bob"}, conv.Participants)
	assert.Equal(t, now, conv.LastActivity)
	assert.True(t, conv.HasParticipant("alice"))
	assert.False(t, conv.HasParticipant("carol"))
	assert.Equal(t, []string{"bob"}, conv.Others("alice"))
}
