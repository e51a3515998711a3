package chat

import "errors"

// Domain-level errors for chat behaviors
var (
	ErrNotParticipant        = errors.New("chat: sender is not a participant in the conversation")
	ErrTooFewParticipants    = errors.New("chat: a conversation needs at least two distinct participants")
	ErrInvalidParticipantID  = errors.New("chat: participant id contains the conversation id separator")
	ErrEmptyMessage          = errors.New("chat: empty message (no content or media)")
	ErrMissingMedia          = errors.New("chat: media message without media url")
	ErrUnknownMessageKind    = errors.New("chat: unknown message kind")
	ErrMissingMessageContext = errors.New("chat: conversation_id and sender_id are required")
	ErrContactMissing        = errors.New("chat: userId and contactUserId are required")
	ErrContactSelf           = errors.New("chat: a participant cannot add themselves as a contact")
)
