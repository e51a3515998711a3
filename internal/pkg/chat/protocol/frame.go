// Package protocol defines the JSON frames exchanged over the chat websocket.
//
// Every frame is a JSON object with a "type" discriminator. Inbound frames are
// decoded into one concrete variant; anything unknown or missing a required
// field is rejected with a *DecodeError.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	chat "pulsechat/internal/pkg/chat/application/domain"
)

// FrameType is the "type" discriminator of a frame.
type FrameType string

const (
	TypeAuthenticate  FrameType = "authenticate"
	TypeAuthenticated FrameType = "authenticated"
	TypeTyping        FrameType = "typing"
	TypeJoinChat      FrameType = "join_chat"
	TypeJoinedChat    FrameType = "joined_chat"
	TypeNewMessage    FrameType = "new_message"
	TypeError         FrameType = "error"
)

// Frame is implemented by every frame variant.
type Frame interface {
	Type() FrameType
}

// Authenticate binds the socket to a participant. It must be the first frame.
type Authenticate struct {
	ParticipantID string
}

// Authenticated acknowledges Authenticate.
type Authenticated struct {
	ParticipantID string
}

// Typing is both the inbound typing signal and the broadcast to other participants.
type Typing struct {
	ConversationID string
	ParticipantID  string
	IsTyping       bool
}

// JoinChat asks to follow a conversation.
type JoinChat struct {
	ConversationID string
	ParticipantID  string
}

// JoinedChat acknowledges JoinChat.
type JoinedChat struct {
	ConversationID string
}

// NewMessage pushes a freshly created message to a participant.
type NewMessage struct {
	Message MessagePayload
}

// Error reports a rejected frame back to its sender.
type Error struct {
	Code    string
	Message string
}

func (Authenticate) Type() FrameType  { return TypeAuthenticate }
func (Authenticated) Type() FrameType { return TypeAuthenticated }
func (Typing) Type() FrameType        { return TypeTyping }
func (JoinChat) Type() FrameType      { return TypeJoinChat }
func (JoinedChat) Type() FrameType    { return TypeJoinedChat }
func (NewMessage) Type() FrameType    { return TypeNewMessage }
func (Error) Type() FrameType         { return TypeError }

// MessagePayload is the wire shape of a chat.Message.
type MessagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Kind           string    `json:"kind"`
	Content        string    `json:"content,omitempty"`
	MediaURL       string    `json:"mediaUrl,omitempty"`
	MediaType      string    `json:"mediaType,omitempty"`
	FileName       string    `json:"fileName,omitempty"`
	FileSize       int64     `json:"fileSize,omitempty"`
	IsPrivate      bool      `json:"isPrivate"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ToPayload converts a domain message to its wire shape.
func ToPayload(msg chat.Message) MessagePayload {
	p := MessagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Kind:           string(msg.Kind),
		Content:        msg.Content,
		IsPrivate:      msg.IsPrivate,
		CreatedAt:      msg.CreatedAt,
	}
	if msg.Media != nil {
		p.MediaURL = msg.Media.URL
		p.MediaType = msg.Media.MimeType
		p.FileName = msg.Media.FileName
		p.FileSize = msg.Media.FileSize
	}
	return p
}

// DecodeError describes why an inbound frame was rejected.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "protocol: " + e.Reason }

func decodeErr(format string, args ...any) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// envelope is the flat JSON object every frame travels in. userId and chatId
// are accepted on input as aliases for participantId and conversationId.
type envelope struct {
	Type           FrameType       `json:"type"`
	ParticipantID  string          `json:"participantId,omitempty"`
	UserID         string          `json:"userId,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
	ChatID         string          `json:"chatId,omitempty"`
	IsTyping       *bool           `json:"isTyping,omitempty"`
	Message        *MessagePayload `json:"message,omitempty"`
	Code           string          `json:"code,omitempty"`
	Error          string          `json:"error,omitempty"`
}

func (e envelope) participant() string {
	if e.ParticipantID != "" {
		return e.ParticipantID
	}
	return e.UserID
}

func (e envelope) conversation() string {
	if e.ConversationID != "" {
		return e.ConversationID
	}
	return e.ChatID
}

// Decode parses one inbound client frame.
func Decode(data []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, decodeErr("malformed frame: %v", err)
	}

	switch env.Type {
	case "":
		return nil, decodeErr("frame type is required")
	case TypeAuthenticate:
		if env.participant() == "" {
			return nil, decodeErr("authenticate: participantId is required")
		}
		return Authenticate{ParticipantID: env.participant()}, nil
	case TypeTyping:
		if env.conversation() == "" {
			return nil, decodeErr("typing: conversationId is required")
		}
		if env.IsTyping == nil {
			return nil, decodeErr("typing: isTyping is required")
		}
		return Typing{
			ConversationID: env.conversation(),
			ParticipantID:  env.participant(),
			IsTyping:       *env.IsTyping,
		}, nil
	case TypeJoinChat:
		if env.conversation() == "" {
			return nil, decodeErr("join_chat: conversationId is required")
		}
		return JoinChat{ConversationID: env.conversation(), ParticipantID: env.participant()}, nil
	default:
		return nil, decodeErr("unsupported frame type %q", env.Type)
	}
}

// Encode serializes any frame variant.
func Encode(f Frame) ([]byte, error) {
	env := envelope{Type: f.Type()}
	switch v := f.(type) {
	case Authenticate:
		env.ParticipantID = v.ParticipantID
	case Authenticated:
		env.ParticipantID = v.ParticipantID
	case Typing:
		isTyping := v.IsTyping
		env.ConversationID = v.ConversationID
		env.ParticipantID = v.ParticipantID
		env.IsTyping = &isTyping
	case JoinChat:
		env.ConversationID = v.ConversationID
		env.ParticipantID = v.ParticipantID
	case JoinedChat:
		env.ConversationID = v.ConversationID
	case NewMessage:
		msg := v.Message
		env.Message = &msg
	case Error:
		env.Code = v.Code
		env.Error = v.Message
	default:
		return nil, fmt.Errorf("protocol: cannot encode frame %T", f)
	}
	return json.Marshal(env)
}
