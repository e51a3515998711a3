package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	qport "pulsechat/internal/infrastructure/queue/port"
	chat "pulsechat/internal/pkg/chat/application/domain"
	"pulsechat/internal/pkg/chat/application/usecase"
)

// SendMessageTaskType is the queue task name for sending a message within the chat domain.
const SendMessageTaskType = "chat:send_message"

// SendMessageTaskPayload is the JSON payload transported via the queue.
type SendMessageTaskPayload struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Kind           string `json:"kind,omitempty"`
	Content        string `json:"content,omitempty"`
	MediaURL       string `json:"mediaUrl,omitempty"`
	MediaType      string `json:"mediaType,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	FileSize       int64  `json:"fileSize,omitempty"`
	IsPrivate      bool   `json:"isPrivate,omitempty"`
	// ClientMessageID is an optional client retry key; async sends with the
	// same key inside the dedup window are rejected as duplicates.
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

// Input converts the payload to the use case input.
func (p SendMessageTaskPayload) Input() usecase.SendMessageInput {
	in := usecase.SendMessageInput{
		ConversationID: p.ConversationID,
		SenderID:       p.SenderID,
		Kind:           chat.MessageKind(p.Kind),
		Content:        p.Content,
		IsPrivate:      p.IsPrivate,
	}
	if p.MediaURL != "" {
		in.Media = &chat.MediaAttributes{URL: p.MediaURL, MimeType: p.MediaType, FileName: p.FileName, FileSize: p.FileSize}
	}
	return in
}

// NewSendMessageTask encodes p into a queue task.
func NewSendMessageTask(p SendMessageTaskPayload) (qport.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return qport.Task{}, err
	}
	return qport.Task{Type: SendMessageTaskType, Payload: b}, nil
}

// HandleSendMessage returns the worker handler running uc for each task.
// Only persistence failures are retried; a task that can never succeed is dropped.
func HandleSendMessage(uc *usecase.SendMessageUseCase) qport.Handler {
	return func(ctx context.Context, t qport.Task) error {
		var p SendMessageTaskPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %v: %w", t.Type, err, asynq.SkipRetry)
		}

		// give the store a reasonable time budget per task execution
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if _, err := uc.Execute(ctx, p.Input()); err != nil {
			if errors.Is(err, usecase.ErrPersistence) {
				return err
			}
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return nil
	}
}

// RegisterSendMessageTask binds the task handler to the provided server.
func RegisterSendMessageTask(srv qport.Server, uc *usecase.SendMessageUseCase) {
	srv.Register(SendMessageTaskType, HandleSendMessage(uc))
}
