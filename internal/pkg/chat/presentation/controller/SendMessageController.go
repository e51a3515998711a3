package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	qport "pulsechat/internal/infrastructure/queue/port"
	"pulsechat/internal/pkg/chat/application/task"
	"pulsechat/internal/pkg/chat/application/usecase"
	"pulsechat/internal/pkg/chat/protocol"
)

// Async send settings.
const (
	SendMessageQueue       = "chat"
	SendMessageMaxRetry    = 20
	SendMessageRetention   = time.Hour
	SendMessageDedupWindow = 5 * time.Minute
)

// SendMessageController handles the send-message endpoint only (one controller per endpoint)
type SendMessageController struct {
	UC    *usecase.SendMessageUseCase
	Queue qport.Client // nil disables ?async=1
}

func NewSendMessageController(uc *usecase.SendMessageUseCase, q qport.Client) *SendMessageController {
	return &SendMessageController{UC: uc, Queue: q}
}

// Handle returns a gin handler that stores a message and fans it out, or
// with ?async=1 enqueues the same work for a queue worker.
func (h *SendMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		// The request body and the queued task share one JSON shape.
		var req task.SendMessageTaskPayload
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.ConversationID == "" || req.SenderID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId and senderId are required"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		if c.Query("async") == "1" {
			h.enqueue(ctx, c, req)
			return
		}

		msg, err := h.UC.Execute(ctx, req.Input())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, protocol.ToPayload(*msg))
	}
}

func (h *SendMessageController) enqueue(ctx context.Context, c *gin.Context, req task.SendMessageTaskPayload) {
	if h.Queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "background queue is not configured"})
		return
	}
	t, err := task.NewSendMessageTask(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	opt := qport.EnqueueOption{
		Queue:     SendMessageQueue,
		MaxRetry:  SendMessageMaxRetry,
		Retention: SendMessageRetention,
	}
	if req.ClientMessageID != "" {
		opt.UniqueTTL = SendMessageDedupWindow
	}
	id, err := h.Queue.Enqueue(ctx, t, opt)
	if errors.Is(err, qport.ErrDuplicateTask) {
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate clientMessageId", "status": "duplicate"})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"taskId": id, "status": "queued"})
}
