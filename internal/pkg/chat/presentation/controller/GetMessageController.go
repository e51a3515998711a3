package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"pulsechat/internal/pkg/chat/application/usecase"
	"pulsechat/internal/pkg/chat/protocol"
)

// GetMessageController handles fetching messages by conversation ID (one controller per endpoint)
type GetMessageController struct {
	UC *usecase.GetMessageUseCase
}

func NewGetMessageController(uc *usecase.GetMessageUseCase) *GetMessageController {
	return &GetMessageController{UC: uc}
}

func (h *GetMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")
		if conversationID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversationId is required"})
			return
		}

		limit := queryInt(c, "limit", usecase.DefaultMessagePage, 1)
		offset := queryInt(c, "offset", 0, 0)

		in := usecase.GetMessageInput{ConversationID: conversationID, Limit: limit, Offset: offset}
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		msgs, err := h.UC.Execute(ctx, in)
		if err != nil {
			writeError(c, err)
			return
		}

		out := make([]protocol.MessagePayload, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, protocol.ToPayload(m))
		}

		c.JSON(http.StatusOK, gin.H{
			"messages": out,
			"limit":    limit,
			"offset":   offset,
			"count":    len(out),
		})
	}
}
