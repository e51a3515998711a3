package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"pulsechat/internal/pkg/chat/application/usecase"
)

type DeleteMessageController struct {
	UC *usecase.DeleteMessageUseCase
}

func NewDeleteMessageController(uc *usecase.DeleteMessageUseCase) *DeleteMessageController {
	return &DeleteMessageController{UC: uc}
}

func (h *DeleteMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		in := usecase.DeleteMessageInput{
			MessageID:      c.Param("messageId"),
			ConversationID: c.Query("conversationId"),
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		if err := h.UC.Execute(ctx, in); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true, "messageId": in.MessageID})
	}
}
