package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"pulsechat/internal/pkg/chat/application/usecase"
	"pulsechat/internal/pkg/chat/protocol"
)

// ListChatsController lists the conversations a participant belongs to.
type ListChatsController struct {
	UC *usecase.ListChatsUseCase
}

func NewListChatsController(uc *usecase.ListChatsUseCase) *ListChatsController {
	return &ListChatsController{UC: uc}
}

func (h *ListChatsController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		participantID := c.Param("participantId")
		if participantID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "participantId is required"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		summaries, err := h.UC.Execute(ctx, participantID)
		if err != nil {
			writeError(c, err)
			return
		}

		out := make([]gin.H, 0, len(summaries))
		for _, s := range summaries {
			others := make([]gin.H, 0, len(s.Others))
			for _, p := range s.Others {
				others = append(others, participantJSON(p))
			}
			item := conversationJSON(s.Conversation)
			item["others"] = others
			if s.LastMessage != nil {
				item["lastMessage"] = protocol.ToPayload(*s.LastMessage)
			}
			out = append(out, item)
		}

		c.JSON(http.StatusOK, gin.H{"chats": out, "count": len(out)})
	}
}
