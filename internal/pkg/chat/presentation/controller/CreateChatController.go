package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"pulsechat/internal/pkg/chat/application/usecase"
)

// CreateChatController handles the chat creation endpoint
// One controller per endpoint

type CreateChatController struct {
	UC *usecase.CreateChatUseCase
}

func NewCreateChatController(uc *usecase.CreateChatUseCase) *CreateChatController {
	return &CreateChatController{UC: uc}
}

// userId/contactUserId is the two-party shape older clients send.
type createChatRequest struct {
	ParticipantIDs []string `json:"participantIds"`
	UserID         string   `json:"userId"`
	ContactUserID  string   `json:"contactUserId"`
}

func (r createChatRequest) participants() []string {
	if len(r.ParticipantIDs) > 0 {
		return r.ParticipantIDs
	}
	if r.UserID != "" && r.ContactUserID != "" {
		return []string{r.UserID, r.ContactUserID}
	}
	return nil
}

func (h *CreateChatController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ids := req.participants()
		if len(ids) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "participantIds (or userId and contactUserId) are required"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		conv, err := h.UC.Execute(ctx, usecase.CreateChatInput{ParticipantIDs: ids})
		if err != nil {
			writeError(c, err)
			return
		}

		// Creation is idempotent, so an existing chat comes back with the same status.
		c.JSON(http.StatusOK, conversationJSON(*conv))
	}
}
