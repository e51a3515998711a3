package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"pulsechat/internal/pkg/chat/application/usecase"
)

// ListPublicUsersController serves the public participant directory.
type ListPublicUsersController struct {
	UC *usecase.ListPublicUsersUseCase
}

func NewListPublicUsersController(uc *usecase.ListPublicUsersUseCase) *ListPublicUsersController {
	return &ListPublicUsersController{UC: uc}
}

func (h *ListPublicUsersController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		users, err := h.UC.Execute(ctx)
		if err != nil {
			writeError(c, err)
			return
		}

		out := make([]gin.H, 0, len(users))
		for _, u := range users {
			out = append(out, participantJSON(u))
		}
		c.JSON(http.StatusOK, gin.H{"users": out, "count": len(out)})
	}
}

// SetVisibilityController toggles whether a participant is listed publicly.
type SetVisibilityController struct {
	UC *usecase.SetVisibilityUseCase
}

func NewSetVisibilityController(uc *usecase.SetVisibilityUseCase) *SetVisibilityController {
	return &SetVisibilityController{UC: uc}
}

type setVisibilityRequest struct {
	IsPublic *bool `json:"isPublic"`
}

func (h *SetVisibilityController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setVisibilityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.IsPublic == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "isPublic is required"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		p, err := h.UC.Execute(ctx, usecase.SetVisibilityInput{
			ParticipantID: c.Param("id"),
			IsPublic:      *req.IsPublic,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, participantJSON(*p))
	}
}
