package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"pulsechat/internal/pkg/chat/application/usecase"
)

func contactJSON(v usecase.ContactView) gin.H {
	out := gin.H{
		"userId":        v.Contact.OwnerID,
		"contactUserId": v.Contact.ContactID,
		"contactName":   v.Contact.ContactName,
		"addedAt":       v.Contact.AddedAt,
	}
	if v.User != nil {
		out["user"] = participantJSON(*v.User)
	}
	return out
}

// ListContactsController lists a participant's contacts.
type ListContactsController struct {
	UC *usecase.ListContactsUseCase
}

func NewListContactsController(uc *usecase.ListContactsUseCase) *ListContactsController {
	return &ListContactsController{UC: uc}
}

func (h *ListContactsController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		views, err := h.UC.Execute(ctx, c.Param("userId"))
		if err != nil {
			writeError(c, err)
			return
		}

		out := make([]gin.H, 0, len(views))
		for _, v := range views {
			out = append(out, contactJSON(v))
		}
		c.JSON(http.StatusOK, gin.H{"contacts": out, "count": len(out)})
	}
}

// AddContactController adds an existing participant to an address book.
type AddContactController struct {
	UC *usecase.AddContactUseCase
}

func NewAddContactController(uc *usecase.AddContactUseCase) *AddContactController {
	return &AddContactController{UC: uc}
}

type addContactRequest struct {
	UserID        string `json:"userId" binding:"required"`
	ContactUserID string `json:"contactUserId" binding:"required"`
	ContactName   string `json:"contactName"`
}

func (h *AddContactController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req addContactRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		v, err := h.UC.Execute(ctx, usecase.AddContactInput{
			OwnerID:     req.UserID,
			ContactID:   req.ContactUserID,
			ContactName: req.ContactName,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, contactJSON(*v))
	}
}
