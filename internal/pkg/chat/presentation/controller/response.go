package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	chat "pulsechat/internal/pkg/chat/application/domain"
	"pulsechat/internal/pkg/chat/application/usecase"
)

// requestTimeout bounds every store round trip made on behalf of a request.
const requestTimeout = 3 * time.Second

// writeError maps use case and domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, usecase.ErrPersistence):
		status = http.StatusInternalServerError
	case errors.Is(err, usecase.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, usecase.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, chat.ErrNotParticipant):
		status = http.StatusForbidden
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func conversationJSON(conv chat.Conversation) gin.H {
	return gin.H{
		"id":           conv.ID,
		"participants": conv.Participants,
		"lastActivity": conv.LastActivity,
		"createdAt":    conv.CreatedAt,
	}
}

func participantJSON(p chat.Participant) gin.H {
	return gin.H{
		"id":          p.ID,
		"displayName": p.DisplayName,
		"isOnline":    p.IsOnline,
		"isPublic":    p.IsPublic,
		"lastSeen":    p.LastSeen,
	}
}

// queryInt returns the query value when it parses and is at least floor.
func queryInt(c *gin.Context, key string, def, floor int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < floor {
		return def
	}
	return n
}
