package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pulsechat/internal/pkg/chat/application/retention"
)

// cleanupTimeout is generous: a manual pass walks every expired message.
const cleanupTimeout = 2 * time.Minute

// AdminCleanupController triggers an out-of-schedule retention pass.
type AdminCleanupController struct {
	Scheduler *retention.Scheduler
}

func NewAdminCleanupController(s *retention.Scheduler) *AdminCleanupController {
	return &AdminCleanupController{Scheduler: s}
}

func (h *AdminCleanupController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cleanupTimeout)
		defer cancel()

		res, err := h.Scheduler.RunManual(ctx)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
