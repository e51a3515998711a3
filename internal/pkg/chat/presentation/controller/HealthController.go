package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ConnectionCounter reports how many sockets are bound to a participant.
type ConnectionCounter interface {
	Count() int
}

type HealthController struct {
	Connections ConnectionCounter
}

func NewHealthController(conns ConnectionCounter) *HealthController {
	return &HealthController{Connections: conns}
}

func (h *HealthController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "OK",
			"timestamp": time.Now().UTC(),
			"services": gin.H{
				"websocket": h.Connections.Count(),
			},
		})
	}
}
