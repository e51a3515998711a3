package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pulsechat/internal/pkg/chat/presentation/controller"
	httpHandler "pulsechat/internal/pkg/chat/presentation/http"
)

// RegisterRoutes mounts health and metrics at the root and all version 1 API routes under /api/v1
func RegisterRoutes(r *gin.Engine, deps httpHandler.Deps, conns controller.ConnectionCounter, metricsHandler http.Handler) {
	health := controller.NewHealthController(conns).Handle()
	r.GET("/health", health)
	r.GET("/api/health", health)
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	v1 := r.Group("/api/v1")
	// Pass the use cases and realtime gateway down to the HTTP layer
	httpHandler.RegisterRoutes(v1, deps)
}
