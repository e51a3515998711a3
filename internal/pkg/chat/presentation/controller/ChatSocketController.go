package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pulsechat/internal/infrastructure/realtime"
	"pulsechat/internal/pkg/chat/application/gateway"
	"pulsechat/internal/pkg/chat/protocol"
)

// ChatSocketController handles the websocket endpoint for realtime chat traffic.
type ChatSocketController struct {
	gateway         *gateway.Gateway
	log             *zap.Logger
	inflightTimeout time.Duration
}

func NewChatSocketController(gw *gateway.Gateway, log *zap.Logger) *ChatSocketController {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatSocketController{
		gateway:         gw,
		log:             log.Named("ws"),
		inflightTimeout: 5 * time.Second,
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; participants are not authenticated beyond their claimed id.
		return true
	},
}

// Handle upgrades the request and pumps frames into the gateway until the socket closes.
// A participantId query parameter authenticates the socket before the first frame.
func (h *ChatSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote an HTTP error response.
			h.log.Debug("upgrade_failed", zap.Error(err))
			return
		}

		conn := realtime.NewConnection(ws, h.log)
		conn.Start()
		release, ok := h.gateway.Track(conn)
		if !ok {
			conn.Close(websocket.CloseGoingAway, "server shutdown")
			return
		}
		// Runs last, once nothing below can touch the store.
		defer release()

		// The request context ends with the handler; cleanup must still reach the store.
		base := context.WithoutCancel(c.Request.Context())
		defer func() {
			ctx, cancel := context.WithTimeout(base, h.inflightTimeout)
			defer cancel()
			h.gateway.Disconnect(ctx, conn)
			conn.Close(websocket.CloseNormalClosure, "")
		}()

		if pid := c.Query("participantId"); pid != "" {
			if data, err := protocol.Encode(protocol.Authenticate{ParticipantID: pid}); err == nil {
				h.handle(base, conn, data)
			}
		}

		err = conn.ReadLoop(func(data []byte) {
			h.handle(base, conn, data)
		})
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			h.log.Info("socket_read_failed", zap.String("connection_id", conn.ID()), zap.Error(err))
		}
	}
}

func (h *ChatSocketController) handle(base context.Context, conn *realtime.Connection, data []byte) {
	ctx, cancel := context.WithTimeout(base, h.inflightTimeout)
	defer cancel()
	h.gateway.Handle(ctx, conn, data)
}
