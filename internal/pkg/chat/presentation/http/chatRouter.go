package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	qport "pulsechat/internal/infrastructure/queue/port"
	"pulsechat/internal/pkg/chat/application/gateway"
	"pulsechat/internal/pkg/chat/application/retention"
	"pulsechat/internal/pkg/chat/application/usecase"
	"pulsechat/internal/pkg/chat/presentation/controller"
)

// Deps is everything the chat endpoints are built from. Queue may be nil.
type Deps struct {
	CreateChat    *usecase.CreateChatUseCase
	ListChats     *usecase.ListChatsUseCase
	GetMessages   *usecase.GetMessageUseCase
	SendMessage   *usecase.SendMessageUseCase
	DeleteMessage *usecase.DeleteMessageUseCase
	PublicUsers   *usecase.ListPublicUsersUseCase
	SetVisibility *usecase.SetVisibilityUseCase
	ListContacts  *usecase.ListContactsUseCase
	AddContact    *usecase.AddContactUseCase
	Gateway       *gateway.Gateway
	Retention     *retention.Scheduler
	Queue         qport.Client
	Log           *zap.Logger
}

// RegisterRoutes registers chat-related HTTP endpoints under the given router group
// It constructs per-endpoint controllers and binds them directly to routes.
func RegisterRoutes(g *gin.RouterGroup, d Deps) {
	createCtl := controller.NewCreateChatController(d.CreateChat)
	listCtl := controller.NewListChatsController(d.ListChats)
	sendMsgCtl := controller.NewSendMessageController(d.SendMessage, d.Queue)
	getMsgCtl := controller.NewGetMessageController(d.GetMessages)
	deleteMsgCtl := controller.NewDeleteMessageController(d.DeleteMessage)
	publicCtl := controller.NewListPublicUsersController(d.PublicUsers)
	visibilityCtl := controller.NewSetVisibilityController(d.SetVisibility)
	listContactsCtl := controller.NewListContactsController(d.ListContacts)
	addContactCtl := controller.NewAddContactController(d.AddContact)
	cleanupCtl := controller.NewAdminCleanupController(d.Retention)
	socketCtl := controller.NewChatSocketController(d.Gateway, d.Log)

	// POST /api/v1/chats -> create (or fetch) a chat
	g.POST("/chats", createCtl.Handle())

	// GET /api/v1/chats/:participantId -> chats a participant belongs to
	g.GET("/chats/:participantId", listCtl.Handle())

	// POST /api/v1/messages -> send a message; ?async=1 enqueues it
	g.POST("/messages", sendMsgCtl.Handle())

	// GET /api/v1/messages/:conversationId -> message history, oldest first
	g.GET("/messages/:conversationId", getMsgCtl.Handle())

	// DELETE /api/v1/messages/:messageId -> delete a single message
	g.DELETE("/messages/:messageId", deleteMsgCtl.Handle())

	// GET /api/v1/users/public -> participants listed in the public directory
	g.GET("/users/public", publicCtl.Handle())

	// PATCH /api/v1/users/:id/visibility -> opt in or out of the directory
	g.PATCH("/users/:id/visibility", visibilityCtl.Handle())

	// GET /api/v1/contacts/:userId -> a participant's contacts, oldest first
	g.GET("/contacts/:userId", listContactsCtl.Handle())

	// POST /api/v1/contacts -> add a contact
	g.POST("/contacts", addContactCtl.Handle())

	// POST /api/v1/admin/cleanup -> run both retention passes now
	g.POST("/admin/cleanup", cleanupCtl.Handle())

	// GET /api/v1/ws -> websocket endpoint for realtime chat
	g.GET("/ws", socketCtl.Handle())
}
