package router

import (
	"github.com/labstack/echo/v4"

	"lotedd/internal/adapter/api/handler"
	"lotedd/internal/adapter/api/middleware"
)

// SetupChatRouter sets up all conversation routes (excluding WebSocket)
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, authMiddleware *middleware.AuthMiddleware, adminMiddleware *middleware.AdminMiddleware) {
	conversationGroup := e.Group("/v1/conversations")
	conversationGroup.Use(authMiddleware.Authenticate)

	// Conversation management
	conversationGroup.POST("", chatHandler.ResolveConversation)      // POST /v1/conversations - Find or create conversation
	conversationGroup.GET("", chatHandler.GetConversations)          // GET /v1/conversations - List caller's conversations
	conversationGroup.GET("/unread-count", chatHandler.GetUnreadTotal) // GET /v1/conversations/unread-count - Total unread badge
	conversationGroup.GET("/:id", chatHandler.GetConversationByID)   // GET /v1/conversations/:id - Get specific conversation
	conversationGroup.PUT("/:id/read", chatHandler.MarkRead)         // PUT /v1/conversations/:id/read - Mark conversation read

	// Message management
	conversationGroup.POST("/:id/messages", chatHandler.SendMessage) // POST /v1/conversations/:id/messages - Send message
	conversationGroup.GET("/:id/messages", chatHandler.GetMessages)  // GET /v1/conversations/:id/messages - Page messages

	// Moderation
	adminGroup := e.Group("/v1/admin/conversations")
	adminGroup.Use(authMiddleware.Authenticate)
	adminGroup.Use(adminMiddleware.AdminOnly)
	adminGroup.DELETE("/:id/messages/:messageId", chatHandler.RemoveMessage)
}
