package routes

import (
	"github.com/fitcoach/fitness_coach/handlers"
	"github.com/fitcoach/fitness_coach/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func ChatRoutes(app *fiber.App, chat *handlers.ChatHandler, ws *handlers.WSHandler) {
	api := app.Group("/api/v1/chat")

	conversations := api.Group("/conversations", middleware.Protected())
	conversations.Get("", chat.GetConversations)
	conversations.Get("/:otherUserId", chat.GetOrCreateConversation)
	conversations.Put("/:conversationId/read", chat.MarkConversationRead)

	messages := api.Group("/messages", middleware.Protected())
	messages.Get("/:otherUserId", chat.GetMessages)
	messages.Post("", chat.SendMessage)
	messages.Put("/:messageId", chat.EditMessage)
	messages.Delete("/:messageId", chat.DeleteMessage)
	messages.Post("/:messageId/reactions", chat.AddReaction)

	api.Get("/search", middleware.Protected(), chat.SearchMessages)

	api.Use("/ws", ws.Upgrade)
	api.Get("/ws", websocket.New(ws.Serve))
}
