package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type Handlers struct {
	Chat      *ChatHandler
	Tickets   *TicketHandler
	Documents *DocumentHandler
	WebSocket *WebSocketHandler
	Health    *HealthHandler
	// Metrics is mounted at /metrics when set.
	Metrics fiber.Handler
}

// Register mounts the versioned API and the unversioned routes older
// clients still call.
func Register(app *fiber.App, h Handlers) {
	api := app.Group("/api/v1")

	api.Post("/tickets", h.Tickets.SubmitTickets)
	api.Get("/tickets", h.Tickets.FetchTickets)
	api.Get("/tickets/topics", h.Tickets.TopicCounts)

	api.Post("/chat", h.Chat.HandleChat)
	api.Get("/chat/history", h.Chat.GetChatHistory)

	if h.Documents != nil {
		api.Post("/documents", h.Documents.UploadDocument)
		api.Get("/documents", h.Documents.GetDocument)
	}

	api.Get("/health", h.Health.Health)
	api.Get("/ready", h.Health.Ready)

	app.Post("/input", h.Tickets.SubmitTickets)
	app.Get("/fetch", h.Tickets.FetchTickets)
	app.Post("/fetch", h.Tickets.FetchTickets)
	app.Post("/chat", h.Chat.HandleChat)
	app.Get("/health", h.Health.Health)

	if h.WebSocket != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/chat", websocket.New(h.WebSocket.HandleConnection))
	}

	if h.Metrics != nil {
		app.Get("/metrics", h.Metrics)
	}
}
