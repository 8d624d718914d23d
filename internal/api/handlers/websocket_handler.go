package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/middleware/validation"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/logger"
)

const wsExchangeTimeout = 2 * time.Minute

type WebSocketHandler struct {
	engine ChatEngine
}

func NewWebSocketHandler(engine ChatEngine) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
	}
}

type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	UserID  string `json:"user_id"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsMessage

		err := c.ReadJSON(&msg)
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		if msg.Type != "query" {
			continue
		}

		if err := h.streamResponse(c, msg); err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			break
		}
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, msg wsMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), wsExchangeTimeout)
	defer cancel()

	req := domain.ChatRequest{
		UserID: strings.TrimSpace(msg.UserID),
		Text:   validation.Sanitize(msg.Content),
	}

	if err := h.send(c, "status", "Processing query..."); err != nil {
		return err
	}

	ex, err := h.engine.Run(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			return h.sendError(c, "text is required")
		case errors.Is(err, domain.ErrGenerationFailure):
			return h.sendError(c, "Failed to generate a response")
		default:
			return h.sendError(c, "Failed to process query")
		}
	}

	words := splitIntoWords(ex.Response.LLMResponse)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}
		if err := h.send(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]any{
		"type":         "complete",
		"message_id":   ex.ID,
		"user_id":      ex.Response.UserID,
		"LLM_Response": ex.Response.LLMResponse,
		"Cited_URLs":   ex.Response.CitedURLs,
		"stages":       ex.Stages,
		"latency_ms":   ex.Latency.Milliseconds(),
	})
}

func (h *WebSocketHandler) send(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]any{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) error {
	return c.WriteJSON(map[string]any{
		"type":  "error",
		"error": errorMsg,
	})
}

// splitIntoWords splits on spaces and keeps line breaks as their own
// elements.
func splitIntoWords(text string) []string {
	words := []string{}
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch r {
		case ' ':
			flush()
		case '\n':
			flush()
			words = append(words, "\n")
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return words
}
