package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/middleware/validation"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/query"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/storage/models"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/logger"
)

type ChatEngine interface {
	Run(ctx context.Context, req domain.ChatRequest) (*query.Exchange, error)
}

type ChatHistory interface {
	GetChatHistory(ctx context.Context, userID string, limit int) ([]models.ChatExchange, error)
}

type ChatHandler struct {
	engine  ChatEngine
	history ChatHistory
}

// NewChatHandler builds the chat endpoints. history may be nil when the
// audit store is disabled.
func NewChatHandler(engine ChatEngine, history ChatHistory) *ChatHandler {
	return &ChatHandler{
		engine:  engine,
		history: history,
	}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var body struct {
		Text   string `json:"text"`
		UserID string `json:"user_id"`
	}

	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			logger.Error("Failed to parse request body", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	req := domain.ChatRequest{
		UserID: strings.TrimSpace(body.UserID),
		Text:   validation.Sanitize(body.Text),
	}

	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "text is required",
		})
	}

	ex, err := h.engine.Run(c.UserContext(), req)
	if err != nil {
		return chatError(c, req.UserID, err)
	}

	return c.JSON(ex.Response)
}

func chatError(c *fiber.Ctx, userID string, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, domain.ErrGenerationFailure):
		logger.Error("Chat generation failed", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "Failed to generate a response",
			"user_id": userID,
		})
	default:
		logger.Error("Failed to process chat message", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to process chat message",
			"user_id": userID,
		})
	}
}

func (h *ChatHandler) GetChatHistory(c *fiber.Ctx) error {
	if h.history == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Chat history is disabled",
		})
	}

	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	history, err := h.history.GetChatHistory(c.UserContext(), userID, limit)
	if err != nil {
		logger.Error("Failed to load chat history", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load chat history",
		})
	}

	return c.JSON(fiber.Map{
		"user_id": userID,
		"history": history,
	})
}
