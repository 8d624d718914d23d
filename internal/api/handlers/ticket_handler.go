package handlers

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/kg/neo4j"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/vector"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/logger"
)

type TicketPipeline interface {
	Process(ctx context.Context, tickets []domain.RawTicket) []domain.ItemResult
	FetchTickets(ctx context.Context, limit int) ([]vector.Payload, error)
}

type TopicCounter interface {
	TopicCounts(ctx context.Context) ([]neo4j.TopicCount, error)
}

type TicketHandler struct {
	pipeline TicketPipeline
	topics   TopicCounter
}

// NewTicketHandler builds the ticket endpoints. topics may be nil when the
// ticket graph is disabled.
func NewTicketHandler(pipeline TicketPipeline, topics TopicCounter) *TicketHandler {
	return &TicketHandler{
		pipeline: pipeline,
		topics:   topics,
	}
}

// SubmitTickets classifies and archives a batch. The response lists one
// result per input item; it is 200 when every item succeeded and 207
// otherwise.
func (h *TicketHandler) SubmitTickets(c *fiber.Ctx) error {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 || body[0] != '[' {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Expected a list of tickets",
		})
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Expected a list of tickets",
		})
	}

	results := make([]domain.ItemResult, len(items))
	valid := make([]domain.RawTicket, 0, len(items))
	validIdx := make([]int, 0, len(items))

	for i, raw := range items {
		var t domain.RawTicket
		if err := json.Unmarshal(raw, &t); err != nil {
			results[i] = domain.ItemResult{
				ID:     domain.MissingTicketID,
				Status: domain.StatusError,
				Error:  err.Error(),
			}
			continue
		}
		valid = append(valid, t)
		validIdx = append(validIdx, i)
	}

	for j, r := range h.pipeline.Process(c.UserContext(), valid) {
		results[validIdx[j]] = r
	}

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}

	logger.Info("Ticket batch processed",
		zap.Int("tickets", len(results)),
		zap.Int("failed", failed),
	)

	status := fiber.StatusOK
	if failed > 0 {
		status = fiber.StatusMultiStatus
	}
	return c.Status(status).JSON(results)
}

// FetchTickets returns one page of archived tickets. The limit comes from
// the query string or, for POST, an optional {"limit": n} body.
func (h *TicketHandler) FetchTickets(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)

	if c.Method() == fiber.MethodPost && len(bytes.TrimSpace(c.Body())) > 0 {
		var body struct {
			Limit int `json:"limit"`
		}
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		if body.Limit > 0 {
			limit = body.Limit
		}
	}

	tickets, err := h.pipeline.FetchTickets(c.UserContext(), limit)
	if err != nil {
		logger.Error("Failed to fetch tickets", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch tickets",
		})
	}

	return c.JSON(tickets)
}

func (h *TicketHandler) TopicCounts(c *fiber.Ctx) error {
	if h.topics == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Ticket graph is disabled",
		})
	}

	counts, err := h.topics.TopicCounts(c.UserContext())
	if err != nil {
		logger.Error("Failed to count ticket topics", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to count ticket topics",
		})
	}

	return c.JSON(fiber.Map{"topics": counts})
}
