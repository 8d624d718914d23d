package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/ingestion"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/storage/models"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/logger"
)

type DocumentProcessor interface {
	Fetch(ctx context.Context, url string) (string, error)
	ProcessDocument(ctx context.Context, url, htmlContent string) (*ingestion.Result, error)
}

type DocumentLookup interface {
	GetDocumentByURL(ctx context.Context, url string) (*models.Document, error)
}

type DocumentHandler struct {
	processor DocumentProcessor
	docs      DocumentLookup
}

// NewDocumentHandler builds the ingestion endpoints. docs may be nil when
// no document log is configured.
func NewDocumentHandler(processor DocumentProcessor, docs DocumentLookup) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		docs:      docs,
	}
}

// UploadDocument ingests a page. When no HTML is supplied the page is
// downloaded from its url.
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	var req struct {
		URL         string `json:"url"`
		HTMLContent string `json:"html_content"`
	}

	if err := json.Unmarshal(c.Body(), &req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if strings.TrimSpace(req.URL) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "URL is required",
		})
	}

	html := req.HTMLContent
	if strings.TrimSpace(html) == "" {
		var err error
		html, err = h.processor.Fetch(c.UserContext(), req.URL)
		if err != nil {
			logger.Error("Failed to fetch document", zap.String("url", req.URL), zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Failed to fetch document",
			})
		}
	}

	result, err := h.processor.ProcessDocument(c.UserContext(), req.URL, html)
	if err != nil {
		if ingestion.IsInputError(err) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		logger.Error("Failed to process document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process document",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Document processed successfully",
		"document": result,
	})
}

// GetDocument returns the ingestion record for one url.
func (h *DocumentHandler) GetDocument(c *fiber.Ctx) error {
	if h.docs == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Document log is not enabled",
		})
	}

	url := strings.TrimSpace(c.Query("url"))
	if url == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url is required",
		})
	}

	doc, err := h.docs.GetDocumentByURL(c.UserContext(), url)
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found",
		})
	}
	if err != nil {
		logger.Error("Failed to get document", zap.String("url", url), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get document",
		})
	}

	return c.JSON(doc)
}
