package validation

import (
	"encoding/json"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	MaxQueryLength      int
	MaxDocumentSize     int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects malformed chat and document requests before they
// reach a handler. Ticket batches are validated by their handler, which
// owns the per-item error reporting.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = 4000
	}
	if cfg.MaxDocumentSize <= 0 {
		cfg.MaxDocumentSize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		path := strings.TrimRight(c.Path(), "/")

		switch {
		case path == "/chat" || strings.HasSuffix(path, "/api/v1/chat"):
			return validateChat(c, cfg)
		case strings.HasSuffix(path, "/api/v1/documents"):
			return validateDocument(c, cfg)
		}

		return c.Next()
	}
}

func validateChat(c *fiber.Ctx, cfg Config) error {
	var req map[string]any
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid JSON format",
		})
	}

	if v, present := req["text"]; present && v != nil {
		text, ok := v.(string)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "text must be a string",
			})
		}
		if utf8.RuneCountInString(text) > cfg.MaxQueryLength {
			cfg.Logger.Warn("Chat message too long",
				zap.String("ip", c.IP()),
				zap.Int("length", utf8.RuneCountInString(text)),
			)
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "text exceeds maximum length",
			})
		}
	}

	if v, present := req["user_id"]; present && v != nil {
		if _, ok := v.(string); !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "user_id must be a string",
			})
		}
	}

	return c.Next()
}

func validateDocument(c *fiber.Ctx, cfg Config) error {
	if len(c.Body()) > cfg.MaxDocumentSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "Document content exceeds maximum size",
		})
	}

	var req map[string]any
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid JSON format",
		})
	}

	urlStr, ok := req["url"].(string)
	if !ok || urlStr == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "URL is required and must be a string",
		})
	}

	if !IsValidURL(urlStr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid URL format",
		})
	}

	return c.Next()
}

// Sanitize trims whitespace and strips NUL bytes.
func Sanitize(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}

func IsValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	return u.Host != ""
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}
