// Package classify labels ticket text with priority, topic, sentiment and
// keywords using externally hosted models.
package classify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/metrics"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/logger"
)

type Classifier struct {
	registry *Registry
}

func New(registry *Registry) *Classifier {
	return &Classifier{registry: registry}
}

// NewHuggingFace wires a Classifier to the inference API.
func NewHuggingFace(client *InferenceClient, cfg Config) *Classifier {
	logger.Info("Classifier configured",
		zap.String("priority_model", cfg.PriorityModel),
		zap.String("topic_model", cfg.TopicModel),
		zap.String("sentiment_model", cfg.SentimentModel),
		zap.String("sentiment_mode", cfg.SentimentMode),
		zap.String("keyword_backend", cfg.KeywordBackend),
	)
	return New(NewRegistry(NewLoader(client, cfg)))
}

func (c *Classifier) Registry() *Registry { return c.registry }

// Classify returns the label for text under kind. Model failures are
// wrapped as ErrClassificationFailure and returned to the caller.
func (c *Classifier) Classify(ctx context.Context, kind Kind, text string) (string, error) {
	model, err := c.registry.Model(kind)
	if err != nil {
		metrics.ClassificationErrors.WithLabelValues(string(kind)).Inc()
		return "", fmt.Errorf("%w: %s: %v", domain.ErrClassificationFailure, kind, err)
	}

	start := time.Now()
	label, err := model.Predict(ctx, text)
	metrics.ClassificationDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ClassificationErrors.WithLabelValues(string(kind)).Inc()
		return "", fmt.Errorf("%w: %s: %v", domain.ErrClassificationFailure, kind, err)
	}

	logger.Debug("Text classified",
		zap.String("kind", string(kind)),
		zap.String("label", label),
		zap.Duration("took", time.Since(start)),
	)
	return label, nil
}

func (c *Classifier) Priority(ctx context.Context, text string) (string, error) {
	return c.Classify(ctx, KindPriority, text)
}

func (c *Classifier) Topic(ctx context.Context, text string) (string, error) {
	return c.Classify(ctx, KindTopic, text)
}

func (c *Classifier) Sentiment(ctx context.Context, text string) (string, error) {
	return c.Classify(ctx, KindSentiment, text)
}

func (c *Classifier) Keywords(ctx context.Context, text string) (string, error) {
	return c.Classify(ctx, KindKeyword, text)
}
