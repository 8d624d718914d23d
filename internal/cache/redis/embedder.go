package redis

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/metrics"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/logger"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/utils"
)

const embeddingCacheType = "embedding"

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CachedEmbedder serves repeated texts from redis. Cache failures are
// logged and fall through to the wrapped embedder.
type CachedEmbedder struct {
	next  Embedder
	cache *Client
	model string
	ttl   time.Duration
}

func NewCachedEmbedder(next Embedder, cache *Client, model string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{next: next, cache: cache, model: model, ttl: ttl}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	// Blank text goes straight through so the input check stays in one place.
	if strings.TrimSpace(text) == "" {
		return e.next.Embed(ctx, text)
	}

	key := utils.HashKey(e.model, text)

	vec, found, err := e.cache.GetEmbedding(ctx, key)
	if err != nil {
		logger.Warn("Embedding cache read failed", zap.Error(err))
	}
	if found {
		metrics.CacheHits.WithLabelValues(embeddingCacheType).Inc()
		return vec, nil
	}
	metrics.CacheMisses.WithLabelValues(embeddingCacheType).Inc()

	vec, err = e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.cache.SetEmbedding(ctx, key, vec, e.ttl); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}
	return vec, nil
}
