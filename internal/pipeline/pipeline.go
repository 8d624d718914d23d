// Package pipeline classifies incoming support tickets and archives them in
// the vector store.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/classify"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/metrics"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/vector"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/logger"
)

type Classifier interface {
	Classify(ctx context.Context, kind classify.Kind, text string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GraphRecorder receives every archived ticket. Failures are logged only.
type GraphRecorder interface {
	RecordTicket(ctx context.Context, rec domain.TicketRecord) error
}

type Config struct {
	Collection string
	VectorDim  int
	// EmbedContent stores a content embedding instead of the constant
	// placeholder vector.
	EmbedContent bool
	FetchLimit   int
	MaxFetch     int
}

type Pipeline struct {
	classifier Classifier
	store      vector.Store
	embedder   Embedder
	graph      GraphRecorder
	cfg        Config
	now        func() time.Time
}

type Option func(*Pipeline)

func WithEmbedder(e Embedder) Option {
	return func(p *Pipeline) { p.embedder = e }
}

func WithGraph(g GraphRecorder) Option {
	return func(p *Pipeline) { p.graph = g }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(classifier Classifier, store vector.Store, cfg Config, opts ...Option) *Pipeline {
	if cfg.VectorDim <= 0 {
		cfg.VectorDim = 128
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 30
	}
	if cfg.MaxFetch < cfg.FetchLimit {
		cfg.MaxFetch = cfg.FetchLimit
	}

	p := &Pipeline{
		classifier: classifier,
		store:      store,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	if !cfg.EmbedContent || p.embedder == nil {
		p.cfg.EmbedContent = false
		logger.Warn("Ticket archive uses a constant placeholder vector; similarity search over tickets is not meaningful",
			zap.Int("vector_dim", cfg.VectorDim),
		)
	}

	return p
}

// Process classifies and archives each ticket in order. One result is
// returned per input, at the same index; a failing item never stops the
// batch.
func (p *Pipeline) Process(ctx context.Context, tickets []domain.RawTicket) []domain.ItemResult {
	results := make([]domain.ItemResult, 0, len(tickets))

	for _, raw := range tickets {
		id := deref(raw.ID, domain.MissingTicketID)

		if err := p.processOne(ctx, id, deref(raw.Subject, ""), deref(raw.Body, "")); err != nil {
			logger.Error("Ticket processing failed",
				zap.String("ticket_id", id),
				zap.Error(err),
			)
			metrics.TicketsProcessed.WithLabelValues(domain.StatusError).Inc()
			results = append(results, domain.ItemResult{ID: id, Status: domain.StatusError, Error: err.Error()})
			continue
		}

		metrics.TicketsProcessed.WithLabelValues(domain.StatusSuccess).Inc()
		results = append(results, domain.ItemResult{ID: id, Status: domain.StatusSuccess})
	}

	return results
}

func (p *Pipeline) processOne(ctx context.Context, id, subject, body string) error {
	combined := strings.TrimSpace(subject + " " + body)

	priority, err := p.classifier.Classify(ctx, classify.KindPriority, body)
	if err != nil {
		return err
	}
	keywords, err := p.classifier.Classify(ctx, classify.KindKeyword, subject)
	if err != nil {
		return err
	}
	topic, err := p.classifier.Classify(ctx, classify.KindTopic, combined)
	if err != nil {
		return err
	}
	sentiment, err := p.classifier.Classify(ctx, classify.KindSentiment, combined)
	if err != nil {
		return err
	}

	vec, err := p.ticketVector(ctx, combined)
	if err != nil {
		return err
	}

	rec := domain.TicketRecord{
		ID:        id,
		Subject:   subject,
		Body:      body,
		Priority:  priority,
		Topics:    topic,
		Keywords:  keywords,
		Sentiment: sentiment,
		CreatedAt: p.now().UTC(),
		Vector:    vec,
	}

	if err := p.store.Upsert(ctx, p.cfg.Collection, vector.Point{
		ID:      vector.NewPointID(),
		Vector:  rec.Vector,
		Payload: rec.Payload(),
	}); err != nil {
		return err
	}

	logger.Info("Ticket archived",
		zap.String("ticket_id", id),
		zap.String("priority", priority),
		zap.String("topic", topic),
		zap.String("sentiment", sentiment),
	)

	if p.graph != nil {
		if err := p.graph.RecordTicket(ctx, rec); err != nil {
			logger.Warn("Ticket graph update failed", zap.String("ticket_id", id), zap.Error(err))
		}
	}

	return nil
}

func (p *Pipeline) ticketVector(ctx context.Context, text string) ([]float32, error) {
	if p.cfg.EmbedContent && strings.TrimSpace(text) != "" {
		vec, err := p.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed ticket: %w", err)
		}
		return vec, nil
	}
	return PlaceholderVector(p.cfg.VectorDim), nil
}

// FetchTickets returns one page of archived ticket payloads. A limit of
// zero or less uses the configured default; larger limits are capped.
func (p *Pipeline) FetchTickets(ctx context.Context, limit int) ([]vector.Payload, error) {
	if limit <= 0 {
		limit = p.cfg.FetchLimit
	}
	if limit > p.cfg.MaxFetch {
		limit = p.cfg.MaxFetch
	}

	page, err := p.store.Scroll(ctx, p.cfg.Collection, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch tickets: %w", err)
	}
	return page, nil
}

// PlaceholderVector is the constant vector stored with tickets when
// content embedding is disabled.
func PlaceholderVector(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = 0.1
	}
	return v
}

func deref(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
