// Package query answers chat messages from retrieved documentation and the
// user's earlier exchanges.
package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/llm"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/metrics"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/storage/models"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/vector"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/logger"
)

const (
	stageValidate  = "validate"
	stageDocuments = "retrieve_documents"
	stageMemory    = "retrieve_memory"
	stagePrompt    = "prompt"
	stageGenerate  = "generate"
	stageParse     = "parse"
	stagePersist   = "persist"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// AuditLog keeps a relational record of every answered exchange.
type AuditLog interface {
	InsertChatExchange(ctx context.Context, ex *models.ChatExchange) error
}

type Config struct {
	DocumentsCollection string
	HistoryCollection   string
	TopK                int
	HistoryTopK         int
	MaxTokens           int
}

type Engine struct {
	embedder  Embedder
	store     vector.Store
	completer Completer
	audit     AuditLog
	cfg       Config
	now       func() time.Time
}

type Option func(*Engine)

func WithAuditLog(a AuditLog) Option {
	return func(e *Engine) { e.audit = a }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Exchange is the full record of one answered chat message.
type Exchange struct {
	ID        string
	Response  domain.ChatResponse
	Documents []domain.Document
	History   []string
	Stages    []Outcome
	Latency   time.Duration
}

type retrieval struct {
	vector []float32
	docs   []domain.Document
}

func NewEngine(embedder Embedder, store vector.Store, completer Completer, cfg Config, opts ...Option) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.HistoryTopK <= 0 {
		cfg.HistoryTopK = 3
	}

	e := &Engine{
		embedder:  embedder,
		store:     store,
		completer: completer,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Chat answers one message. Only invalid input and generation failures are
// returned as errors; retrieval and persistence problems degrade silently.
func (e *Engine) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	ex, err := e.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return &ex.Response, nil
}

// Run executes the chat stages in order and reports each stage's outcome.
func (e *Engine) Run(ctx context.Context, req domain.ChatRequest) (*Exchange, error) {
	start := time.Now()
	ex := &Exchange{ID: uuid.NewString()}

	v := e.validate(req.Text)
	ex.Stages = append(ex.Stages, v.Outcome())
	if v.Status == StageFailed {
		e.finish("invalid", start)
		return ex, v.Err
	}
	req.Text = v.Value

	logger.Info("Processing chat message",
		zap.String("exchange_id", ex.ID),
		zap.String("user_id", req.UserID),
	)

	docs := e.retrieveDocuments(ctx, req.Text)
	ex.Stages = append(ex.Stages, docs.Outcome())
	ex.Documents = docs.Value.docs
	metrics.RetrievedDocuments.Observe(float64(len(ex.Documents)))

	queryVec := docs.Value.vector
	memory := e.retrieveMemory(ctx, req.UserID, req.Text, &queryVec)
	ex.Stages = append(ex.Stages, memory.Outcome())
	ex.History = memory.Value

	prompt := stageOK(stagePrompt, BuildPrompt(req.Text, ex.Documents, ex.History))
	ex.Stages = append(ex.Stages, prompt.Outcome())

	gen := e.generate(ctx, prompt.Value)
	ex.Stages = append(ex.Stages, gen.Outcome())
	if gen.Status == StageFailed {
		e.finish("failed", start)
		return ex, gen.Err
	}

	parsed := e.parse(gen.Value)
	ex.Stages = append(ex.Stages, parsed.Outcome())

	ex.Response = domain.ChatResponse{
		UserID:      req.UserID,
		LLMResponse: parsed.Value.LLMResponse,
		CitedURLs:   parsed.Value.CitedURLs,
	}

	persisted := e.persist(ctx, req, ex.Response, &queryVec)
	ex.Stages = append(ex.Stages, persisted.Outcome())

	ex.Latency = time.Since(start)
	e.recordAudit(ctx, ex, req)
	e.finish("ok", start)

	logger.Info("Chat message answered",
		zap.String("exchange_id", ex.ID),
		zap.Int("documents", len(ex.Documents)),
		zap.Int("history", len(ex.History)),
		zap.Int("cited_urls", len(ex.Response.CitedURLs)),
		zap.Duration("latency", ex.Latency),
	)

	return ex, nil
}

func (e *Engine) validate(text string) StageResult[string] {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return stageFailed[string](stageValidate,
			domain.NewStageError(stageValidate, domain.ErrInvalidInput, errors.New("text is required")))
	}
	return stageOK(stageValidate, trimmed)
}

func (e *Engine) retrieveDocuments(ctx context.Context, text string) StageResult[retrieval] {
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return degrade(stageDocuments, retrieval{docs: []domain.Document{}}, err)
	}

	hits, err := e.store.Search(ctx, e.cfg.DocumentsCollection, vec, e.cfg.TopK, nil)
	if err != nil {
		return degrade(stageDocuments, retrieval{vector: vec, docs: []domain.Document{}}, err)
	}

	docs := make([]domain.Document, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, domain.Document{
			ID:       h.ID,
			Text:     h.Payload.String(domain.KeyText),
			URL:      h.Payload.String(domain.KeyURL),
			URLID:    h.Payload.String(domain.KeyURLID),
			ParentID: h.Payload.String(domain.KeyParentID),
			Score:    h.Score,
		})
	}
	return stageOK(stageDocuments, retrieval{vector: vec, docs: docs})
}

func (e *Engine) retrieveMemory(ctx context.Context, userID, text string, cached *[]float32) StageResult[[]string] {
	vec, err := e.queryVector(ctx, text, cached)
	if err != nil {
		return degrade(stageMemory, []string{}, err)
	}

	hits, err := e.store.Search(ctx, e.cfg.HistoryCollection, vec, e.cfg.HistoryTopK,
		vector.Filter{domain.KeyUserID: userID})
	if err != nil {
		return degrade(stageMemory, []string{}, err)
	}

	history := make([]string, 0, len(hits))
	for _, h := range hits {
		history = append(history, h.Payload.String(domain.KeyLLMResponse))
	}
	return stageOK(stageMemory, history)
}

func (e *Engine) generate(ctx context.Context, prompt string) StageResult[string] {
	resp, err := e.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: prompt,
		MaxTokens:    e.cfg.MaxTokens,
	})
	if err != nil {
		logger.Error("Answer generation failed", zap.Error(err))
		return stageFailed[string](stageGenerate, domain.NewStageError(stageGenerate, domain.ErrGenerationFailure, err))
	}
	return stageOK(stageGenerate, resp.Content)
}

func (e *Engine) parse(raw string) StageResult[Answer] {
	ans, err := decodeAnswer(raw)
	if err != nil {
		logger.Warn("Model output is not the expected JSON, returning raw text", zap.Error(err))
		metrics.StageFallbacks.WithLabelValues(stageParse).Inc()
		return stageFallback(stageParse, ParseAnswer(raw), err)
	}
	return stageOK(stageParse, ans)
}

func (e *Engine) persist(ctx context.Context, req domain.ChatRequest, resp domain.ChatResponse, cached *[]float32) StageResult[struct{}] {
	vec, err := e.queryVector(ctx, req.Text, cached)
	if err != nil {
		return degrade(stagePersist, struct{}{}, err)
	}

	turn := domain.ChatTurn{
		UserID:      req.UserID,
		InputText:   req.Text,
		LLMResponse: resp.LLMResponse,
		CreatedAt:   e.now().UTC(),
		Vector:      vec,
	}

	if err := e.store.Upsert(ctx, e.cfg.HistoryCollection, vector.Point{
		ID:      vector.NewPointID(),
		Vector:  turn.Vector,
		Payload: turn.Payload(),
	}); err != nil {
		return degrade(stagePersist, struct{}{}, err)
	}
	return stageOK(stagePersist, struct{}{})
}

func (e *Engine) recordAudit(ctx context.Context, ex *Exchange, req domain.ChatRequest) {
	if e.audit == nil {
		return
	}

	var fallbacks []string
	for _, s := range ex.Stages {
		if s.Status == StageFallback {
			fallbacks = append(fallbacks, s.Stage)
		}
	}

	err := e.audit.InsertChatExchange(ctx, &models.ChatExchange{
		ID:             ex.ID,
		UserID:         req.UserID,
		QueryText:      req.Text,
		Response:       ex.Response.LLMResponse,
		CitedURLs:      ex.Response.CitedURLs,
		DocumentsCount: len(ex.Documents),
		HistoryCount:   len(ex.History),
		Fallbacks:      fallbacks,
		LatencyMS:      int(ex.Latency.Milliseconds()),
		CreatedAt:      e.now().UTC(),
	})
	if err != nil {
		logger.Warn("Failed to record chat exchange", zap.String("exchange_id", ex.ID), zap.Error(err))
	}
}

// queryVector reuses the query embedding once any stage has computed it.
// Stages that run after a failed embedding try again.
func (e *Engine) queryVector(ctx context.Context, text string, cached *[]float32) ([]float32, error) {
	if *cached != nil {
		return *cached, nil
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	*cached = vec
	return vec, nil
}

// degrade logs a stage failure and substitutes v.
func degrade[T any](stage string, v T, err error) StageResult[T] {
	logger.Warn("Chat stage degraded", zap.String("stage", stage), zap.Error(err))
	metrics.StageFallbacks.WithLabelValues(stage).Inc()
	return stageFallback(stage, v, err)
}

func (e *Engine) finish(outcome string, start time.Time) {
	metrics.ChatTotal.WithLabelValues(outcome).Inc()
	metrics.ChatDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
