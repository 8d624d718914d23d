// Package ingestion turns documentation pages into retrievable passages in
// the documents collection.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/metrics"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/storage/models"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/vector"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/logger"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/utils"
)

var whitespace = regexp.MustCompile(`\s+`)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DocumentLog keeps a relational index of ingested pages.
type DocumentLog interface {
	InsertDocument(ctx context.Context, doc *models.Document) error
}

type Config struct {
	Collection string
	// ChunkSize and ChunkOverlap are counted in words.
	ChunkSize    int
	ChunkOverlap int
	FetchTimeout time.Duration
}

type Processor struct {
	store    vector.Store
	embedder Embedder
	docs     DocumentLog
	http     *resty.Client
	cfg      Config
	now      func() time.Time
}

type Option func(*Processor)

func WithDocumentLog(d DocumentLog) Option {
	return func(p *Processor) { p.docs = d }
}

// Result describes one ingested page.
type Result struct {
	DocID  string `json:"doc_id"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Chunks int    `json:"chunks"`
}

func NewProcessor(store vector.Store, embedder Embedder, cfg Config, opts ...Option) *Processor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 200
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 0
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 20 * time.Second
	}

	p := &Processor{
		store:    store,
		embedder: embedder,
		http:     resty.New().SetTimeout(cfg.FetchTimeout).SetHeader("User-Agent", "helpdesk-ingestion/1.0"),
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fetch downloads a page for ingestion.
func (p *Processor) Fetch(ctx context.Context, url string) (string, error) {
	resp, err := p.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode())
	}
	return resp.String(), nil
}

// ProcessDocument cleans, chunks and embeds one page and upserts every
// chunk. Chunk ids are derived from the url so re-ingesting a page
// overwrites its earlier chunks.
func (p *Processor) ProcessDocument(ctx context.Context, url, htmlContent string) (*Result, error) {
	logger.Info("Processing document", zap.String("url", url))

	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: url is required", domain.ErrInvalidInput)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse HTML: %v", domain.ErrInvalidInput, err)
	}

	title := extractTitle(doc)
	text := cleanHTML(doc)
	if text == "" {
		return nil, fmt.Errorf("%w: no content extracted from HTML", domain.ErrInvalidInput)
	}

	docID := utils.HashString(url)[:32]
	chunks := ChunkWords(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	logger.Info("Document chunked", zap.String("doc_id", docID), zap.Int("chunks", len(chunks)))

	for i, chunk := range chunks {
		vec, err := p.embedder.Embed(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunk %d: %w", i, err)
		}

		err = p.store.Upsert(ctx, p.cfg.Collection, vector.Point{
			ID:     chunkPointID(url, i),
			Vector: vec,
			Payload: vector.Payload{
				domain.KeyText:     chunk,
				domain.KeyURL:      url,
				domain.KeyURLID:    docID,
				domain.KeyParentID: docID,
				"title":            title,
				"chunk_index":      i,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to store chunk %d: %w", i, err)
		}
		metrics.DocumentsIngested.Inc()
	}

	if p.docs != nil {
		now := p.now().UTC()
		if err := p.docs.InsertDocument(ctx, &models.Document{
			ID:         docID,
			URL:        url,
			Title:      title,
			ChunkCount: len(chunks),
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			logger.Warn("Failed to record ingested document", zap.String("doc_id", docID), zap.Error(err))
		}
	}

	logger.Info("Document processed successfully",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(chunks)),
	)

	return &Result{DocID: docID, URL: url, Title: title, Chunks: len(chunks)}, nil
}

func cleanHTML(doc *goquery.Document) string {
	body := doc.Find("body")
	body.Find("script, style, nav, footer, header, aside, noscript").Remove()

	text := whitespace.ReplaceAllString(body.Text(), " ")
	return strings.TrimSpace(text)
}

func extractTitle(doc *goquery.Document) string {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = "Untitled"
	}
	return title
}

// ChunkWords splits text into windows of size words, each starting
// size-overlap words after the previous one.
func ChunkWords(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	step := size - overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := min(start+size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

func chunkPointID(url string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", url, index))).String()
}

// IsInputError reports whether err was caused by the submitted page rather
// than a backend failure.
func IsInputError(err error) bool {
	return errors.Is(err, domain.ErrInvalidInput)
}
