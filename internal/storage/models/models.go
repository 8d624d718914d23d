package models

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// ChatExchange is the audit row written for every answered chat message.
type ChatExchange struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	QueryText      string    `json:"query_text"`
	Response       string    `json:"response"`
	CitedURLs      []string  `json:"cited_urls"`
	DocumentsCount int       `json:"documents_count"`
	HistoryCount   int       `json:"history_count"`
	Fallbacks      []string  `json:"fallbacks,omitempty"`
	LatencyMS      int       `json:"latency_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// Document is an ingested documentation page.
type Document struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
