package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/storage/models"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_exchanges (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		query_text TEXT NOT NULL,
		response TEXT,
		cited_urls TEXT,
		documents_count INTEGER,
		history_count INTEGER,
		fallbacks TEXT,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_user ON chat_exchanges(user_id);
	CREATE INDEX IF NOT EXISTS idx_exchanges_created ON chat_exchanges(created_at);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		url TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		chunk_count INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertChatExchange(ctx context.Context, ex *models.ChatExchange) error {
	query := `
		INSERT INTO chat_exchanges (id, user_id, query_text, response, cited_urls,
			documents_count, history_count, fallbacks, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	citedJSON, _ := json.Marshal(nonNil(ex.CitedURLs))
	fallbacksJSON, _ := json.Marshal(nonNil(ex.Fallbacks))

	_, err := c.db.ExecContext(ctx,
		query,
		ex.ID,
		ex.UserID,
		ex.QueryText,
		ex.Response,
		string(citedJSON),
		ex.DocumentsCount,
		ex.HistoryCount,
		string(fallbacksJSON),
		ex.LatencyMS,
		ex.CreatedAt.UnixMilli(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert chat exchange: %w", err)
	}

	logger.Debug("Chat exchange recorded",
		zap.String("exchange_id", ex.ID),
		zap.String("user_id", ex.UserID),
	)

	return nil
}

// GetChatHistory returns a user's exchanges, newest first.
func (c *Client) GetChatHistory(ctx context.Context, userID string, limit int) ([]models.ChatExchange, error) {
	query := `
		SELECT id, user_id, query_text, response, cited_urls, documents_count,
			history_count, fallbacks, latency_ms, created_at
		FROM chat_exchanges
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}
	defer rows.Close()

	records := make([]models.ChatExchange, 0)
	for rows.Next() {
		var r models.ChatExchange
		var citedJSON, fallbacksJSON string
		var createdAt int64

		err := rows.Scan(&r.ID, &r.UserID, &r.QueryText, &r.Response, &citedJSON,
			&r.DocumentsCount, &r.HistoryCount, &fallbacksJSON, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.CitedURLs = []string{}
		json.Unmarshal([]byte(citedJSON), &r.CitedURLs)
		json.Unmarshal([]byte(fallbacksJSON), &r.Fallbacks)
		r.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, r)
	}

	return records, rows.Err()
}

func (c *Client) InsertDocument(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (id, url, title, chunk_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			chunk_count = excluded.chunk_count,
			updated_at = excluded.updated_at
	`

	_, err := c.db.ExecContext(ctx,
		query,
		doc.ID,
		doc.URL,
		doc.Title,
		doc.ChunkCount,
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Document inserted", zap.String("doc_id", doc.ID), zap.String("url", doc.URL))
	return nil
}

func (c *Client) GetDocumentByURL(ctx context.Context, url string) (*models.Document, error) {
	query := `SELECT id, url, title, chunk_count, created_at, updated_at FROM documents WHERE url = ?`

	var doc models.Document
	var createdAt, updatedAt int64

	err := c.db.QueryRowContext(ctx, query, url).Scan(
		&doc.ID,
		&doc.URL,
		&doc.Title,
		&doc.ChunkCount,
		&createdAt,
		&updatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", url, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.CreatedAt = time.Unix(createdAt, 0).UTC()
	doc.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &doc, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
