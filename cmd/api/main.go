package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/api/handlers"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/cache/redis"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/classify"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/ingestion"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/kg/neo4j"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/llm"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/metrics"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/middleware/ratelimit"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/middleware/security"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/middleware/validation"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/pipeline"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/query"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/storage/sqlite"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/vector"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/vector/memory"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/vector/qdrant"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/vector/zilliz"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/config"
	appLogger "github.com/anshuljethani/Deployment-CSC-Backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting helpdesk API server",
		zap.String("vector_backend", cfg.VectorStore.Backend),
		zap.String("chat_model", cfg.LLM.Model),
	)

	metrics.Init()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancelStartup()

	store, err := openVectorStore(startupCtx, cfg)
	if err != nil {
		appLogger.Fatal("Failed to create vector store", zap.Error(err))
	}
	defer store.Close()

	if err := ensureCollections(startupCtx, store, cfg); err != nil {
		appLogger.Fatal("Failed to ensure collections", zap.Error(err))
	}

	checks := map[string]handlers.Check{
		"vector_store": func(ctx context.Context) error {
			_, err := store.Scroll(ctx, cfg.Collections.Documents, 1)
			return err
		},
	}

	llmClient := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		EmbeddingDim:   cfg.LLM.EmbeddingDim,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})

	var embedder query.Embedder = llmClient
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()

		ttl := time.Duration(cfg.Redis.TTLHours) * time.Hour
		embedder = redis.NewCachedEmbedder(llmClient, redisClient, cfg.LLM.EmbeddingModel, ttl)
		checks["redis"] = redisClient.Ping
	}

	var (
		queryOpts    []query.Option
		ingestOpts   []ingestion.Option
		pipelineOpts = []pipeline.Option{pipeline.WithEmbedder(embedder)}
		history      handlers.ChatHistory
		documents    handlers.DocumentLookup
		topics       handlers.TopicCounter
	)

	if cfg.SQLite.Enabled {
		sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
		}
		defer sqliteClient.Close()

		if err := sqliteClient.InitSchema(); err != nil {
			appLogger.Fatal("Failed to initialize schema", zap.Error(err))
		}

		queryOpts = append(queryOpts, query.WithAuditLog(sqliteClient))
		ingestOpts = append(ingestOpts, ingestion.WithDocumentLog(sqliteClient))
		history = sqliteClient
		documents = sqliteClient
		checks["sqlite"] = sqliteClient.Ping
	}

	if cfg.Neo4j.Enabled {
		neo4jClient, err := neo4j.NewClient(
			cfg.Neo4j.URI,
			cfg.Neo4j.Username,
			cfg.Neo4j.Password,
			cfg.Neo4j.Database,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Neo4j client", zap.Error(err))
		}
		defer neo4jClient.Close(context.Background())

		if err := neo4jClient.EnsureSchema(startupCtx); err != nil {
			appLogger.Warn("Failed to ensure graph schema", zap.Error(err))
		}

		pipelineOpts = append(pipelineOpts, pipeline.WithGraph(neo4jClient))
		topics = neo4jClient
		checks["neo4j"] = neo4jClient.Ping
	}

	hfClient := classify.NewInferenceClient(
		cfg.Classify.HFBaseURL,
		cfg.Classify.HFToken,
		time.Duration(cfg.Classify.TimeoutSec)*time.Second,
	)
	classifier := classify.NewHuggingFace(hfClient, classify.Config{
		PriorityModel:  cfg.Classify.PriorityModel,
		TopicModel:     cfg.Classify.TopicModel,
		SentimentModel: cfg.Classify.SentimentModel,
		SentimentMode:  cfg.Classify.SentimentMode,
		KeywordModel:   cfg.Classify.KeywordModel,
		KeywordBackend: cfg.Classify.KeywordBackend,
		KeywordMaxNew:  cfg.Classify.KeywordMaxNew,
	})
	if err := classifier.Registry().Preload(); err != nil {
		appLogger.Warn("Failed to preload classifier models", zap.Error(err))
	}

	ticketPipeline := pipeline.New(classifier, store, pipeline.Config{
		Collection:   cfg.Collections.Tickets,
		VectorDim:    cfg.Tickets.VectorDim,
		EmbedContent: cfg.Tickets.EmbedContent,
		FetchLimit:   cfg.Tickets.FetchLimit,
		MaxFetch:     cfg.Tickets.MaxFetch,
	}, pipelineOpts...)

	chatEngine := query.NewEngine(embedder, store, llmClient, query.Config{
		DocumentsCollection: cfg.Collections.Documents,
		HistoryCollection:   cfg.Collections.ChatHistory,
		TopK:                cfg.Chat.TopK,
		HistoryTopK:         cfg.Chat.HistoryTopK,
		MaxTokens:           cfg.LLM.MaxTokens,
	}, queryOpts...)

	processor := ingestion.NewProcessor(store, embedder, ingestion.Config{
		Collection:   cfg.Collections.Documents,
		ChunkSize:    cfg.Ingestion.ChunkSize,
		ChunkOverlap: cfg.Ingestion.ChunkOverlap,
		FetchTimeout: 30 * time.Second,
	}, ingestOpts...)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	origins := security.ParseOrigins(cfg.Server.FrontendOrigin)
	// console logging is only configured for local runs
	isDevelopment := cfg.Logging.Format == "console"

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(security.CORS(origins))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: origins,
		IsDevelopment:  isDevelopment,
	}))

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
			Logger:            appLogger.GetLogger(),
		})
		defer limiter.Stop()
		app.Use(limiter.Middleware())
	}

	app.Use(validation.Middleware(validation.Config{
		MaxQueryLength:  cfg.Chat.MaxQueryLength,
		MaxDocumentSize: cfg.Server.BodyLimit,
		Logger:          appLogger.GetLogger(),
	}))

	handlers.Register(app, handlers.Handlers{
		Chat:      handlers.NewChatHandler(chatEngine, history),
		Tickets:   handlers.NewTicketHandler(ticketPipeline, topics),
		Documents: handlers.NewDocumentHandler(processor, documents),
		WebSocket: handlers.NewWebSocketHandler(chatEngine),
		Health:    handlers.NewHealthHandler(checks),
		Metrics:   metrics.MetricsHandler(),
	})

	addr := cfg.ListenAddr()
	appLogger.Info("Server starting",
		zap.String("address", addr),
		zap.Bool("sqlite", cfg.SQLite.Enabled),
		zap.Bool("neo4j", cfg.Neo4j.Enabled),
		zap.Bool("redis", cfg.Redis.Enabled),
	)

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func openVectorStore(ctx context.Context, cfg *config.Config) (vector.Store, error) {
	switch cfg.VectorStore.Backend {
	case "qdrant":
		return qdrant.New(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.VectorStore.VectorName)
	case "milvus":
		return zilliz.NewClient(ctx, cfg.Zilliz.Endpoint, cfg.Zilliz.APIKey, cfg.VectorStore.VectorName, cfg.Zilliz.IndexType)
	case "memory":
		appLogger.Warn("Using the in-memory vector store; data is lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorStore.Backend)
	}
}

// ensureCollections creates the three collections the services write to.
// Chat turns are filtered by user_id, so that field is indexed.
func ensureCollections(ctx context.Context, store vector.Store, cfg *config.Config) error {
	if err := store.EnsureCollection(ctx, cfg.Collections.Documents, cfg.LLM.EmbeddingDim); err != nil {
		return fmt.Errorf("documents collection: %w", err)
	}
	if err := store.EnsureCollection(ctx, cfg.Collections.Tickets, cfg.Tickets.VectorDim); err != nil {
		return fmt.Errorf("tickets collection: %w", err)
	}
	if err := store.EnsureCollection(ctx, cfg.Collections.ChatHistory, cfg.LLM.EmbeddingDim, "user_id"); err != nil {
		return fmt.Errorf("chat history collection: %w", err)
	}
	return nil
}
