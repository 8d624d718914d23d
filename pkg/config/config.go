package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	VectorStore VectorStoreConfig
	Qdrant      QdrantConfig
	Zilliz      ZillizConfig
	Collections CollectionsConfig
	LLM         LLMConfig
	Classify    ClassifyConfig
	Tickets     TicketsConfig
	Chat        ChatConfig
	Redis       RedisConfig
	SQLite      SQLiteConfig
	Neo4j       Neo4jConfig
	Ingestion   IngestionConfig
	RateLimit   RateLimitConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	FrontendOrigin string
}

// VectorStoreConfig selects the backend: qdrant, milvus or memory.
type VectorStoreConfig struct {
	Backend    string
	VectorName string
}

type QdrantConfig struct {
	URL    string
	APIKey string
}

type ZillizConfig struct {
	Endpoint  string
	APIKey    string
	IndexType string
}

type CollectionsConfig struct {
	Documents   string
	Tickets     string
	ChatHistory string
}

type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
	EmbeddingDim   int
}

type ClassifyConfig struct {
	HFBaseURL      string
	HFToken        string
	TimeoutSec     int
	PriorityModel  string
	KeywordModel   string
	KeywordBackend string
	KeywordMaxNew  int
	TopicModel     string
	SentimentModel string
	SentimentMode  string
}

type TicketsConfig struct {
	VectorDim    int
	EmbedContent bool
	FetchLimit   int
	MaxFetch     int
}

type ChatConfig struct {
	TopK           int
	HistoryTopK    int
	MaxQueryLength int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLHours int
}

type SQLiteConfig struct {
	Enabled bool
	Path    string
}

type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

type IngestionConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// legacyEnv maps config keys to the plain environment names used by
// existing deployments.
var legacyEnv = map[string]string{
	"llm.apiKey":              "OPENAI_API_KEY",
	"llm.model":               "OPENAI_CHAT_MODEL",
	"llm.embeddingModel":      "OPENAI_EMBEDDING_MODEL",
	"qdrant.url":              "QDRANT_URL",
	"qdrant.apiKey":           "QDRANT_API_KEY",
	"collections.documents":   "QDRANT_COLLECTION",
	"collections.tickets":     "QDRANT_COLLECTION_2",
	"collections.chatHistory": "QDRANT_COLLECTION_3",
	"vectorStore.vectorName":  "QDRANT_VECTOR_NAME",
	"chat.topK":               "QDRANT_TOP_K",
	"server.frontendOrigin":   "FRONTEND_ORIGIN",
	"classify.priorityModel":  "PRIORITY_MODEL",
	"classify.keywordModel":   "KEYWORDS_MODEL",
	"classify.topicModel":     "TOPIC_MODEL",
	"classify.sentimentModel": "SENTIMENT_MODEL",
	"classify.hfToken":        "HF_API_TOKEN",
}

func Load() (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/helpdesk")

	viper.SetEnvPrefix("HELPDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	for key, env := range legacyEnv {
		if err := viper.BindEnv(key, "HELPDESK_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.VectorStore.Backend {
	case "qdrant", "milvus", "memory":
	default:
		return fmt.Errorf("invalid vectorStore.backend %q", c.VectorStore.Backend)
	}

	switch c.Classify.SentimentMode {
	case "emotion", "zeroshot":
	default:
		return fmt.Errorf("invalid classify.sentimentMode %q", c.Classify.SentimentMode)
	}

	switch c.Classify.KeywordBackend {
	case "huggingface", "prose":
	default:
		return fmt.Errorf("invalid classify.keywordBackend %q", c.Classify.KeywordBackend)
	}

	if c.Collections.Documents == "" || c.Collections.Tickets == "" || c.Collections.ChatHistory == "" {
		return errors.New("all three collection names must be set")
	}
	if c.Chat.TopK <= 0 || c.Chat.HistoryTopK <= 0 {
		return errors.New("chat.topK and chat.historyTopK must be positive")
	}
	if c.LLM.EmbeddingDim <= 0 || c.Tickets.VectorDim <= 0 {
		return errors.New("embedding and ticket vector dimensions must be positive")
	}
	if c.Tickets.EmbedContent && c.Tickets.VectorDim != c.LLM.EmbeddingDim {
		return fmt.Errorf("tickets.embedContent requires tickets.vectorDim (%d) to equal llm.embeddingDim (%d)",
			c.Tickets.VectorDim, c.LLM.EmbeddingDim)
	}
	if c.Tickets.FetchLimit <= 0 || c.Tickets.MaxFetch < c.Tickets.FetchLimit {
		return errors.New("tickets.fetchLimit must be positive and not above tickets.maxFetch")
	}
	if c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return errors.New("ingestion.chunkOverlap must be smaller than ingestion.chunkSize")
	}

	return nil
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 60)
	viper.SetDefault("server.bodyLimit", 10485760)
	viper.SetDefault("server.frontendOrigin", "*")

	viper.SetDefault("vectorStore.backend", "qdrant")
	viper.SetDefault("vectorStore.vectorName", "")

	viper.SetDefault("qdrant.url", "localhost:6334")

	viper.SetDefault("zilliz.endpoint", "localhost:19530")
	viper.SetDefault("zilliz.indexType", "IVF_FLAT")

	viper.SetDefault("collections.documents", "docs")
	viper.SetDefault("collections.tickets", "tickets")
	viper.SetDefault("collections.chatHistory", "chat_history")

	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.maxTokens", 1024)
	viper.SetDefault("llm.timeoutSec", 60)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.embeddingDim", 1536)

	viper.SetDefault("classify.hfBaseURL", "https://api-inference.huggingface.co")
	viper.SetDefault("classify.timeoutSec", 30)
	viper.SetDefault("classify.priorityModel", "valhalla/distilbart-mnli-12-1")
	viper.SetDefault("classify.keywordModel", "ilsilfverskiold/tech-keywords-extractor")
	viper.SetDefault("classify.keywordBackend", "huggingface")
	viper.SetDefault("classify.keywordMaxNew", 64)
	viper.SetDefault("classify.topicModel", "facebook/bart-large-mnli")
	viper.SetDefault("classify.sentimentModel", "SamLowe/roberta-base-go_emotions")
	viper.SetDefault("classify.sentimentMode", "emotion")

	viper.SetDefault("tickets.vectorDim", 128)
	viper.SetDefault("tickets.embedContent", false)
	viper.SetDefault("tickets.fetchLimit", 30)
	viper.SetDefault("tickets.maxFetch", 500)

	viper.SetDefault("chat.topK", 3)
	viper.SetDefault("chat.historyTopK", 3)
	viper.SetDefault("chat.maxQueryLength", 4000)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlHours", 24)

	viper.SetDefault("sqlite.enabled", true)
	viper.SetDefault("sqlite.path", "./data/helpdesk.db")

	viper.SetDefault("neo4j.enabled", false)
	viper.SetDefault("neo4j.uri", "bolt://localhost:7687")
	viper.SetDefault("neo4j.username", "neo4j")
	viper.SetDefault("neo4j.password", "password")
	viper.SetDefault("neo4j.database", "neo4j")

	viper.SetDefault("ingestion.chunkSize", 200)
	viper.SetDefault("ingestion.chunkOverlap", 40)

	viper.SetDefault("rateLimit.enabled", true)
	viper.SetDefault("rateLimit.requestsPerMinute", 60)
	viper.SetDefault("rateLimit.burst", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
