package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T) *Config {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := load(t)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "qdrant", cfg.VectorStore.Backend)
	assert.Equal(t, 3, cfg.Chat.TopK)
	assert.Equal(t, 3, cfg.Chat.HistoryTopK)
	assert.Equal(t, 128, cfg.Tickets.VectorDim)
	assert.Equal(t, 30, cfg.Tickets.FetchLimit)
	assert.False(t, cfg.Tickets.EmbedContent)
	assert.Equal(t, "valhalla/distilbart-mnli-12-1", cfg.Classify.PriorityModel)
	assert.Equal(t, "emotion", cfg.Classify.SentimentMode)
	assert.Equal(t, "0.0.0.0:8081", cfg.ListenAddr())
}

func TestLoadLegacyEnvNames(t *testing.T) {
	t.Setenv("QDRANT_COLLECTION", "kb")
	t.Setenv("QDRANT_COLLECTION_2", "archive")
	t.Setenv("QDRANT_COLLECTION_3", "memory")
	t.Setenv("QDRANT_TOP_K", "5")
	t.Setenv("OPENAI_CHAT_MODEL", "gpt-4.1")
	t.Setenv("FRONTEND_ORIGIN", "https://support.example.com")

	cfg := load(t)

	assert.Equal(t, "kb", cfg.Collections.Documents)
	assert.Equal(t, "archive", cfg.Collections.Tickets)
	assert.Equal(t, "memory", cfg.Collections.ChatHistory)
	assert.Equal(t, 5, cfg.Chat.TopK)
	assert.Equal(t, "gpt-4.1", cfg.LLM.Model)
	assert.Equal(t, "https://support.example.com", cfg.Server.FrontendOrigin)
}

func TestPrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("QDRANT_URL", "legacy:6334")
	t.Setenv("HELPDESK_QDRANT_URL", "prefixed:6334")

	cfg := load(t)
	assert.Equal(t, "prefixed:6334", cfg.Qdrant.URL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		viper.Reset()
		t.Cleanup(viper.Reset)
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown backend", func(c *Config) { c.VectorStore.Backend = "pinecone" }, "vectorStore.backend"},
		{"unknown sentiment mode", func(c *Config) { c.Classify.SentimentMode = "vibes" }, "sentimentMode"},
		{"unknown keyword backend", func(c *Config) { c.Classify.KeywordBackend = "rake" }, "keywordBackend"},
		{"missing collection", func(c *Config) { c.Collections.ChatHistory = "" }, "collection names"},
		{"zero top k", func(c *Config) { c.Chat.TopK = 0 }, "topK"},
		{"embed content dim mismatch", func(c *Config) { c.Tickets.EmbedContent = true }, "embedContent"},
		{"fetch above max", func(c *Config) { c.Tickets.FetchLimit = 1000 }, "fetchLimit"},
		{"overlap too large", func(c *Config) { c.Ingestion.ChunkOverlap = c.Ingestion.ChunkSize }, "chunkOverlap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
