package llm

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
)

type fakeOpenAI struct {
	embedCalls atomic.Int32
	chatCalls  atomic.Int32
	dim        int
	chatStatus []int
	lastChat   map[string]any
}

func (f *fakeOpenAI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		f.embedCalls.Add(1)
		vec := make([]float32, f.dim)
		for i := range vec {
			vec[i] = 0.5
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []any{map[string]any{"object": "embedding", "index": 0, "embedding": vec}},
			"model":  "text-embedding-3-small",
			"usage":  map[string]any{"prompt_tokens": 3, "total_tokens": 3},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		n := int(f.chatCalls.Add(1))
		if n <= len(f.chatStatus) && f.chatStatus[n-1] != http.StatusOK {
			w.WriteHeader(f.chatStatus[n-1])
			_, _ = w.Write([]byte(`{"error":{"message":"upstream","type":"server_error"}}`))
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.lastChat = body
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": `{"LLM_Response":"ok","Cited_URLs":[]}`}, "finish_reason": "stop"}},
			"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeOpenAI, dim int) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	return NewClient(Config{
		APIKey:         "test",
		BaseURL:        srv.URL + "/v1",
		Model:          "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
		EmbeddingDim:   dim,
		MaxTokens:      256,
		Timeout:        5 * time.Second,
	})
}

func TestEmbedRejectsEmptyWithoutCalling(t *testing.T) {
	f := &fakeOpenAI{dim: 4}
	c := newTestClient(t, f, 4)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := c.Embed(context.Background(), text)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}
	assert.Equal(t, int32(0), f.embedCalls.Load())
}

func TestEmbedReturnsConfiguredDimension(t *testing.T) {
	f := &fakeOpenAI{dim: 4}
	c := newTestClient(t, f, 4)

	vec, err := c.Embed(context.Background(), "how do I configure SSO?")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, int32(1), f.embedCalls.Load())
}

func TestEmbedDimensionMismatch(t *testing.T) {
	f := &fakeOpenAI{dim: 3}
	c := newTestClient(t, f, 4)

	_, err := c.Embed(context.Background(), "lineage graph missing")
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailure)
}

func TestEmbedProviderFailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{BaseURL: srv.URL + "/v1", EmbeddingModel: "m", EmbeddingDim: 4, Timeout: time.Second})
	_, err := c.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailure)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteSendsSystemMessageAtZeroTemperature(t *testing.T) {
	f := &fakeOpenAI{}
	c := newTestClient(t, f, 4)

	resp, err := c.Complete(context.Background(), CompletionRequest{SystemPrompt: "answer in JSON"})
	require.NoError(t, err)
	assert.Equal(t, `{"LLM_Response":"ok","Cited_URLs":[]}`, resp.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	msgs := f.lastChat["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])

	temp, ok := f.lastChat["temperature"].(float64)
	require.True(t, ok, "temperature must be sent explicitly")
	assert.Less(t, temp, 1e-30)
}

func TestCompleteRetriesTransientErrors(t *testing.T) {
	f := &fakeOpenAI{chatStatus: []int{http.StatusBadGateway, http.StatusOK}}
	c := newTestClient(t, f, 4)

	_, err := c.Complete(context.Background(), CompletionRequest{SystemPrompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.chatCalls.Load())
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	f := &fakeOpenAI{chatStatus: []int{http.StatusBadRequest}}
	c := newTestClient(t, f, 4)

	_, err := c.Complete(context.Background(), CompletionRequest{SystemPrompt: "x"})
	assert.ErrorIs(t, err, domain.ErrGenerationFailure)
	assert.Equal(t, int32(1), f.chatCalls.Load())
}

func TestTemperature(t *testing.T) {
	assert.Equal(t, float32(math.SmallestNonzeroFloat32), temperature(nil))
	zero := float32(0)
	assert.Equal(t, float32(math.SmallestNonzeroFloat32), temperature(&zero))
	hot := float32(0.7)
	assert.Equal(t, float32(0.7), temperature(&hot))
}
