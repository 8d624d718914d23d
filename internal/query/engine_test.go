package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/llm"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/storage/models"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/vector"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/vector/memory"
)

const (
	docsColl    = "docs"
	historyColl = "chat_history"
)

type fakeEmbedder struct {
	calls int
	texts []string
	err   error
	// failures makes the first n calls fail with err.
	failures int
}

// Embed maps text onto a small deterministic vector so related texts
// land close together.
func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	f.texts = append(f.texts, text)
	if f.err != nil && (f.failures == 0 || f.calls <= f.failures) {
		return nil, f.err
	}
	v := make([]float32, 4)
	for i, r := range strings.ToLower(text) {
		v[(i+int(r))%4] += 1
	}
	return v, nil
}

type fakeCompleter struct {
	prompts []string
	content string
	err     error
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.prompts = append(f.prompts, req.SystemPrompt)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content}, nil
}

type faultyStore struct {
	vector.Store
	searchErr map[string]error
	upsertErr error
	upserts   int
}

func (s *faultyStore) Search(ctx context.Context, coll string, v []float32, k int, f vector.Filter) ([]vector.Hit, error) {
	if err := s.searchErr[coll]; err != nil {
		return nil, err
	}
	return s.Store.Search(ctx, coll, v, k, f)
}

func (s *faultyStore) Upsert(ctx context.Context, coll string, p vector.Point) error {
	s.upserts++
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return s.Store.Upsert(ctx, coll, p)
}

type fakeAudit struct {
	exchanges []*models.ChatExchange
	err       error
}

func (a *fakeAudit) InsertChatExchange(_ context.Context, ex *models.ChatExchange) error {
	a.exchanges = append(a.exchanges, ex)
	return a.err
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newEngine(emb Embedder, store vector.Store, comp Completer, opts ...Option) *Engine {
	opts = append(opts, WithClock(func() time.Time { return fixedNow }))
	return NewEngine(emb, store, comp, Config{
		DocumentsCollection: docsColl,
		HistoryCollection:   historyColl,
	}, opts...)
}

func seedDoc(t *testing.T, s vector.Store, emb Embedder, id, text, url, parent string) {
	t.Helper()
	v, err := emb.Embed(context.Background(), text)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(context.Background(), docsColl, vector.Point{
		ID:     id,
		Vector: v,
		Payload: vector.Payload{
			domain.KeyText:     text,
			domain.KeyURL:      url,
			domain.KeyURLID:    "u-" + parent,
			domain.KeyParentID: parent,
		},
	}))
}

func TestChatEmptyTextIsRejectedBeforeEmbedding(t *testing.T) {
	emb := &fakeEmbedder{}
	comp := &fakeCompleter{}
	e := newEngine(emb, memory.New(), comp)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := e.Chat(context.Background(), domain.ChatRequest{UserID: "u1", Text: text})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}
	assert.Zero(t, emb.calls)
	assert.Empty(t, comp.prompts)
}

func TestChatWithNoDocumentsOrHistory(t *testing.T) {
	comp := &fakeCompleter{content: `{"LLM_Response":"Routed to the Connector team.","Cited_URLs":[]}`}
	e := newEngine(&fakeEmbedder{}, memory.New(), comp)

	resp, err := e.Chat(context.Background(), domain.ChatRequest{UserID: "u1", Text: "snowflake connector broken"})
	require.NoError(t, err)

	assert.Equal(t, "u1", resp.UserID)
	assert.Equal(t, "Routed to the Connector team.", resp.LLMResponse)
	assert.NotNil(t, resp.CitedURLs)
	assert.Empty(t, resp.CitedURLs)

	require.Len(t, comp.prompts, 1)
	assert.Contains(t, comp.prompts[0], "snowflake connector broken")
	assert.Contains(t, comp.prompts[0], "```\n")
}

func TestChatUsesDocumentsAndCitations(t *testing.T) {
	emb := &fakeEmbedder{}
	store := memory.New()
	seedDoc(t, store, emb, "p1", "Enable SSO from the admin panel", "https://docs.example.com/sso", "sso-guide")
	seedDoc(t, store, emb, "p2", "SSO requires an Okta app", "https://docs.example.com/sso#okta", "sso-guide")

	comp := &fakeCompleter{content: "```json\n[{\"LLM_Response\":\"Open the admin panel.\",\"Cited_URLs\":[\"https://docs.example.com/sso\"]}]\n```"}
	e := newEngine(emb, store, comp)

	ex, err := e.Run(context.Background(), domain.ChatRequest{UserID: "u1", Text: "How do I enable SSO?"})
	require.NoError(t, err)

	assert.Len(t, ex.Documents, 2)
	assert.Equal(t, "Open the admin panel.", ex.Response.LLMResponse)
	assert.Equal(t, []string{"https://docs.example.com/sso"}, ex.Response.CitedURLs)

	prompt := comp.prompts[0]
	assert.Contains(t, prompt, "sso-guide\n")
	assert.Contains(t, prompt, "Enable SSO from the admin panel:::https://docs.example.com/sso:::FINISH")
	assert.Equal(t, 1, strings.Count(prompt, "sso-guide\n"), "passages of one source share a heading")

	for _, s := range ex.Stages {
		assert.Equal(t, StageOK, s.Status, s.Stage)
	}
}

func TestChatStoresTurnAndRecallsItForSameUserOnly(t *testing.T) {
	emb := &fakeEmbedder{}
	store := memory.New()
	comp := &fakeCompleter{content: `{"LLM_Response":"Reset your password from settings.","Cited_URLs":[]}`}
	e := newEngine(emb, store, comp)
	ctx := context.Background()

	_, err := e.Chat(ctx, domain.ChatRequest{UserID: "alice", Text: "how to reset password"})
	require.NoError(t, err)
	require.Equal(t, 1, store.Len(historyColl))

	page, err := store.Scroll(ctx, historyColl, 10)
	require.NoError(t, err)
	assert.Equal(t, "alice", page[0].String(domain.KeyUserID))
	assert.Equal(t, "how to reset password", page[0].String(domain.KeyInputText))
	assert.Equal(t, "Reset your password from settings.", page[0].String(domain.KeyLLMResponse))
	assert.Equal(t, "2024-05-01T12:00:00Z", page[0].String(domain.KeyCreatedAt))

	ex, err := e.Run(ctx, domain.ChatRequest{UserID: "alice", Text: "how to reset password"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Reset your password from settings."}, ex.History)

	ex, err = e.Run(ctx, domain.ChatRequest{UserID: "bob", Text: "how to reset password"})
	require.NoError(t, err)
	assert.Empty(t, ex.History)
}

func TestChatUsesTrimmedText(t *testing.T) {
	emb := &fakeEmbedder{}
	store := memory.New()
	comp := &fakeCompleter{content: `{"LLM_Response":"Check the SSO settings page.","Cited_URLs":[]}`}
	audit := &fakeAudit{}
	e := newEngine(emb, store, comp, WithAuditLog(audit))
	ctx := context.Background()

	_, err := e.Chat(ctx, domain.ChatRequest{UserID: "u1", Text: "  reset SSO \n"})
	require.NoError(t, err)

	assert.Equal(t, []string{"reset SSO"}, emb.texts)
	require.Len(t, comp.prompts, 1)
	assert.Contains(t, comp.prompts[0], "User query:\nreset SSO\n")

	page, err := store.Scroll(ctx, historyColl, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "reset SSO", page[0].String(domain.KeyInputText))

	require.Len(t, audit.exchanges, 1)
	assert.Equal(t, "reset SSO", audit.exchanges[0].QueryText)
}

func TestChatTransientEmbeddingFailureStillStoresTurn(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("embedding timeout"), failures: 1}
	store := memory.New()
	e := newEngine(emb, store, &fakeCompleter{content: `{"LLM_Response":"ok","Cited_URLs":[]}`})

	ex, err := e.Run(context.Background(), domain.ChatRequest{UserID: "u1", Text: "hello"})
	require.NoError(t, err)

	assert.Equal(t, StageFallback, ex.Stages[1].Status)
	assert.Equal(t, StageOK, ex.Stages[2].Status)
	assert.Equal(t, StageOK, ex.Stages[6].Status)
	assert.Equal(t, 2, emb.calls)
	assert.Equal(t, 1, store.Len(historyColl))
}

func TestChatReusesQueryEmbedding(t *testing.T) {
	emb := &fakeEmbedder{}
	e := newEngine(emb, memory.New(), &fakeCompleter{content: `{"LLM_Response":"ok"}`})

	_, err := e.Chat(context.Background(), domain.ChatRequest{UserID: "u1", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls)
}

func TestChatMalformedOutputFallsBackToRawText(t *testing.T) {
	comp := &fakeCompleter{content: "  Sure! Here is what you need to do.  "}
	e := newEngine(&fakeEmbedder{}, memory.New(), comp)

	ex, err := e.Run(context.Background(), domain.ChatRequest{UserID: "u1", Text: "help"})
	require.NoError(t, err)
	assert.Equal(t, "Sure! Here is what you need to do.", ex.Response.LLMResponse)
	assert.Equal(t, []string{}, ex.Response.CitedURLs)
	require.Len(t, ex.Stages, 7)
	assert.Equal(t, stageParse, ex.Stages[5].Stage)
	assert.Equal(t, StageFallback, ex.Stages[5].Status)
	assert.NotEmpty(t, ex.Stages[5].Error)
}

func TestChatRetrievalFailuresDegrade(t *testing.T) {
	store := &faultyStore{
		Store: memory.New(),
		searchErr: map[string]error{
			docsColl:    fmt.Errorf("%w: qdrant timeout", domain.ErrSearchFailure),
			historyColl: fmt.Errorf("%w: qdrant timeout", domain.ErrSearchFailure),
		},
	}
	comp := &fakeCompleter{content: `{"LLM_Response":"Generic answer","Cited_URLs":[]}`}
	e := newEngine(&fakeEmbedder{}, store, comp)

	ex, err := e.Run(context.Background(), domain.ChatRequest{UserID: "u1", Text: "question"})
	require.NoError(t, err)
	assert.Equal(t, "Generic answer", ex.Response.LLMResponse)
	assert.Empty(t, ex.Documents)
	assert.Empty(t, ex.History)
	assert.Equal(t, StageFallback, ex.Stages[1].Status)
	assert.Equal(t, StageFallback, ex.Stages[2].Status)
}

func TestChatEmbeddingFailureDegrades(t *testing.T) {
	emb := &fakeEmbedder{err: fmt.Errorf("%w: provider down", domain.ErrEmbeddingFailure)}
	store := &faultyStore{Store: memory.New()}
	comp := &fakeCompleter{content: `{"LLM_Response":"answer"}`}
	e := newEngine(emb, store, comp)

	resp, err := e.Chat(context.Background(), domain.ChatRequest{UserID: "u1", Text: "question"})
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.LLMResponse)
	assert.Zero(t, store.upserts, "turn without a vector is not stored")
}

func TestChatGenerationFailureIsTerminal(t *testing.T) {
	store := &faultyStore{Store: memory.New()}
	audit := &fakeAudit{}
	comp := &fakeCompleter{err: fmt.Errorf("%w: 503", domain.ErrGenerationFailure)}
	e := newEngine(&fakeEmbedder{}, store, comp, WithAuditLog(audit))

	resp, err := e.Chat(context.Background(), domain.ChatRequest{UserID: "u1", Text: "question"})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, domain.ErrGenerationFailure)

	var stageErr *domain.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, stageGenerate, stageErr.Stage)
	assert.Zero(t, store.upserts)
	assert.Empty(t, audit.exchanges)
}

func TestChatPersistenceFailureIsSwallowed(t *testing.T) {
	store := &faultyStore{Store: memory.New(), upsertErr: fmt.Errorf("%w: disk full", domain.ErrWriteFailure)}
	audit := &fakeAudit{err: errors.New("database is locked")}
	comp := &fakeCompleter{content: `{"LLM_Response":"Here you go","Cited_URLs":["https://docs.example.com/a"]}`}
	e := newEngine(&fakeEmbedder{}, store, comp, WithAuditLog(audit))

	resp, err := e.Chat(context.Background(), domain.ChatRequest{UserID: "u1", Text: "question"})
	require.NoError(t, err)
	assert.Equal(t, "Here you go", resp.LLMResponse)
	assert.Equal(t, 1, store.upserts)

	require.Len(t, audit.exchanges, 1)
	rec := audit.exchanges[0]
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, "question", rec.QueryText)
	assert.Equal(t, []string{"https://docs.example.com/a"}, rec.CitedURLs)
	assert.Equal(t, []string{stagePersist}, rec.Fallbacks)
}

func TestChatEmptyUserIDPassesThrough(t *testing.T) {
	e := newEngine(&fakeEmbedder{}, memory.New(), &fakeCompleter{content: `{"LLM_Response":"hi"}`})
	resp, err := e.Chat(context.Background(), domain.ChatRequest{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "", resp.UserID)
}
