package ingestion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/storage/models"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/vector/memory"
)

const page = `<html>
<head><title> SSO setup </title><style>.x{color:red}</style></head>
<body>
  <nav>Home | Docs</nav>
  <h1>Configure SSO</h1>
  <p>Open the admin panel and choose   Authentication.</p>
  <script>console.log("tracking")</script>
  <footer>Copyright</footer>
</body>
</html>`

type fakeEmbedder struct {
	texts []string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1}, nil
}

type fakeDocLog struct {
	docs []*models.Document
}

func (f *fakeDocLog) InsertDocument(_ context.Context, d *models.Document) error {
	f.docs = append(f.docs, d)
	return nil
}

func TestChunkWords(t *testing.T) {
	text := "a b c d e f g"

	assert.Equal(t, []string{"a b c", "c d e", "e f g"}, ChunkWords(text, 3, 1))
	assert.Equal(t, []string{"a b c", "d e f", "g"}, ChunkWords(text, 3, 0))
	assert.Equal(t, []string{"a b c d e f g"}, ChunkWords(text, 10, 2))
	assert.Equal(t, []string{"a b", "c d", "e f", "g"}, ChunkWords(text, 2, 5), "invalid overlap is ignored")
	assert.Nil(t, ChunkWords("   ", 3, 1))
}

func TestProcessDocument(t *testing.T) {
	store := memory.New()
	emb := &fakeEmbedder{}
	docLog := &fakeDocLog{}
	p := NewProcessor(store, emb, Config{Collection: "docs", ChunkSize: 4, ChunkOverlap: 1}, WithDocumentLog(docLog))

	res, err := p.ProcessDocument(context.Background(), "https://docs.example.com/sso", page)
	require.NoError(t, err)

	assert.Equal(t, "SSO setup", res.Title)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, []string{
		"Configure SSO Open the",
		"the admin panel and",
		"and choose Authentication.",
	}, emb.texts)
	for _, text := range emb.texts {
		assert.NotContains(t, text, "tracking")
		assert.NotContains(t, text, "Copyright")
	}

	assert.Equal(t, 3, store.Len("docs"))
	payloads, err := store.Scroll(context.Background(), "docs", 10)
	require.NoError(t, err)
	for _, pl := range payloads {
		assert.Equal(t, "https://docs.example.com/sso", pl.String(domain.KeyURL))
		assert.Equal(t, res.DocID, pl.String(domain.KeyParentID))
		assert.Equal(t, res.DocID, pl.String(domain.KeyURLID))
	}

	require.Len(t, docLog.docs, 1)
	assert.Equal(t, 3, docLog.docs[0].ChunkCount)
}

func TestReingestOverwritesChunks(t *testing.T) {
	store := memory.New()
	p := NewProcessor(store, &fakeEmbedder{}, Config{Collection: "docs", ChunkSize: 4, ChunkOverlap: 1})

	for i := 0; i < 2; i++ {
		_, err := p.ProcessDocument(context.Background(), "https://docs.example.com/sso", page)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, store.Len("docs"))
}

func TestProcessDocumentRejectsEmptyPage(t *testing.T) {
	p := NewProcessor(memory.New(), &fakeEmbedder{}, Config{Collection: "docs"})

	_, err := p.ProcessDocument(context.Background(), "https://x", "<html><body><script>x()</script></body></html>")
	require.Error(t, err)
	assert.True(t, IsInputError(err))

	_, err = p.ProcessDocument(context.Background(), "", page)
	assert.True(t, IsInputError(err))
}

func TestProcessDocumentEmbeddingFailure(t *testing.T) {
	store := memory.New()
	emb := &fakeEmbedder{err: fmt.Errorf("%w: quota", domain.ErrEmbeddingFailure)}
	p := NewProcessor(store, emb, Config{Collection: "docs"})

	_, err := p.ProcessDocument(context.Background(), "https://x", page)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmbeddingFailure))
	assert.False(t, IsInputError(err))
	assert.Zero(t, store.Len("docs"))
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	p := NewProcessor(memory.New(), &fakeEmbedder{}, Config{Collection: "docs"})

	body, err := p.Fetch(context.Background(), srv.URL+"/sso")
	require.NoError(t, err)
	assert.True(t, strings.Contains(body, "Configure SSO"))

	_, err = p.Fetch(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}
