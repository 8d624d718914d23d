package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
)

var goEmotions = []string{
	"admiration", "amusement", "anger", "annoyance", "approval", "caring", "confusion",
	"curiosity", "desire", "disappointment", "disapproval", "disgust", "embarrassment",
	"excitement", "fear", "gratitude", "grief", "joy", "love", "nervousness", "optimism",
	"pride", "realization", "relief", "remorse", "sadness", "surprise", "neutral",
}

func TestRemapSentimentIsTotal(t *testing.T) {
	for _, label := range goEmotions {
		got := RemapSentiment(label)
		assert.True(t, domain.IsSentiment(got), "%s -> %s", label, got)
	}

	for _, junk := range []string{"", "LABEL_3", "happy", "{\"x\":1}"} {
		assert.Equal(t, domain.SentimentConfused, RemapSentiment(junk))
	}
}

func TestRemapSentimentTable(t *testing.T) {
	assert.Equal(t, domain.SentimentFrustrated, RemapSentiment("annoyance"))
	assert.Equal(t, domain.SentimentAnxious, RemapSentiment("nervousness"))
	assert.Equal(t, domain.SentimentCurious, RemapSentiment(" Curiosity "))
	assert.Equal(t, domain.SentimentHopeful, RemapSentiment("gratitude"))
	assert.Equal(t, domain.SentimentConfused, RemapSentiment("neutral"))
}

func TestNormalizeKeywords(t *testing.T) {
	assert.Equal(t, "SSO, login, Okta", NormalizeKeywords(" SSO,login ,, Okta, "))
	assert.Equal(t, "", NormalizeKeywords(" , ,"))
	assert.Equal(t, "lineage", NormalizeKeywords("lineage"))
}

func TestTopKeepsFirstOnTie(t *testing.T) {
	label, ok := top([]LabelScore{{"How-to", 0.4}, {"Product", 0.4}, {"SSO", 0.2}})
	require.True(t, ok)
	assert.Equal(t, "How-to", label)

	label, _ = top([]LabelScore{{"Errors", 0.1}, {"Connector", 0.7}})
	assert.Equal(t, "Connector", label)

	_, ok = top(nil)
	assert.False(t, ok)
}

func TestParseZeroShotShapes(t *testing.T) {
	cols, err := parseZeroShot([]byte(`{"sequence":"x","labels":["Urgent","Not Urgent"],"scores":[0.8,0.2]}`))
	require.NoError(t, err)
	assert.Equal(t, []LabelScore{{"Urgent", 0.8}, {"Not Urgent", 0.2}}, cols)

	list, err := parseZeroShot([]byte(`[{"label":"SSO","score":0.9},{"label":"Errors","score":0.1}]`))
	require.NoError(t, err)
	assert.Equal(t, "SSO", list[0].Label)

	wrapped, err := parseZeroShot([]byte(`[{"labels":["Product"],"scores":[1.0]}]`))
	require.NoError(t, err)
	assert.Equal(t, "Product", wrapped[0].Label)

	_, err = parseZeroShot([]byte(`{"labels":["a","b"],"scores":[1]}`))
	assert.Error(t, err)
}

func TestMapTopicKeepsTheLabelSet(t *testing.T) {
	for _, topic := range domain.Topics {
		assert.Equal(t, topic, mapTopic(topic))
	}
	assert.Equal(t, domain.TopicOthers, mapTopic("sso"))
	assert.Equal(t, domain.TopicOthers, mapTopic(""))
}

func TestParseGenerated(t *testing.T) {
	out, err := parseGenerated([]byte(`[{"generated_text":"snowflake, connector"}]`))
	require.NoError(t, err)
	assert.Equal(t, "snowflake, connector", out)

	_, err = parseGenerated([]byte(`{"error":"x"}`))
	assert.Error(t, err)
}

// --- registry ---

type stubModel struct{ label string }

func (s stubModel) Predict(context.Context, string) (string, error) { return s.label, nil }

func TestRegistryLoadsEachKindOnceUnderConcurrency(t *testing.T) {
	var loads [4]atomic.Int32
	index := map[Kind]int{KindPriority: 0, KindKeyword: 1, KindTopic: 2, KindSentiment: 3}

	reg := NewRegistry(func(k Kind) (Model, error) {
		loads[index[k]].Add(1)
		time.Sleep(5 * time.Millisecond)
		return stubModel{label: string(k)}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kind := AllKinds[i%len(AllKinds)]
			m, err := reg.Model(kind)
			assert.NoError(t, err)
			assert.Equal(t, stubModel{label: string(kind)}, m)
		}(i)
	}
	wg.Wait()

	for i := range loads {
		assert.Equal(t, int32(1), loads[i].Load())
	}
}

func TestRegistryUnknownKind(t *testing.T) {
	reg := NewRegistry(func(Kind) (Model, error) { return stubModel{}, nil })
	_, err := reg.Model("mood")
	assert.Error(t, err)
}

func TestRegistryCachesLoadError(t *testing.T) {
	calls := 0
	reg := NewRegistry(func(Kind) (Model, error) {
		calls++
		return nil, errors.New("no such model")
	})

	_, err1 := reg.Model(KindTopic)
	_, err2 := reg.Model(KindTopic)
	assert.Error(t, err1)
	assert.Equal(t, err1, err2)
	assert.Equal(t, 1, calls)
	assert.Error(t, reg.Preload())
}

// --- classifier over a fake inference API ---

type fakeHF struct {
	mu       sync.Mutex
	requests map[string][]inferenceRequest
	status   int
}

func (f *fakeHF) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req inferenceRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		model := strings.TrimPrefix(r.URL.Path, "/models/")

		f.mu.Lock()
		if f.requests == nil {
			f.requests = map[string][]inferenceRequest{}
		}
		f.requests[model] = append(f.requests[model], req)
		f.mu.Unlock()

		if f.status != 0 {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(`{"error":"bad input"}`))
			return
		}

		switch model {
		case "prio":
			_, _ = w.Write([]byte(`{"labels":["Urgent","Medium Urgency","Not Urgent"],"scores":[0.7,0.2,0.1]}`))
		case "topic":
			_, _ = w.Write([]byte(`{"labels":["SSO","How-to"],"scores":[0.6,0.4]}`))
		case "org/emotions":
			_, _ = w.Write([]byte(`[[{"label":"annoyance","score":0.81},{"label":"neutral","score":0.1}]]`))
		case "kw":
			_, _ = w.Write([]byte(`[{"generated_text":"SSO ,  login,,Okta"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClassifier(t *testing.T, f *fakeHF) *Classifier {
	srv := f.server(t)
	client := NewInferenceClient(srv.URL, "hf_test", 5*time.Second)
	return NewHuggingFace(client, Config{
		PriorityModel:  "prio",
		TopicModel:     "topic",
		SentimentModel: "org/emotions",
		SentimentMode:  "emotion",
		KeywordModel:   "kw",
		KeywordBackend: "huggingface",
		KeywordMaxNew:  64,
	})
}

func TestClassifyAllKinds(t *testing.T) {
	f := &fakeHF{}
	c := newTestClassifier(t, f)
	ctx := context.Background()

	p, err := c.Priority(ctx, "Production is down")
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityP0, p)

	topic, err := c.Topic(ctx, "SSO login loops")
	require.NoError(t, err)
	assert.Equal(t, "SSO", topic)

	s, err := c.Sentiment(ctx, "this is so annoying")
	require.NoError(t, err)
	assert.Equal(t, domain.SentimentFrustrated, s)

	kw, err := c.Keywords(ctx, "SSO login with Okta")
	require.NoError(t, err)
	assert.Equal(t, "SSO, login, Okta", kw)

	f.mu.Lock()
	defer f.mu.Unlock()
	prio := f.requests["prio"][0]
	assert.Equal(t, "Production is down", prio.Inputs)
	assert.ElementsMatch(t, []any{"Urgent", "Medium Urgency", "Not Urgent"}, prio.Parameters["candidate_labels"])
	assert.Len(t, f.requests["topic"][0].Parameters["candidate_labels"], 12)
	assert.EqualValues(t, 64, f.requests["kw"][0].Parameters["max_new_tokens"])
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := newTestClassifier(t, &fakeHF{})
	ctx := context.Background()

	first, err := c.Topic(ctx, "same text")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := c.Topic(ctx, "same text")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestClassifyFailureWrapsKind(t *testing.T) {
	f := &fakeHF{status: http.StatusBadRequest}
	c := newTestClassifier(t, f)

	_, err := c.Priority(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrClassificationFailure)
	assert.Contains(t, err.Error(), "priority")
	assert.Contains(t, err.Error(), "bad input")

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Len(t, f.requests["prio"], 1, "client errors are not retried")
}

func TestProseKeywordBackend(t *testing.T) {
	loader := NewLoader(nil, Config{KeywordBackend: "prose"})
	m, err := loader(KindKeyword)
	require.NoError(t, err)

	out, err := m.Predict(context.Background(), "The Snowflake connector fails during lineage extraction")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Contains(t, strings.ToLower(out), "connector")
	for _, kw := range strings.Split(out, ", ") {
		assert.Equal(t, strings.TrimSpace(kw), kw)
		assert.NotEmpty(t, kw)
	}
}

func TestLoaderRequiresModelIDs(t *testing.T) {
	loader := NewLoader(nil, Config{})
	for _, k := range []Kind{KindPriority, KindTopic, KindSentiment, KindKeyword} {
		_, err := loader(k)
		assert.Error(t, err, k)
	}
}
