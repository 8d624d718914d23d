package classify

import (
	"context"
	"errors"
	"fmt"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
)

// Config binds each kind to a model id.
type Config struct {
	PriorityModel  string
	TopicModel     string
	SentimentModel string
	// SentimentMode is "emotion" (text-classification + remap) or
	// "zeroshot" (candidate labels are the six sentiments).
	SentimentMode  string
	KeywordModel   string
	KeywordBackend string
	KeywordMaxNew  int
}

type zeroShotModel struct {
	client *InferenceClient
	model  string
	labels []string
	mapTo  func(string) string
}

func (m *zeroShotModel) Predict(ctx context.Context, text string) (string, error) {
	scores, err := m.client.ZeroShot(ctx, m.model, text, m.labels)
	if err != nil {
		return "", err
	}
	label, ok := top(scores)
	if !ok {
		return "", errors.New("model returned no labels")
	}
	return m.mapTo(label), nil
}

type emotionModel struct {
	client *InferenceClient
	model  string
}

func (m *emotionModel) Predict(ctx context.Context, text string) (string, error) {
	scores, err := m.client.TextClassification(ctx, m.model, text)
	if err != nil {
		return "", err
	}
	label, _ := top(scores)
	return RemapSentiment(label), nil
}

type keywordModel struct {
	client       *InferenceClient
	model        string
	maxNewTokens int
}

func (m *keywordModel) Predict(ctx context.Context, text string) (string, error) {
	out, err := m.client.Text2Text(ctx, m.model, text, m.maxNewTokens)
	if err != nil {
		return "", err
	}
	return NormalizeKeywords(out), nil
}

func requireModel(kind Kind, id string) error {
	if id == "" {
		return fmt.Errorf("no model configured for %s", kind)
	}
	return nil
}

// NewLoader returns a Loader that binds kinds to HuggingFace models, or to
// the local prose extractor for keywords.
func NewLoader(client *InferenceClient, cfg Config) Loader {
	return func(kind Kind) (Model, error) {
		switch kind {
		case KindPriority:
			if err := requireModel(kind, cfg.PriorityModel); err != nil {
				return nil, err
			}
			return &zeroShotModel{
				client: client,
				model:  cfg.PriorityModel,
				labels: domain.PriorityCandidates,
				mapTo:  domain.MapPriority,
			}, nil

		case KindTopic:
			if err := requireModel(kind, cfg.TopicModel); err != nil {
				return nil, err
			}
			return &zeroShotModel{
				client: client,
				model:  cfg.TopicModel,
				labels: domain.Topics,
				mapTo:  mapTopic,
			}, nil

		case KindSentiment:
			if err := requireModel(kind, cfg.SentimentModel); err != nil {
				return nil, err
			}
			if cfg.SentimentMode == "zeroshot" {
				return &zeroShotModel{
					client: client,
					model:  cfg.SentimentModel,
					labels: domain.Sentiments,
					mapTo: func(l string) string {
						if domain.IsSentiment(l) {
							return l
						}
						return domain.SentimentConfused
					},
				}, nil
			}
			return &emotionModel{client: client, model: cfg.SentimentModel}, nil

		case KindKeyword:
			if cfg.KeywordBackend == "prose" {
				return &proseKeywordModel{maxKeywords: defaultMaxKeywords}, nil
			}
			if err := requireModel(kind, cfg.KeywordModel); err != nil {
				return nil, err
			}
			return &keywordModel{client: client, model: cfg.KeywordModel, maxNewTokens: cfg.KeywordMaxNew}, nil
		}
		return nil, fmt.Errorf("unknown classification kind %q", kind)
	}
}

func mapTopic(label string) string {
	if domain.IsTopic(label) {
		return label
	}
	return domain.TopicOthers
}
