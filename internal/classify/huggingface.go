package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/metrics"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/circuitbreaker"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/logger"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/retry"
)

// LabelScore is one (label, score) pair from a classification model.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// InferenceClient calls the HuggingFace Inference API.
type InferenceClient struct {
	client      *resty.Client
	cb          *circuitbreaker.Breaker
	retryConfig retry.Config
}

type inferenceRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
}

type inferenceError struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time,omitempty"`
}

// StatusError is a non-2xx response from the inference API.
type StatusError struct {
	Model   string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("huggingface %s: status %d: %s", e.Model, e.Status, e.Message)
}

func NewInferenceClient(baseURL, token string, timeout time.Duration) *InferenceClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token != "" {
		rc.SetAuthToken(token)
	}

	return &InferenceClient{
		client: rc,
		cb: circuitbreaker.New("huggingface", circuitbreaker.Config{
			MaxRequests:      2,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			OnStateChange:    metrics.RecordBreakerState,
			Logger:           logger.GetLogger(),
		}),
		retryConfig: retry.Config{
			Name:           "huggingface",
			MaxAttempts:    3,
			InitialDelay:   time.Second,
			MaxDelay:       10 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Retryable:      isTransient,
			Logger:         logger.GetLogger(),
		},
	}
}

// ZeroShot scores text against candidate labels and returns them best
// first, in the order the model reports.
func (c *InferenceClient) ZeroShot(ctx context.Context, model, text string, labels []string) ([]LabelScore, error) {
	body, err := c.post(ctx, model, inferenceRequest{
		Inputs:     text,
		Parameters: map[string]any{"candidate_labels": labels},
	})
	if err != nil {
		return nil, err
	}
	return parseZeroShot(body)
}

// TextClassification returns the model's label distribution.
func (c *InferenceClient) TextClassification(ctx context.Context, model, text string) ([]LabelScore, error) {
	body, err := c.post(ctx, model, inferenceRequest{Inputs: text})
	if err != nil {
		return nil, err
	}
	return parseTextClassification(body)
}

// Text2Text returns the generated text of a seq2seq model.
func (c *InferenceClient) Text2Text(ctx context.Context, model, text string, maxNewTokens int) (string, error) {
	params := map[string]any{}
	if maxNewTokens > 0 {
		params["max_new_tokens"] = maxNewTokens
	}
	body, err := c.post(ctx, model, inferenceRequest{Inputs: text, Parameters: params})
	if err != nil {
		return "", err
	}
	return parseGenerated(body)
}

func (c *InferenceClient) post(ctx context.Context, model string, req inferenceRequest) ([]byte, error) {
	req.Options = map[string]any{"wait_for_model": true}
	path := "/models/" + escapeModel(model)

	return circuitbreaker.Call(ctx, c.cb, func(ctx context.Context) ([]byte, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func(ctx context.Context) ([]byte, error) {
			resp, err := c.client.R().
				SetContext(ctx).
				SetBody(req).
				Post(path)
			if err != nil {
				return nil, fmt.Errorf("huggingface %s: %w", model, err)
			}

			if !resp.IsSuccess() {
				msg := strings.TrimSpace(resp.String())
				var ie inferenceError
				if json.Unmarshal(resp.Body(), &ie) == nil && ie.Error != "" {
					msg = ie.Error
				}
				if resp.StatusCode() == http.StatusServiceUnavailable {
					logger.Warn("Inference model not ready",
						zap.String("model", model),
						zap.Float64("estimated_time", ie.EstimatedTime),
					)
				}
				return nil, &StatusError{Model: model, Status: resp.StatusCode(), Message: msg}
			}

			return resp.Body(), nil
		})
	})
}

func escapeModel(model string) string {
	parts := strings.Split(model, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func isTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= http.StatusInternalServerError
	}
	return true
}

// parseZeroShot accepts both the {labels, scores} shape and a list of
// {label, score} objects, optionally wrapped in an outer list.
func parseZeroShot(body []byte) ([]LabelScore, error) {
	var cols struct {
		Labels []string  `json:"labels"`
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal(body, &cols); err == nil && len(cols.Labels) > 0 {
		if len(cols.Labels) != len(cols.Scores) {
			return nil, fmt.Errorf("zero-shot response has %d labels and %d scores", len(cols.Labels), len(cols.Scores))
		}
		out := make([]LabelScore, len(cols.Labels))
		for i := range cols.Labels {
			out[i] = LabelScore{Label: cols.Labels[i], Score: cols.Scores[i]}
		}
		return out, nil
	}

	var wrapped []struct {
		Labels []string  `json:"labels"`
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped) > 0 && len(wrapped[0].Labels) > 0 {
		b, _ := json.Marshal(wrapped[0])
		return parseZeroShot(b)
	}

	return parseTextClassification(body)
}

// parseTextClassification accepts [[{label, score}]] and [{label, score}].
func parseTextClassification(body []byte) ([]LabelScore, error) {
	var nested [][]LabelScore
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 {
		if len(nested[0]) == 0 {
			return nil, errors.New("classification response is empty")
		}
		return nested[0], nil
	}

	var flat []LabelScore
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("unexpected classification response: %s", truncate(string(body), 200))
	}
	if len(flat) == 0 {
		return nil, errors.New("classification response is empty")
	}
	return flat, nil
}

func parseGenerated(body []byte) (string, error) {
	var out []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &out); err == nil && len(out) > 0 {
		return out[0].GeneratedText, nil
	}

	var single struct {
		GeneratedText *string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &single); err == nil && single.GeneratedText != nil {
		return *single.GeneratedText, nil
	}

	return "", fmt.Errorf("unexpected generation response: %s", truncate(string(body), 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
