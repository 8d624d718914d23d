package query

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
)

var fencePattern = regexp.MustCompile("(?m)^```(?:json)?|```$")

// Answer is the structured model output.
type Answer struct {
	LLMResponse string
	CitedURLs   []string
}

// ParseAnswer extracts the answer object from raw model output. Output that
// is not the expected JSON falls back to the trimmed raw text with no
// citations. CitedURLs is never nil.
func ParseAnswer(raw string) Answer {
	ans, err := decodeAnswer(raw)
	if err != nil {
		return Answer{LLMResponse: strings.TrimSpace(raw), CitedURLs: []string{}}
	}
	return ans
}

func decodeAnswer(raw string) (Answer, error) {
	if strings.TrimSpace(raw) == "" {
		return Answer{CitedURLs: []string{}}, nil
	}

	cleaned := strings.TrimSpace(fencePattern.ReplaceAllString(strings.TrimSpace(raw), ""))

	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return Answer{}, fmt.Errorf("%w: %v", domain.ErrParseFailure, err)
	}

	if list, ok := v.([]any); ok && len(list) > 0 {
		v = list[0]
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return Answer{}, fmt.Errorf("%w: answer is not an object", domain.ErrParseFailure)
	}

	ans := Answer{CitedURLs: []string{}}
	if s, ok := obj["LLM_Response"].(string); ok {
		ans.LLMResponse = s
	}

	switch urls := obj["Cited_URLs"].(type) {
	case []any:
		for _, u := range urls {
			if s, ok := u.(string); ok && strings.TrimSpace(s) != "" {
				ans.CitedURLs = append(ans.CitedURLs, strings.TrimSpace(s))
			}
		}
	case string:
		if s := strings.TrimSpace(urls); s != "" {
			ans.CitedURLs = append(ans.CitedURLs, s)
		}
	}

	return ans, nil
}
