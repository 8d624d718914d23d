package classify

import (
	"strings"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
)

// emotionToSentiment folds the 28 go_emotions labels onto the six ticket
// sentiments. No source label maps to Urgent; that value is only reachable
// through the zero-shot sentiment mode.
var emotionToSentiment = map[string]string{
	"confusion": domain.SentimentConfused,
	"neutral":   domain.SentimentConfused,

	"curiosity":   domain.SentimentCurious,
	"realization": domain.SentimentCurious,
	"surprise":    domain.SentimentCurious,

	"nervousness":   domain.SentimentAnxious,
	"fear":          domain.SentimentAnxious,
	"embarrassment": domain.SentimentAnxious,
	"remorse":       domain.SentimentAnxious,

	"optimism":   domain.SentimentHopeful,
	"desire":     domain.SentimentHopeful,
	"excitement": domain.SentimentHopeful,
	"joy":        domain.SentimentHopeful,
	"gratitude":  domain.SentimentHopeful,
	"caring":     domain.SentimentHopeful,
	"approval":   domain.SentimentHopeful,
	"admiration": domain.SentimentHopeful,
	"amusement":  domain.SentimentHopeful,
	"love":       domain.SentimentHopeful,
	"pride":      domain.SentimentHopeful,
	"relief":     domain.SentimentHopeful,

	"anger":          domain.SentimentFrustrated,
	"annoyance":      domain.SentimentFrustrated,
	"disappointment": domain.SentimentFrustrated,
	"disapproval":    domain.SentimentFrustrated,
	"disgust":        domain.SentimentFrustrated,
	"sadness":        domain.SentimentFrustrated,
	"grief":          domain.SentimentFrustrated,
}

// RemapSentiment converts a native emotion label to a ticket sentiment.
// Anything outside the table, including malformed output, is Confused.
func RemapSentiment(label string) string {
	if s, ok := emotionToSentiment[strings.ToLower(strings.TrimSpace(label))]; ok {
		return s
	}
	return domain.SentimentConfused
}

// NormalizeKeywords splits model output on commas, trims each piece, drops
// empties and rejoins with ", ".
func NormalizeKeywords(raw string) string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// top returns the highest-scoring label. Ties keep the earlier entry.
func top(scores []LabelScore) (string, bool) {
	if len(scores) == 0 {
		return "", false
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	return best.Label, true
}
