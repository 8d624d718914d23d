package classify

import (
	"context"
	"strings"

	"github.com/jdkato/prose/v2"
)

const defaultMaxKeywords = 8

// proseKeywordModel extracts noun phrases locally. It is the offline
// alternative to the text2text keyword model.
type proseKeywordModel struct {
	maxKeywords int
}

func (m *proseKeywordModel) Predict(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	doc, err := prose.NewDocument(text, prose.WithExtraction(false), prose.WithSegmentation(false))
	if err != nil {
		return "", err
	}

	return strings.Join(nounPhrases(doc.Tokens(), m.maxKeywords), ", "), nil
}

// nounPhrases joins runs of consecutive noun tokens and returns the
// distinct phrases in order of first appearance.
func nounPhrases(tokens []prose.Token, limit int) []string {
	var (
		out     []string
		seen    = make(map[string]bool)
		current []string
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		phrase := strings.Join(current, " ")
		current = current[:0]
		key := strings.ToLower(phrase)
		if seen[key] || len(out) >= limit {
			return
		}
		seen[key] = true
		out = append(out, phrase)
	}

	for _, tok := range tokens {
		if strings.HasPrefix(tok.Tag, "NN") && isWordy(tok.Text) {
			current = append(current, tok.Text)
			continue
		}
		flush()
	}
	flush()

	return out
}

func isWordy(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
