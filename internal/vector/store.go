// Package vector defines the storage contract shared by the qdrant, milvus
// and in-memory backends.
package vector

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Payload is the metadata stored alongside a vector.
type Payload map[string]any

// String returns the value at key rendered as a string, or "".
func (p Payload) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch tv := v.(type) {
	case string:
		return tv
	case int64:
		return strconv.FormatInt(tv, 10)
	case int:
		return strconv.Itoa(tv)
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(tv)
	default:
		return fmt.Sprint(tv)
	}
}

type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

type Hit struct {
	ID      string
	Score   float32
	Payload Payload
}

// Filter is a conjunction of exact-match conditions on payload keys.
type Filter map[string]string

// Store is a similarity index partitioned into named collections.
//
// Search returns at most k hits in descending score order, applying the
// filter before ranking. An empty collection yields an empty slice.
// Upsert is idempotent per point id and returns once the write is durable.
// Scroll returns one unordered page of payloads.
type Store interface {
	EnsureCollection(ctx context.Context, collection string, dim int, keywordFields ...string) error
	Search(ctx context.Context, collection string, vector []float32, k int, filter Filter) ([]Hit, error)
	Upsert(ctx context.Context, collection string, point Point) error
	Scroll(ctx context.Context, collection string, limit int) ([]Payload, error)
	Close() error
}

// NewPointID returns a fresh point id. Every write gets its own id so
// repeated submissions of the same ticket are stored side by side.
func NewPointID() string {
	return uuid.NewString()
}
