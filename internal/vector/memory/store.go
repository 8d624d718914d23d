// Package memory is an in-process vector store with brute-force cosine
// ranking. It backs local runs and tests.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/vector"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/logger"
)

type collection struct {
	dim    int
	order  []string
	points map[string]vector.Point
}

type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

var _ vector.Store = (*Store)(nil)

func New() *Store {
	logger.Info("In-memory vector store initialized")
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) EnsureCollection(_ context.Context, name string, dim int, _ ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[name]; !ok {
		s.collections[name] = &collection{dim: dim, points: make(map[string]vector.Point)}
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, name string, p vector.Point) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWriteFailure, err)
	}
	if p.ID == "" {
		return fmt.Errorf("%w: point id is empty", domain.ErrWriteFailure)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		c = &collection{dim: len(p.Vector), points: make(map[string]vector.Point)}
		s.collections[name] = c
	}
	if c.dim > 0 && len(p.Vector) != c.dim {
		return fmt.Errorf("%w: vector dimension %d does not match collection %s (%d)",
			domain.ErrWriteFailure, len(p.Vector), name, c.dim)
	}

	if _, exists := c.points[p.ID]; !exists {
		c.order = append(c.order, p.ID)
	}
	c.points[p.ID] = vector.Point{
		ID:      p.ID,
		Vector:  append([]float32(nil), p.Vector...),
		Payload: clonePayload(p.Payload),
	}

	logger.Debug("Point upserted", zap.String("collection", name), zap.String("id", p.ID))
	return nil
}

func (s *Store) Search(ctx context.Context, name string, query []float32, k int, filter vector.Filter) ([]vector.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSearchFailure, err)
	}
	if k <= 0 {
		return []vector.Hit{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return []vector.Hit{}, nil
	}
	if c.dim > 0 && len(query) != c.dim {
		return nil, fmt.Errorf("%w: query dimension %d does not match collection %s (%d)",
			domain.ErrSearchFailure, len(query), name, c.dim)
	}

	hits := make([]vector.Hit, 0, len(c.order))
	for _, id := range c.order {
		p := c.points[id]
		if !matches(p.Payload, filter) {
			continue
		}
		hits = append(hits, vector.Hit{
			ID:      p.ID,
			Score:   cosine(query, p.Vector),
			Payload: clonePayload(p.Payload),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *Store) Scroll(ctx context.Context, name string, limit int) ([]vector.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSearchFailure, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return []vector.Payload{}, nil
	}

	out := make([]vector.Payload, 0, min(limit, len(c.order)))
	for _, id := range c.order {
		if len(out) >= limit {
			break
		}
		out = append(out, clonePayload(c.points[id].Payload))
	}
	return out, nil
}

// Len reports the number of points in a collection.
func (s *Store) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.collections[name]; ok {
		return len(c.order)
	}
	return 0
}

func (s *Store) Close() error { return nil }

func matches(p vector.Payload, f vector.Filter) bool {
	for k, want := range f {
		if p.String(k) != want {
			return false
		}
		if _, ok := p[k]; !ok {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func clonePayload(p vector.Payload) vector.Payload {
	out := make(vector.Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
