package classify

import (
	"context"
	"fmt"
	"sync"
)

// Kind names one of the four classification tasks.
type Kind string

const (
	KindPriority  Kind = "priority"
	KindKeyword   Kind = "keyword"
	KindTopic     Kind = "topic"
	KindSentiment Kind = "sentiment"
)

var AllKinds = []Kind{KindPriority, KindKeyword, KindTopic, KindSentiment}

// Model produces one label for a text.
type Model interface {
	Predict(ctx context.Context, text string) (string, error)
}

// Loader resolves the model bound to a kind.
type Loader func(kind Kind) (Model, error)

type entry struct {
	once  sync.Once
	model Model
	err   error
}

// Registry resolves each kind's model at most once, on first use, and
// reuses it for the life of the process. Concurrent first calls for the
// same kind block until the single load finishes.
type Registry struct {
	load    Loader
	entries map[Kind]*entry
}

func NewRegistry(load Loader) *Registry {
	entries := make(map[Kind]*entry, len(AllKinds))
	for _, k := range AllKinds {
		entries[k] = &entry{}
	}
	return &Registry{load: load, entries: entries}
}

func (r *Registry) Model(kind Kind) (Model, error) {
	e, ok := r.entries[kind]
	if !ok {
		return nil, fmt.Errorf("unknown classification kind %q", kind)
	}
	e.once.Do(func() {
		e.model, e.err = r.load(kind)
		if e.err == nil && e.model == nil {
			e.err = fmt.Errorf("no model bound to %q", kind)
		}
	})
	return e.model, e.err
}

// Preload resolves every kind eagerly and returns the first failure.
func (r *Registry) Preload() error {
	for _, k := range AllKinds {
		if _, err := r.Model(k); err != nil {
			return fmt.Errorf("load %s model: %w", k, err)
		}
	}
	return nil
}
