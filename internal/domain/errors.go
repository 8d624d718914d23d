package domain

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Adapters wrap their failures with one of these so
// callers can branch with errors.Is.
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrEmbeddingFailure      = errors.New("embedding failure")
	ErrClassificationFailure = errors.New("classification failure")
	ErrSearchFailure         = errors.New("search failure")
	ErrWriteFailure          = errors.New("write failure")
	ErrGenerationFailure     = errors.New("generation failure")
	ErrParseFailure          = errors.New("parse failure")
)

// StageError records which processing stage failed and with what kind.
type StageError struct {
	Stage string
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewStageError creates a StageError. A nil kind defaults to the kind
// already carried by err, if any.
func NewStageError(stage string, kind, err error) *StageError {
	if kind == nil {
		kind = KindOf(err)
	}
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

var kinds = []error{
	ErrInvalidInput,
	ErrEmbeddingFailure,
	ErrClassificationFailure,
	ErrSearchFailure,
	ErrWriteFailure,
	ErrGenerationFailure,
	ErrParseFailure,
}

// KindOf returns the sentinel kind wrapped by err, or nil.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
