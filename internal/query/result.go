package query

type StageStatus string

const (
	StageOK       StageStatus = "ok"
	StageFallback StageStatus = "fallback"
	StageFailed   StageStatus = "failed"
)

// StageResult is the typed outcome of one chat stage. A fallback carries
// the substitute value together with the error that caused it.
type StageResult[T any] struct {
	Stage  string
	Status StageStatus
	Value  T
	Err    error
}

func stageOK[T any](stage string, v T) StageResult[T] {
	return StageResult[T]{Stage: stage, Status: StageOK, Value: v}
}

func stageFallback[T any](stage string, v T, err error) StageResult[T] {
	return StageResult[T]{Stage: stage, Status: StageFallback, Value: v, Err: err}
}

func stageFailed[T any](stage string, err error) StageResult[T] {
	return StageResult[T]{Stage: stage, Status: StageFailed, Err: err}
}

// Outcome drops the value so results of different stages can be listed
// together.
func (r StageResult[T]) Outcome() Outcome {
	o := Outcome{Stage: r.Stage, Status: r.Status}
	if r.Err != nil {
		o.Error = r.Err.Error()
	}
	return o
}

type Outcome struct {
	Stage  string      `json:"stage"`
	Status StageStatus `json:"status"`
	Error  string      `json:"error,omitempty"`
}
