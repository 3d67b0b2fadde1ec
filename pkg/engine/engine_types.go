package engine

import (
	"context"
	"errors"

	"github.com/dd0wney/cluso-triangles/pkg/logging"
	"github.com/dd0wney/cluso-triangles/pkg/metrics"
	"github.com/dd0wney/cluso-triangles/pkg/segment"
)

var (
	// ErrInvalidStage is returned for a stage without name, map or reduce function
	ErrInvalidStage = errors.New("invalid stage")
	// ErrEngineClosed is returned when running a stage after Cleanup
	ErrEngineClosed = errors.New("engine cleaned up")
)

// Emitter writes one output record
type Emitter func(key, value []byte) error

// MapFunc transforms one input record into zero or more keyed records
type MapFunc func(ctx context.Context, rec segment.Record, emit Emitter) error

// ReduceFunc is called once per distinct key with every value emitted for it
type ReduceFunc func(ctx context.Context, key []byte, values [][]byte, emit Emitter) error

// CompareFunc orders shuffle keys. Keys comparing equal are reduced together.
type CompareFunc func(a, b []byte) int

// Stage is one transform-shuffle-reduce step of a job
type Stage struct {
	Name     string
	Map      MapFunc
	Reduce   ReduceFunc
	Reducers int         // number of reduce partitions, at least 1
	Compare  CompareFunc // nil means bytes.Compare
}

// Options configures an Engine
type Options struct {
	WorkDir          string
	JobID            string // generated when empty
	Workers          int
	MaxAttempts      int
	KeepIntermediate bool
	Logger           logging.Logger
	Metrics          *metrics.Registry
}

// StageStats summarises a finished stage
type StageStats struct {
	MapTasks          int
	ReduceTasks       int
	ShuffleRecords    uint64
	ShuffleRaw        uint64
	ShuffleCompressed uint64
	OutputRecords     uint64
}

// permanentError marks a task failure that must not be retried
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the engine fails the task without retrying it
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
