// Package engine runs map, shuffle and reduce stages over persisted segment files.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-triangles/pkg/logging"
	"github.com/dd0wney/cluso-triangles/pkg/segment"
)

// Engine executes stages of one job. Each stage writes its output under
// <WorkDir>/<JobID>/<stage>/ and the next stage reads it from there.
type Engine struct {
	jobID   string
	jobDir  string
	opts    Options
	logger  logging.Logger
	mu      sync.Mutex
	stats   map[string]StageStats
	cleaned bool
}

// New creates the job directory and returns an engine for it
func New(opts Options) (*Engine, error) {
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if opts.JobID == "" {
		opts.JobID = uuid.NewString()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	jobDir := filepath.Join(opts.WorkDir, opts.JobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return nil, fmt.Errorf("create job directory: %w", err)
	}

	return &Engine{
		jobID:  opts.JobID,
		jobDir: jobDir,
		opts:   opts,
		logger: opts.Logger.With(logging.Component("engine"), logging.JobID(opts.JobID)),
		stats:  make(map[string]StageStats),
	}, nil
}

// JobID returns the id of the job this engine runs
func (e *Engine) JobID() string {
	return e.jobID
}

// Dir returns the job directory
func (e *Engine) Dir() string {
	return e.jobDir
}

// Stats returns the statistics of a finished stage
func (e *Engine) Stats(stage string) (StageStats, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.stats[stage]
	return s, ok
}

// Cleanup removes the job directory unless intermediate data is kept
func (e *Engine) Cleanup() error {
	e.mu.Lock()
	e.cleaned = true
	e.mu.Unlock()

	if e.opts.KeepIntermediate {
		e.logger.Info("keeping intermediate data", logging.Path(e.jobDir))
		return nil
	}
	return os.RemoveAll(e.jobDir)
}

// Run executes one stage over input. Every map task finishes before the
// first reduce task starts. The first task that fails after all attempts
// cancels the remaining tasks and is returned.
func (e *Engine) Run(ctx context.Context, stage Stage, input Dataset) (Dataset, error) {
	if stage.Name == "" || stage.Map == nil || stage.Reduce == nil {
		return Dataset{}, fmt.Errorf("%w: %q", ErrInvalidStage, stage.Name)
	}
	e.mu.Lock()
	cleaned := e.cleaned
	e.mu.Unlock()
	if cleaned {
		return Dataset{}, ErrEngineClosed
	}
	if stage.Reducers <= 0 {
		stage.Reducers = 1
	}
	if stage.Compare == nil {
		stage.Compare = bytes.Compare
	}

	start := time.Now()
	logger := e.logger.With(logging.Stage(stage.Name))
	logger.Info("stage started",
		logging.Int("map_tasks", len(input.Paths)),
		logging.Int("reducers", stage.Reducers))

	stageDir := filepath.Join(e.jobDir, stage.Name)
	spillDir := filepath.Join(stageDir, "spill")
	if err := os.MkdirAll(spillDir, 0o755); err != nil {
		return Dataset{}, fmt.Errorf("create stage directory: %w", err)
	}

	stats := StageStats{MapTasks: len(input.Paths), ReduceTasks: stage.Reducers}
	var statsMu sync.Mutex

	// Map phase
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, path := range input.Paths {
		i, path := i, path
		g.Go(func() error {
			return e.runTask(gctx, logger, stage.Name, "map", i, func(ctx context.Context, attempt int) error {
				st, err := e.mapTask(ctx, stage, i, attempt, path, spillDir)
				if err != nil {
					return err
				}
				statsMu.Lock()
				stats.ShuffleRecords += st.Records
				stats.ShuffleRaw += st.BytesUncompressed
				stats.ShuffleCompressed += st.BytesCompressed
				statsMu.Unlock()
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("map phase failed", logging.Error(err))
		return Dataset{}, err
	}
	if e.opts.Metrics != nil {
		e.opts.Metrics.RecordShuffle(stage.Name, stats.ShuffleRaw, stats.ShuffleCompressed)
	}
	logger.Debug("shuffle complete",
		logging.Uint64("records", stats.ShuffleRecords),
		logging.Uint64("bytes_raw", stats.ShuffleRaw),
		logging.Uint64("bytes_compressed", stats.ShuffleCompressed))

	// Reduce phase
	output := Dataset{Name: stage.Name, Paths: make([]string, stage.Reducers)}
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for r := 0; r < stage.Reducers; r++ {
		r := r
		output.Paths[r] = filepath.Join(stageDir, fmt.Sprintf("part-%05d.seg", r))
		g.Go(func() error {
			return e.runTask(gctx, logger, stage.Name, "reduce", r, func(ctx context.Context, attempt int) error {
				n, err := e.reduceTask(ctx, stage, r, attempt, len(input.Paths), spillDir, output.Paths[r])
				if err != nil {
					return err
				}
				statsMu.Lock()
				stats.OutputRecords += n
				statsMu.Unlock()
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("reduce phase failed", logging.Error(err))
		return Dataset{}, err
	}

	if !e.opts.KeepIntermediate {
		if err := os.RemoveAll(spillDir); err != nil {
			logger.Warn("failed to remove spill directory", logging.Error(err))
		}
	}

	elapsed := time.Since(start)
	if e.opts.Metrics != nil {
		e.opts.Metrics.RecordStage(stage.Name, elapsed)
		e.opts.Metrics.RecordStageOutput(stage.Name, stats.OutputRecords)
	}
	e.mu.Lock()
	e.stats[stage.Name] = stats
	e.mu.Unlock()

	logger.Info("stage completed",
		logging.Latency(elapsed),
		logging.Uint64("output_records", stats.OutputRecords))
	return output, nil
}

func spillPath(dir string, mapIdx, reducer int) string {
	return filepath.Join(dir, fmt.Sprintf("map-%05d-r-%05d.seg", mapIdx, reducer))
}

func attemptPath(path string, attempt int) string {
	return fmt.Sprintf("%s.attempt-%d", path, attempt)
}

// partitionFor assigns a shuffle key to a reducer
func partitionFor(key []byte, reducers int) int {
	if reducers == 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % uint32(reducers))
}

// mapTask reads one input segment and spills emitted records into one
// attempt-scoped segment per reducer. Spills are renamed into place only
// after every record was written.
func (e *Engine) mapTask(ctx context.Context, stage Stage, idx, attempt int, input, spillDir string) (segment.Stats, error) {
	var total segment.Stats

	writers := make([]*segment.Writer, stage.Reducers)
	abort := func() {
		for _, w := range writers {
			if w != nil {
				w.Close()
				os.Remove(w.Path())
			}
		}
	}

	for r := range writers {
		w, err := segment.Create(attemptPath(spillPath(spillDir, idx, r), attempt))
		if err != nil {
			abort()
			return total, err
		}
		writers[r] = w
	}

	emit := func(key, value []byte) error {
		return writers[partitionFor(key, stage.Reducers)].Append(key, value)
	}

	var n int
	err := segment.ReadAll(input, func(rec segment.Record) error {
		n++
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return stage.Map(ctx, rec, emit)
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		abort()
		return total, err
	}

	for _, w := range writers {
		if err := w.Close(); err != nil {
			abort()
			return total, err
		}
	}
	for r, w := range writers {
		if err := os.Rename(w.Path(), spillPath(spillDir, idx, r)); err != nil {
			abort()
			return total, fmt.Errorf("commit spill: %w", err)
		}
		st := w.Stats()
		total.Records += st.Records
		total.BytesUncompressed += st.BytesUncompressed
		total.BytesCompressed += st.BytesCompressed
	}
	return total, nil
}

// reduceTask loads every spill of one reducer partition, sorts by the stage
// comparator and calls Reduce once per distinct key.
func (e *Engine) reduceTask(ctx context.Context, stage Stage, r, attempt, mapTasks int, spillDir, outPath string) (uint64, error) {
	var records []segment.Record
	for m := 0; m < mapTasks; m++ {
		err := segment.ReadAll(spillPath(spillDir, m, r), func(rec segment.Record) error {
			records = append(records, rec)
			return nil
		})
		if err != nil {
			return 0, err
		}
	}

	slices.SortStableFunc(records, func(a, b segment.Record) int {
		return stage.Compare(a.Key, b.Key)
	})

	tmp := attemptPath(outPath, attempt)
	w, err := segment.Create(tmp)
	if err != nil {
		return 0, err
	}
	fail := func(err error) (uint64, error) {
		w.Close()
		os.Remove(tmp)
		return 0, err
	}

	emit := func(key, value []byte) error {
		return w.Append(key, value)
	}

	for i := 0; i < len(records); {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		j := i + 1
		for j < len(records) && stage.Compare(records[i].Key, records[j].Key) == 0 {
			j++
		}
		values := make([][]byte, 0, j-i)
		for _, rec := range records[i:j] {
			values = append(values, rec.Value)
		}
		if err := stage.Reduce(ctx, records[i].Key, values, emit); err != nil {
			return fail(err)
		}
		i = j
	}

	if err := w.Close(); err != nil {
		return fail(err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		return fail(fmt.Errorf("commit output: %w", err))
	}
	return w.Stats().Records, nil
}

// runTask runs fn until it succeeds, the context ends, it fails permanently
// or MaxAttempts is exhausted.
func (e *Engine) runTask(ctx context.Context, logger logging.Logger, stage, phase string, idx int, fn func(context.Context, int) error) error {
	var lastErr error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx, attempt)
		if e.opts.Metrics != nil {
			e.opts.Metrics.RecordTaskAttempt(stage, phase, err)
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		logger.Warn("task attempt failed",
			logging.String("phase", phase),
			logging.Task(idx),
			logging.Attempt(attempt),
			logging.Error(err))
		if IsPermanent(err) {
			break
		}
	}
	return fmt.Errorf("%s task %d of stage %s failed: %w", phase, idx, stage, lastErr)
}
