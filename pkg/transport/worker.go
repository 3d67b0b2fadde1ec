package transport

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-triangles/pkg/algorithms"
	"github.com/dd0wney/cluso-triangles/pkg/logging"
	"github.com/dd0wney/cluso-triangles/pkg/metrics"
	"github.com/dd0wney/cluso-triangles/pkg/parallel"
	"github.com/dd0wney/cluso-triangles/pkg/partition"
)

// resultSendTimeout bounds how long a finished result waits for the coordinator
const resultSendTimeout = 30 * time.Second

// WorkerConfig configures a counting worker
type WorkerConfig struct {
	TasksAddr   string // coordinator PUSH address to dial
	ResultsAddr string // coordinator PULL address to dial
	Workers     int
}

// Worker pulls group tasks, counts them on a worker pool and pushes results back
type Worker struct {
	config    WorkerConfig
	tasks     Endpoint
	results   Endpoint
	logger    logging.Logger
	metrics   *metrics.Registry
	processed atomic.Uint64
	lastTask  atomic.Int64 // unix nanos of the last answered task
}

// NewWorker creates the worker sockets
func NewWorker(factory SocketFactory, config WorkerConfig, logger logging.Logger, reg *metrics.Registry) (*Worker, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	tasks, err := factory.NewPullSocket()
	if err != nil {
		return nil, err
	}
	results, err := factory.NewPushSocket()
	if err != nil {
		tasks.Close()
		return nil, err
	}

	return &Worker{
		config:  config,
		tasks:   tasks,
		results: results,
		logger:  logger.With(logging.Component("worker")),
		metrics: reg,
	}, nil
}

// Processed returns the number of tasks answered
func (w *Worker) Processed() uint64 {
	return w.processed.Load()
}

// LastTask returns when the last task was answered, zero before the first
func (w *Worker) LastTask() time.Time {
	n := w.lastTask.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Run dials the coordinator and serves tasks until ctx is done
func (w *Worker) Run(ctx context.Context) error {
	defer w.tasks.Close()
	defer w.results.Close()

	if err := w.tasks.Dial(w.config.TasksAddr); err != nil {
		return fmt.Errorf("dial %s: %w", w.config.TasksAddr, err)
	}
	if err := w.results.Dial(w.config.ResultsAddr); err != nil {
		return fmt.Errorf("dial %s: %w", w.config.ResultsAddr, err)
	}
	if err := w.tasks.SetRecvDeadline(pollInterval); err != nil {
		return err
	}
	if err := w.results.SetSendDeadline(resultSendTimeout); err != nil {
		return err
	}

	pool, err := parallel.NewWorkerPool(w.config.Workers, w.logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	w.logger.Info("worker started",
		logging.String("tasks_addr", w.config.TasksAddr),
		logging.String("results_addr", w.config.ResultsAddr),
		logging.Int("workers", pool.Workers()))

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopping",
				logging.Uint64("processed", w.processed.Load()),
				logging.Uint64("panics", pool.Panics()))
			return nil
		}

		msg, err := w.tasks.Recv()
		if err != nil {
			if IsClosed(err) {
				return err
			}
			continue // Timeout
		}

		task, err := DecodeTask(msg)
		if err != nil {
			w.logger.Warn("dropping undecodable task", logging.Error(err))
			continue
		}

		if err := pool.Submit(ctx, func() { w.handle(task) }); err != nil {
			if errors.Is(err, parallel.ErrPoolClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (w *Worker) handle(task *GroupTask) {
	start := time.Now()
	res := &GroupResult{ID: task.ID, Group: task.Group}

	counts, err := Count(task)
	if err != nil {
		res.Err = err.Error()
		w.logger.Warn("task failed", logging.Group(task.Group.String()), logging.Error(err))
	} else {
		res.Counts = counts
		if w.metrics != nil {
			w.metrics.RecordGroup(len(task.Edges), counts.Type1, counts.TypeSpanning, time.Since(start))
		}
	}

	if err := w.results.Send(EncodeResult(res)); err != nil {
		w.logger.Error("failed to send result", logging.Group(task.Group.String()), logging.Error(err))
		return
	}
	w.processed.Add(1)
	w.lastTask.Store(time.Now().UnixNano())
	w.logger.Debug("task completed",
		logging.Group(task.Group.String()),
		logging.Count(len(task.Edges)),
		logging.Latency(time.Since(start)))
}

// Count runs the local triangle count a task describes
func Count(task *GroupTask) (algorithms.TypeCounts, error) {
	s, err := partition.NewStrategy(task.Strategy, task.Partitions)
	if err != nil {
		return algorithms.TypeCounts{}, err
	}
	for _, p := range task.Group.Partitions() {
		if p >= task.Partitions {
			return algorithms.TypeCounts{}, fmt.Errorf("group %s outside %d partitions", task.Group, task.Partitions)
		}
	}
	return algorithms.CountGroupTriangles(task.Edges, s), nil
}
