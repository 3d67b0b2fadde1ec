package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-triangles/pkg/algorithms"
	"github.com/dd0wney/cluso-triangles/pkg/graph"
	"github.com/dd0wney/cluso-triangles/pkg/logging"
	"github.com/dd0wney/cluso-triangles/pkg/metrics"
	"github.com/dd0wney/cluso-triangles/pkg/partition"
)

var (
	// ErrTaskTimeout is returned when no worker answered a task in time, twice
	ErrTaskTimeout = errors.New("remote task timed out")
	// ErrRemoteTask wraps an error reported by a worker
	ErrRemoteTask = errors.New("remote task failed")
	// ErrNotRunning is returned when counting before Start or after Close
	ErrNotRunning = errors.New("remote counter not running")
)

// pollInterval bounds how long a receive loop blocks before checking for shutdown
const pollInterval = 200 * time.Millisecond

// RemoteConfig configures the coordinator side
type RemoteConfig struct {
	TasksAddr   string // PUSH, e.g. "tcp://0.0.0.0:7100"
	ResultsAddr string // PULL, e.g. "tcp://0.0.0.0:7101"
	Strategy    string
	Partitions  int
	TaskTimeout time.Duration
}

// RemoteCounter sends groups to workers and waits for their counts.
// Results are matched to tasks by id, so late duplicates are dropped.
type RemoteCounter struct {
	config  RemoteConfig
	tasks   Endpoint
	results Endpoint
	logger  logging.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	pending map[uuid.UUID]chan *GroupResult
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewRemoteCounter creates the coordinator sockets
func NewRemoteCounter(factory SocketFactory, config RemoteConfig, logger logging.Logger, reg *metrics.Registry) (*RemoteCounter, error) {
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = time.Minute
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	tasks, err := factory.NewPushSocket()
	if err != nil {
		return nil, err
	}
	results, err := factory.NewPullSocket()
	if err != nil {
		tasks.Close()
		return nil, err
	}

	return &RemoteCounter{
		config:  config,
		tasks:   tasks,
		results: results,
		logger:  logger.With(logging.Component("remote-counter")),
		metrics: reg,
		pending: make(map[uuid.UUID]chan *GroupResult),
		stopCh:  make(chan struct{}),
	}, nil
}

// Start binds both sockets and begins receiving results
func (c *RemoteCounter) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	if err := c.tasks.Listen(c.config.TasksAddr); err != nil {
		return fmt.Errorf("listen %s: %w", c.config.TasksAddr, err)
	}
	if err := c.results.Listen(c.config.ResultsAddr); err != nil {
		return fmt.Errorf("listen %s: %w", c.config.ResultsAddr, err)
	}
	if err := c.tasks.SetSendDeadline(c.config.TaskTimeout); err != nil {
		return err
	}
	if err := c.results.SetRecvDeadline(pollInterval); err != nil {
		return err
	}

	c.running = true
	c.wg.Add(1)
	go c.receiveLoop()

	c.logger.Info("remote counter started",
		logging.String("tasks_addr", c.config.TasksAddr),
		logging.String("results_addr", c.config.ResultsAddr))
	return nil
}

// Close stops receiving and closes both sockets
func (c *RemoteCounter) Close() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		c.tasks.Close()
		c.results.Close()
		return nil
	}
	c.running = false
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()
	c.tasks.Close()
	c.results.Close()
	c.logger.Info("remote counter stopped")
	return nil
}

// CountGroup sends the group to a worker and waits for its counts.
// A task that times out is sent once more under the same id.
func (c *RemoteCounter) CountGroup(ctx context.Context, key partition.GroupKey, edges []graph.Edge) (algorithms.TypeCounts, error) {
	task := &GroupTask{
		ID:         uuid.New(),
		Group:      key,
		Strategy:   c.config.Strategy,
		Partitions: c.config.Partitions,
		Edges:      edges,
	}
	frame := EncodeTask(task)

	ch := make(chan *GroupResult, 1)
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return algorithms.TypeCounts{}, ErrNotRunning
	}
	c.pending[task.ID] = ch
	c.mu.Unlock()
	c.setPending(1)

	defer func() {
		c.mu.Lock()
		delete(c.pending, task.ID)
		c.mu.Unlock()
		c.setPending(-1)
	}()

	start := time.Now()
	for attempt := 1; attempt <= 2; attempt++ {
		if err := c.tasks.Send(frame); err != nil {
			if !IsTimeout(err) {
				c.record("error", start)
				return algorithms.TypeCounts{}, fmt.Errorf("send task %s: %w", key, err)
			}
			c.logger.Warn("no worker accepted task",
				logging.Group(key.String()),
				logging.Attempt(attempt))
			continue
		}

		timer := time.NewTimer(c.config.TaskTimeout)
		select {
		case res := <-ch:
			timer.Stop()
			if res.Err != "" {
				c.record("error", start)
				return algorithms.TypeCounts{}, fmt.Errorf("%w: group %s: %s", ErrRemoteTask, key, res.Err)
			}
			c.record("ok", start)
			return res.Counts, nil
		case <-ctx.Done():
			timer.Stop()
			c.record("canceled", start)
			return algorithms.TypeCounts{}, ctx.Err()
		case <-timer.C:
			c.logger.Warn("task timed out",
				logging.Group(key.String()),
				logging.Attempt(attempt),
				logging.Duration("timeout", c.config.TaskTimeout))
		}
	}

	c.record("timeout", start)
	return algorithms.TypeCounts{}, fmt.Errorf("%w: group %s", ErrTaskTimeout, key)
}

func (c *RemoteCounter) record(status string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordRemoteTask(status, time.Since(start))
	}
}

func (c *RemoteCounter) setPending(delta float64) {
	if c.metrics != nil {
		c.metrics.RemoteTasksPending.Add(delta)
	}
}

func (c *RemoteCounter) receiveLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		msg, err := c.results.Recv()
		if err != nil {
			if IsClosed(err) {
				return
			}
			continue // Timeout
		}

		res, err := DecodeResult(msg)
		if err != nil {
			c.logger.Warn("dropping undecodable result", logging.Error(err))
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[res.ID]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("dropping result for unknown task", logging.String("task_id", res.ID.String()))
			continue
		}

		select {
		case ch <- res:
		default: // duplicate answer after a resubmit
		}
	}
}
