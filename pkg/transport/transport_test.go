package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-triangles/pkg/algorithms"
	"github.com/dd0wney/cluso-triangles/pkg/engine"
	"github.com/dd0wney/cluso-triangles/pkg/graph"
	"github.com/dd0wney/cluso-triangles/pkg/metrics"
	"github.com/dd0wney/cluso-triangles/pkg/partition"
	"github.com/dd0wney/cluso-triangles/pkg/ttp"
)

var _ ttp.GroupCounter = (*RemoteCounter)(nil)

var addrSeq atomic.Int64

func inprocAddrs() (tasks, results string) {
	n := addrSeq.Add(1)
	return fmt.Sprintf("inproc://ttp-tasks-%d", n), fmt.Sprintf("inproc://ttp-results-%d", n)
}

func edge(u, v uint64) graph.Edge {
	e, _ := graph.NewEdge(graph.Vertex(u), graph.Vertex(v))
	return e
}

func randomEdges(rng *rand.Rand, n, vertices int) []graph.Edge {
	seen := make(map[graph.Edge]bool)
	var edges []graph.Edge
	for len(edges) < n {
		e, ok := graph.NewEdge(graph.Vertex(rng.Intn(vertices)), graph.Vertex(rng.Intn(vertices)))
		if !ok || seen[e] {
			continue
		}
		seen[e] = true
		edges = append(edges, e)
	}
	return edges
}

// startCluster starts a coordinator and the given number of workers
func startCluster(t *testing.T, config RemoteConfig, workers int, reg *metrics.Registry) *RemoteCounter {
	t.Helper()
	config.TasksAddr, config.ResultsAddr = inprocAddrs()

	factory := NewMangosSocketFactory()
	rc, err := NewRemoteCounter(factory, config, nil, reg)
	require.NoError(t, err)
	require.NoError(t, rc.Start())
	t.Cleanup(func() { rc.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		w, err := NewWorker(factory, WorkerConfig{
			TasksAddr:   config.TasksAddr,
			ResultsAddr: config.ResultsAddr,
			Workers:     2,
		}, nil, nil)
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return rc
}

func TestTaskRoundTrip(t *testing.T) {
	task := &GroupTask{
		ID:         uuid.New(),
		Group:      partition.TripleGroup(4, 1, 9),
		Strategy:   partition.StrategyHash,
		Partitions: 12,
		Edges:      []graph.Edge{edge(1, 2), edge(2, 1<<40), edge(7, 1<<63)},
	}

	got, err := DecodeTask(EncodeTask(task))
	require.NoError(t, err)
	assert.Equal(t, task, got)
}

func TestEmptyTaskRoundTrip(t *testing.T) {
	task := &GroupTask{ID: uuid.New(), Group: partition.PairGroup(0, 1), Strategy: "modulo", Partitions: 2}

	got, err := DecodeTask(EncodeTask(task))
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Empty(t, got.Edges)
}

func TestResultRoundTrip(t *testing.T) {
	for _, res := range []*GroupResult{
		{ID: uuid.New(), Group: partition.PairGroup(2, 3), Counts: algorithms.TypeCounts{Type1: 7, TypeSpanning: 1 << 40}},
		{ID: uuid.New(), Group: partition.TripleGroup(0, 1, 2), Err: "unknown partition strategy"},
	} {
		got, err := DecodeResult(EncodeResult(res))
		require.NoError(t, err)
		assert.Equal(t, res, got)
	}
}

func TestDecodeRejectsInvalidFrames(t *testing.T) {
	task := EncodeTask(&GroupTask{
		ID: uuid.New(), Group: partition.PairGroup(0, 1), Strategy: "modulo", Partitions: 2,
		Edges: []graph.Edge{edge(1, 2)},
	})
	result := EncodeResult(&GroupResult{ID: uuid.New(), Group: partition.PairGroup(0, 1)})

	_, err := DecodeTask([]byte("not snappy"))
	assert.ErrorIs(t, err, ErrInvalidMessage)

	// Wrong message type
	_, err = DecodeTask(result)
	assert.ErrorIs(t, err, ErrInvalidMessage)
	_, err = DecodeResult(task)
	assert.ErrorIs(t, err, ErrInvalidMessage)

	// Every truncation of the raw frame must fail cleanly
	raw, err := decodeRaw(task)
	require.NoError(t, err)
	for n := 0; n < len(raw); n++ {
		_, err := DecodeTask(encodeRaw(raw[:n]))
		assert.ErrorIs(t, err, ErrInvalidMessage, "truncated to %d bytes", n)
	}

	// Trailing garbage
	_, err = DecodeTask(encodeRaw(append(raw, 0)))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestCount(t *testing.T) {
	triangle := []graph.Edge{edge(1, 2), edge(2, 3), edge(1, 3)}

	counts, err := Count(&GroupTask{Group: partition.PairGroup(0, 1), Strategy: "modulo", Partitions: 2, Edges: triangle})
	require.NoError(t, err)
	assert.Equal(t, algorithms.TypeCounts{TypeSpanning: 1}, counts)

	_, err = Count(&GroupTask{Group: partition.PairGroup(0, 1), Strategy: "range", Partitions: 2})
	assert.Error(t, err)

	_, err = Count(&GroupTask{Group: partition.PairGroup(0, 5), Strategy: "modulo", Partitions: 3})
	assert.Error(t, err)
}

func TestRemoteMatchesLocal(t *testing.T) {
	const p = 4
	rc := startCluster(t, RemoteConfig{Strategy: "modulo", Partitions: p, TaskTimeout: 5 * time.Second}, 2, nil)
	s, _ := partition.NewModuloPartition(p)

	rng := rand.New(rand.NewSource(7))
	var wg sync.WaitGroup
	for i, g := range partition.AllGroups(p) {
		g := g
		edges := randomEdges(rng, 80+i, 30)
		want := algorithms.CountGroupTriangles(edges, s)
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := rc.CountGroup(context.Background(), g, edges)
			assert.NoError(t, err)
			assert.Equal(t, want, got, "group %s", g)
		}()
	}
	wg.Wait()
}

func TestRemoteWorkerError(t *testing.T) {
	rc := startCluster(t, RemoteConfig{Strategy: "range", Partitions: 2, TaskTimeout: 5 * time.Second}, 1, nil)

	_, err := rc.CountGroup(context.Background(), partition.PairGroup(0, 1), []graph.Edge{edge(1, 2)})
	assert.ErrorIs(t, err, ErrRemoteTask)
	assert.Contains(t, err.Error(), "range")
}

func TestRemoteTimeout(t *testing.T) {
	reg := metrics.NewRegistry()
	rc := startCluster(t, RemoteConfig{Strategy: "modulo", Partitions: 2, TaskTimeout: 100 * time.Millisecond}, 0, reg)

	start := time.Now()
	_, err := rc.CountGroup(context.Background(), partition.PairGroup(0, 1), nil)
	assert.ErrorIs(t, err, ErrTaskTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)

	m := &dto.Metric{}
	require.NoError(t, reg.RemoteTasksTotal.WithLabelValues("timeout").Write(m))
	assert.Equal(t, 1.0, m.GetCounter().GetValue())

	require.NoError(t, reg.RemoteTasksPending.Write(m))
	assert.Equal(t, 0.0, m.GetGauge().GetValue())
}

func TestWorkerLastTask(t *testing.T) {
	tasks, results := inprocAddrs()
	factory := NewMangosSocketFactory()

	rc, err := NewRemoteCounter(factory, RemoteConfig{
		TasksAddr:   tasks,
		ResultsAddr: results,
		Strategy:    "modulo",
		Partitions:  2,
		TaskTimeout: 5 * time.Second,
	}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, rc.Start())
	defer rc.Close()

	w, err := NewWorker(factory, WorkerConfig{TasksAddr: tasks, ResultsAddr: results, Workers: 1}, nil, nil)
	require.NoError(t, err)
	assert.True(t, w.LastTask().IsZero())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	before := time.Now()
	_, err = rc.CountGroup(context.Background(), partition.PairGroup(0, 1), []graph.Edge{edge(0, 1)})
	require.NoError(t, err)

	cancel()
	<-done
	assert.Equal(t, uint64(1), w.Processed())
	assert.False(t, w.LastTask().Before(before))
}

func TestRemoteCancellation(t *testing.T) {
	rc := startCluster(t, RemoteConfig{Strategy: "modulo", Partitions: 2, TaskTimeout: time.Minute}, 0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := rc.CountGroup(ctx, partition.PairGroup(0, 1), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRemoteNotRunning(t *testing.T) {
	tasks, results := inprocAddrs()
	rc, err := NewRemoteCounter(NewMangosSocketFactory(), RemoteConfig{TasksAddr: tasks, ResultsAddr: results}, nil, nil)
	require.NoError(t, err)
	defer rc.Close()

	_, err = rc.CountGroup(context.Background(), partition.PairGroup(0, 1), nil)
	assert.ErrorIs(t, err, ErrNotRunning)
}

type stringSource string

func (s stringSource) Name() string { return "inline" }

func (s stringSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(s))), nil
}

func TestPipelineWithRemoteWorkers(t *testing.T) {
	const p = 3
	var b strings.Builder
	for u := 0; u < 9; u++ {
		for v := u + 1; v < 9; v++ {
			fmt.Fprintf(&b, "%d %d\n", u, v)
		}
	}

	rc := startCluster(t, RemoteConfig{Strategy: "modulo", Partitions: p, TaskTimeout: 5 * time.Second}, 2, nil)
	eng, err := engine.New(engine.Options{WorkDir: t.TempDir(), Workers: 4, MaxAttempts: 2})
	require.NoError(t, err)
	pipeline, err := ttp.NewPipeline(eng, ttp.Options{Partitions: p, Reducers: 4, Splits: 2, Counter: rc})
	require.NoError(t, err)

	report, err := pipeline.Run(context.Background(), stringSource(b.String()))
	require.NoError(t, err)
	// K9 has C(9,3) triangles
	assert.Equal(t, uint64(84), report.Result.Total)
}

func TestIsTimeoutAndClosed(t *testing.T) {
	assert.False(t, IsTimeout(errors.New("other")))
	assert.False(t, IsClosed(nil))
}
