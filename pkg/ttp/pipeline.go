// Package ttp counts the triangles of an edge list with the
// Triangle-Type-Partition scheme: canonicalize, replicate edges into
// partition groups and count each group locally, then aggregate and correct.
package ttp

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dd0wney/cluso-triangles/pkg/engine"
	"github.com/dd0wney/cluso-triangles/pkg/logging"
	"github.com/dd0wney/cluso-triangles/pkg/metrics"
	"github.com/dd0wney/cluso-triangles/pkg/partition"
	"github.com/dd0wney/cluso-triangles/pkg/segment"
)

// Source yields the raw edge list
type Source interface {
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Options configures a Pipeline
type Options struct {
	Partitions int
	Strategy   string // partition.StrategyModulo when empty
	Reducers   int
	Splits     int
	Explain    bool
	Counter    GroupCounter // a LocalCounter when nil
	Logger     logging.Logger
	Metrics    *metrics.Registry
}

// StageTiming is the wall clock time of one stage
type StageTiming struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Records  uint64        `json:"records"`
}

// Report describes a finished run
type Report struct {
	JobID             string        `json:"job_id"`
	Input             string        `json:"input"`
	Algorithm         string        `json:"algorithm"`
	Strategy          string        `json:"strategy,omitempty"`
	Result            Result        `json:"result"`
	InputRecords      uint64        `json:"input_records"`
	MalformedRecords  uint64        `json:"malformed_records"`
	CanonicalEdges    uint64        `json:"canonical_edges"`
	ReplicatedRecords uint64        `json:"replicated_records"`
	Groups            uint64        `json:"groups"`
	Wedges            uint64        `json:"wedges,omitempty"`
	ClosedWedges      uint64        `json:"closed_wedges,omitempty"`
	Stages            []StageTiming `json:"stages"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
}

// Pipeline runs the three TTP stages on an engine
type Pipeline struct {
	opts     Options
	engine   *engine.Engine
	strategy partition.Strategy
	counter  GroupCounter
	logger   logging.Logger
	metrics  *metrics.Registry
}

// NewPipeline validates the partitioning before anything runs
func NewPipeline(eng *engine.Engine, opts Options) (*Pipeline, error) {
	if opts.Strategy == "" {
		opts.Strategy = partition.StrategyModulo
	}
	strategy, err := partition.NewStrategy(opts.Strategy, opts.Partitions)
	if err != nil {
		return nil, err
	}
	if opts.Reducers <= 0 {
		opts.Reducers = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	logger := opts.Logger.With(logging.Component("ttp"), logging.JobID(eng.JobID()))
	counter := opts.Counter
	if counter == nil {
		counter = NewLocalCounter(strategy, logger, opts.Explain)
	}

	return &Pipeline{
		opts:     opts,
		engine:   eng,
		strategy: strategy,
		counter:  counter,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// Strategy returns the vertex partition function in use
func (p *Pipeline) Strategy() partition.Strategy {
	return p.strategy
}

// Run executes ingest, canonicalize, replicate-count and aggregate in order.
// Any stage failure aborts the run; no partial count is returned.
func (p *Pipeline) Run(ctx context.Context, src Source) (*Report, error) {
	report := &Report{
		JobID:     p.engine.JobID(),
		Input:     src.Name(),
		Algorithm: AlgorithmTTP,
		Strategy:  p.opts.Strategy,
		StartedAt: time.Now(),
	}
	p.logger.Info("run started",
		logging.String("input", src.Name()),
		logging.Partitions(p.strategy.GetPartitionCount()),
		logging.String("strategy", p.opts.Strategy),
		logging.Int("max_replication", partition.MaxReplication(p.strategy.GetPartitionCount())))

	input, err := p.ingest(ctx, src, report)
	if err != nil {
		return nil, err
	}

	canonical, err := p.runStage(ctx, p.canonicalizeStage(), input, report)
	if err != nil {
		return nil, err
	}
	counts, err := p.runStage(ctx, p.replicateCountStage(), canonical, report)
	if err != nil {
		return nil, err
	}
	sums, err := p.runStage(ctx, p.aggregateStage(), counts, report)
	if err != nil {
		return nil, err
	}

	var agg Aggregator
	err = sums.Records(ctx, func(rec segment.Record) error {
		n, err := decodeCount(rec.Value)
		if err != nil {
			return err
		}
		return agg.AddTag(string(rec.Key), n)
	})
	if err != nil {
		return nil, fmt.Errorf("collect aggregate: %w", err)
	}

	result, err := agg.Finalize(p.strategy.GetPartitionCount())
	if err != nil {
		p.logger.Error("correction failed", logging.Error(err))
		return nil, err
	}

	report.Result = result
	report.Groups = agg.Groups()
	if st, ok := p.engine.Stats(StageCanonicalize); ok {
		report.MalformedRecords = report.InputRecords - st.ShuffleRecords
		report.CanonicalEdges = st.OutputRecords
	}
	if st, ok := p.engine.Stats(StageReplicateCount); ok {
		report.ReplicatedRecords = st.ShuffleRecords
	}
	if p.metrics != nil {
		p.metrics.CanonicalEdges.Set(float64(report.CanonicalEdges))
	}
	report.Duration = time.Since(report.StartedAt)

	p.logger.Info("run completed",
		logging.Uint64("triangles", result.Total),
		logging.Uint64("type1", result.Type1),
		logging.Uint64("type_spanning", result.TypeSpanning),
		logging.Uint64("groups", report.Groups),
		logging.Latency(report.Duration))
	return report, nil
}

func (p *Pipeline) ingest(ctx context.Context, src Source, report *Report) (engine.Dataset, error) {
	start := time.Now()
	rc, err := src.Open(ctx)
	if err != nil {
		return engine.Dataset{}, fmt.Errorf("open input %s: %w", src.Name(), err)
	}
	defer rc.Close()

	ds, err := p.engine.Ingest(ctx, rc, p.opts.Splits)
	if err != nil {
		return engine.Dataset{}, fmt.Errorf("ingest %s: %w", src.Name(), err)
	}
	st, _ := p.engine.Stats(engine.InputStage)
	report.InputRecords = st.OutputRecords
	report.Stages = append(report.Stages, StageTiming{
		Name:     engine.InputStage,
		Duration: time.Since(start),
		Records:  st.OutputRecords,
	})
	if p.metrics != nil {
		p.metrics.RecordStage(engine.InputStage, time.Since(start))
	}
	return ds, nil
}

func (p *Pipeline) runStage(ctx context.Context, stage engine.Stage, input engine.Dataset, report *Report) (engine.Dataset, error) {
	timer := logging.StartTimer(p.logger, "stage", logging.Stage(stage.Name))
	out, err := p.engine.Run(ctx, stage, input)
	if err != nil {
		timer.EndError(err)
		return engine.Dataset{}, fmt.Errorf("stage %s: %w", stage.Name, err)
	}
	elapsed := timer.End()

	st, _ := p.engine.Stats(stage.Name)
	report.Stages = append(report.Stages, StageTiming{
		Name:     stage.Name,
		Duration: elapsed,
		Records:  st.OutputRecords,
	})
	return out, nil
}
