package ttp

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-triangles/pkg/graph"
	"github.com/dd0wney/cluso-triangles/pkg/logging"
	"github.com/dd0wney/cluso-triangles/pkg/partition"
	"github.com/dd0wney/cluso-triangles/pkg/segment"
)

// Plan canonicalizes the input and reports how edges would replicate over
// the configured partitions, without counting triangles. The canonical edge
// set is held in memory, so Plan is meant for samples used to size p.
func (p *Pipeline) Plan(ctx context.Context, src Source) (*partition.ReplicationMetrics, error) {
	var discard Report
	input, err := p.ingest(ctx, src, &discard)
	if err != nil {
		return nil, err
	}
	canonical, err := p.runStage(ctx, p.canonicalizeStage(), input, &discard)
	if err != nil {
		return nil, err
	}

	var edges []graph.Edge
	err = canonical.Records(ctx, func(rec segment.Record) error {
		e, err := graph.UnmarshalEdge(rec.Key)
		if err != nil {
			return err
		}
		edges = append(edges, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect canonical edges: %w", err)
	}

	m := partition.ComputeReplicationMetrics(edges, p.strategy)
	p.logger.Info("replication plan",
		logging.Partitions(m.PartitionCount),
		logging.Int("edges", m.Edges),
		logging.Float64("replication_factor", m.ReplicationFactor),
		logging.Float64("load_balance", m.LoadBalance))
	return m, nil
}
