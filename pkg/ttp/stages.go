package ttp

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-triangles/pkg/engine"
	"github.com/dd0wney/cluso-triangles/pkg/graph"
	"github.com/dd0wney/cluso-triangles/pkg/partition"
	"github.com/dd0wney/cluso-triangles/pkg/segment"
)

// Stage names, also the directory names of their outputs
const (
	StageCanonicalize   = "canonicalize"
	StageReplicateCount = "replicate-count"
	StageAggregate      = "aggregate"
)

// canonicalizeStage parses raw lines and keeps one record per undirected edge.
// The key is the 16-byte edge encoding, so byte order is numeric order.
func (p *Pipeline) canonicalizeStage() engine.Stage {
	return engine.Stage{
		Name:     StageCanonicalize,
		Reducers: p.opts.Reducers,
		Map: func(ctx context.Context, rec segment.Record, emit engine.Emitter) error {
			e, ok := graph.ParseEdge(rec.Value)
			if p.metrics != nil {
				p.metrics.RecordInput(ok)
			}
			if !ok {
				return nil
			}
			return emit(e.AppendBinary(make([]byte, 0, graph.EdgeSize)), nil)
		},
		Reduce: func(ctx context.Context, key []byte, values [][]byte, emit engine.Emitter) error {
			return emit(key, nil)
		},
	}
}

// replicateCountStage sends each canonical edge to every group that may need
// it, then counts each group's triangles once all its edges have arrived.
func (p *Pipeline) replicateCountStage() engine.Stage {
	return engine.Stage{
		Name:     StageReplicateCount,
		Reducers: p.opts.Reducers,
		Compare:  partition.CompareEncodedGroupKeys,
		Map: func(ctx context.Context, rec segment.Record, emit engine.Emitter) error {
			e, err := graph.UnmarshalEdge(rec.Key)
			if err != nil {
				return engine.Permanent(err)
			}
			for _, g := range partition.Replicate(e, p.strategy) {
				if err := emit(g.AppendBinary(nil), rec.Key); err != nil {
					return err
				}
				if p.metrics != nil {
					p.metrics.RecordReplication(g.Shape())
				}
			}
			return nil
		},
		Reduce: func(ctx context.Context, key []byte, values [][]byte, emit engine.Emitter) error {
			group, err := partition.UnmarshalGroupKey(key)
			if err != nil {
				return engine.Permanent(err)
			}
			edges := make([]graph.Edge, len(values))
			for i, v := range values {
				if edges[i], err = graph.UnmarshalEdge(v); err != nil {
					return engine.Permanent(fmt.Errorf("group %s: %w", group, err))
				}
			}

			start := time.Now()
			counts, err := p.counter.CountGroup(ctx, group, edges)
			if err != nil {
				return fmt.Errorf("count group %s: %w", group, err)
			}
			if p.metrics != nil {
				p.metrics.RecordGroup(len(edges), counts.Type1, counts.TypeSpanning, time.Since(start))
			}

			if err := emitCount(emit, TagGroups, 1); err != nil {
				return err
			}
			if err := emitCount(emit, TagType1, counts.Type1); err != nil {
				return err
			}
			return emitCount(emit, TagTypeSpanning, counts.TypeSpanning)
		},
	}
}

// aggregateStage sums the per-group counts of each tag in a single reducer
func (p *Pipeline) aggregateStage() engine.Stage {
	return p.sumStage(StageAggregate)
}

// sumStage sums the counts of each tag in a single reducer
func (p *Pipeline) sumStage(name string) engine.Stage {
	return engine.Stage{
		Name:     name,
		Reducers: 1,
		Map: func(ctx context.Context, rec segment.Record, emit engine.Emitter) error {
			return emit(rec.Key, rec.Value)
		},
		Reduce: func(ctx context.Context, key []byte, values [][]byte, emit engine.Emitter) error {
			var sum uint64
			for _, v := range values {
				n, err := decodeCount(v)
				if err != nil {
					return engine.Permanent(fmt.Errorf("tag %s: %w", key, err))
				}
				sum += n
			}
			return emitCount(emit, string(key), sum)
		},
	}
}

// emitCount writes a tagged count. Zero counts are skipped.
func emitCount(emit engine.Emitter, tag string, n uint64) error {
	if n == 0 {
		return nil
	}
	return emit([]byte(tag), binary.AppendUvarint(nil, n))
}

func decodeCount(v []byte) (uint64, error) {
	n, size := binary.Uvarint(v)
	if size <= 0 || size != len(v) {
		return 0, fmt.Errorf("invalid count encoding %x", v)
	}
	return n, nil
}
