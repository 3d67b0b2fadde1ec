package ttp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dd0wney/cluso-triangles/pkg/engine"
	"github.com/dd0wney/cluso-triangles/pkg/graph"
	"github.com/dd0wney/cluso-triangles/pkg/logging"
	"github.com/dd0wney/cluso-triangles/pkg/segment"
)

// Algorithms a Report can come from
const (
	AlgorithmTTP   = "ttp"
	AlgorithmWedge = "wedge"
)

// Wedge stage names and output tag
const (
	StageWedges       = "wedges"
	StageCloseWedges  = "close-wedges"
	StageSumWedges    = "sum-wedges"
	TagClosedWedges   = "ClosedWedges"
	vertexKeySize     = 8
	closingEdgeMarker = ""
)

// ErrInexactWedgeCount means the closed wedge count is not a multiple of 3.
// Every triangle closes exactly one wedge per corner.
var ErrInexactWedgeCount = errors.New("closed wedge count is not a multiple of 3")

// RunWedges counts triangles without partitioning: each vertex emits every
// pair of its neighbors as a wedge, and a wedge whose endpoints are joined
// by an edge is closed. It needs memory quadratic in the largest degree and
// serves as a baseline to check TTP runs against on moderate graphs.
// A Pipeline runs either Run or RunWedges, since both write to one job directory.
func (p *Pipeline) RunWedges(ctx context.Context, src Source) (*Report, error) {
	report := &Report{
		JobID:     p.engine.JobID(),
		Input:     src.Name(),
		Algorithm: AlgorithmWedge,
		StartedAt: time.Now(),
	}
	p.logger.Info("run started", logging.String("input", src.Name()), logging.String("algorithm", AlgorithmWedge))

	input, err := p.ingest(ctx, src, report)
	if err != nil {
		return nil, err
	}
	canonical, err := p.runStage(ctx, p.canonicalizeStage(), input, report)
	if err != nil {
		return nil, err
	}
	wedges, err := p.runStage(ctx, p.wedgeStage(), canonical, report)
	if err != nil {
		return nil, err
	}
	closed, err := p.runStage(ctx, p.closeWedgesStage(), wedges, report)
	if err != nil {
		return nil, err
	}
	sums, err := p.runStage(ctx, p.sumStage(StageSumWedges), closed, report)
	if err != nil {
		return nil, err
	}

	var total uint64
	err = sums.Records(ctx, func(rec segment.Record) error {
		if string(rec.Key) != TagClosedWedges {
			return fmt.Errorf("%w: %q", ErrUnknownTag, rec.Key)
		}
		n, err := decodeCount(rec.Value)
		total += n
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("collect closed wedges: %w", err)
	}
	if total%3 != 0 {
		return nil, fmt.Errorf("%w: %d closed wedges", ErrInexactWedgeCount, total)
	}

	report.ClosedWedges = total
	report.Result = Result{Total: total / 3}
	if st, ok := p.engine.Stats(StageCanonicalize); ok {
		report.MalformedRecords = report.InputRecords - st.ShuffleRecords
		report.CanonicalEdges = st.OutputRecords
	}
	if st, ok := p.engine.Stats(StageWedges); ok {
		// One closing-edge marker per canonical edge, the rest are wedges
		report.Wedges = st.OutputRecords - report.CanonicalEdges
	}
	if p.metrics != nil {
		p.metrics.CanonicalEdges.Set(float64(report.CanonicalEdges))
	}
	report.Duration = time.Since(report.StartedAt)

	p.logger.Info("run completed",
		logging.Uint64("triangles", report.Result.Total),
		logging.Uint64("wedges", report.Wedges),
		logging.Uint64("closed_wedges", total),
		logging.Latency(report.Duration))
	return report, nil
}

// wedgeStage groups neighbors by vertex. For each vertex it emits a marker
// for every edge it is the lower end of, and a wedge keyed by the pair of
// endpoints for every two of its neighbors. Keys are canonical edges.
func (p *Pipeline) wedgeStage() engine.Stage {
	return engine.Stage{
		Name:     StageWedges,
		Reducers: p.opts.Reducers,
		Map: func(ctx context.Context, rec segment.Record, emit engine.Emitter) error {
			e, err := graph.UnmarshalEdge(rec.Key)
			if err != nil {
				return engine.Permanent(err)
			}
			if err := emit(vertexKey(e.First), vertexKey(e.Second)); err != nil {
				return err
			}
			return emit(vertexKey(e.Second), vertexKey(e.First))
		},
		Reduce: func(ctx context.Context, key []byte, values [][]byte, emit engine.Emitter) error {
			center, err := decodeVertex(key)
			if err != nil {
				return engine.Permanent(err)
			}
			neighbors := make([]graph.Vertex, len(values))
			for i, v := range values {
				if neighbors[i], err = decodeVertex(v); err != nil {
					return engine.Permanent(err)
				}
			}
			slices.Sort(neighbors)

			for _, n := range neighbors {
				if center < n {
					if err := emit(graph.Edge{First: center, Second: n}.AppendBinary(nil), []byte(closingEdgeMarker)); err != nil {
						return err
					}
				}
			}
			for i := range neighbors {
				if err := ctx.Err(); err != nil {
					return err
				}
				for j := i + 1; j < len(neighbors); j++ {
					wedge := graph.Edge{First: neighbors[i], Second: neighbors[j]}
					if err := emit(wedge.AppendBinary(nil), key); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

// closeWedgesStage counts, per vertex pair, the wedges whose endpoints are
// joined by an edge
func (p *Pipeline) closeWedgesStage() engine.Stage {
	return engine.Stage{
		Name:     StageCloseWedges,
		Reducers: p.opts.Reducers,
		Map: func(ctx context.Context, rec segment.Record, emit engine.Emitter) error {
			return emit(rec.Key, rec.Value)
		},
		Reduce: func(ctx context.Context, key []byte, values [][]byte, emit engine.Emitter) error {
			var closed bool
			var wedges uint64
			for _, v := range values {
				if len(v) == 0 {
					closed = true
				} else {
					wedges++
				}
			}
			if !closed {
				return nil
			}
			return emitCount(emit, TagClosedWedges, wedges)
		},
	}
}

func vertexKey(v graph.Vertex) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, vertexKeySize), uint64(v))
}

func decodeVertex(b []byte) (graph.Vertex, error) {
	if len(b) != vertexKeySize {
		return 0, fmt.Errorf("invalid vertex encoding %x", b)
	}
	return graph.Vertex(binary.BigEndian.Uint64(b)), nil
}
