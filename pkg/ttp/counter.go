package ttp

import (
	"context"

	"github.com/dd0wney/cluso-triangles/pkg/algorithms"
	"github.com/dd0wney/cluso-triangles/pkg/graph"
	"github.com/dd0wney/cluso-triangles/pkg/logging"
	"github.com/dd0wney/cluso-triangles/pkg/partition"
)

// GroupCounter counts the triangles of one group given every edge
// replicated to it. Implementations must be deterministic so a retried
// group yields the same counts.
type GroupCounter interface {
	CountGroup(ctx context.Context, key partition.GroupKey, edges []graph.Edge) (algorithms.TypeCounts, error)
}

// LocalCounter counts groups in process
type LocalCounter struct {
	strategy partition.Strategy
	logger   logging.Logger
	explain  bool
}

// NewLocalCounter returns an in-process counter. With explain set every
// triangle found is logged at debug level.
func NewLocalCounter(s partition.Strategy, logger logging.Logger, explain bool) *LocalCounter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &LocalCounter{strategy: s, logger: logger, explain: explain}
}

// CountGroup implements GroupCounter
func (c *LocalCounter) CountGroup(ctx context.Context, key partition.GroupKey, edges []graph.Edge) (algorithms.TypeCounts, error) {
	if err := ctx.Err(); err != nil {
		return algorithms.TypeCounts{}, err
	}

	if c.explain && c.logger.Enabled(logging.DebugLevel) {
		group := key.String()
		algorithms.ForEachTriangle(edges, func(t graph.Triangle) {
			c.logger.Debug("triangle",
				logging.Group(group),
				logging.Any("vertices", t),
				logging.String("type", algorithms.Classify(t[0], t[1], t[2], c.strategy).String()))
		})
	}

	return algorithms.CountGroupTriangles(edges, c.strategy), nil
}
