package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initPipelineMetrics() {
	r.InputRecordsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttp_input_records_total",
			Help: "Raw edge-list records read, by parse result",
		},
		[]string{"result"}, // parsed, skipped
	)

	r.CanonicalEdges = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "ttp_canonical_edges",
			Help: "Distinct canonical edges after deduplication",
		},
	)

	r.ReplicatedRecordsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttp_replicated_records_total",
			Help: "Edge records emitted to partition groups",
		},
		[]string{"group_shape"}, // pair, triple
	)

	r.GroupsProcessedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ttp_groups_processed_total",
			Help: "Partition groups whose local triangle count completed",
		},
	)

	r.GroupEdges = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ttp_group_edges",
			Help:    "Edges received by a partition group",
			Buckets: prometheus.ExponentialBuckets(10, 10, 8),
		},
	)

	r.GroupDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ttp_group_duration_seconds",
			Help:    "Local triangle counting time per group",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0},
		},
	)

	r.TrianglesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttp_triangles_total",
			Help: "Triangles found by local counters before correction, by type",
		},
		[]string{"type"},
	)
}
