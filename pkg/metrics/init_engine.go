package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initEngineMetrics() {
	r.StageDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ttp_stage_duration_seconds",
			Help:    "Wall clock duration of a transform/shuffle stage",
			Buckets: []float64{0.01, 0.1, 1.0, 10.0, 60.0, 300.0, 1800.0},
		},
		[]string{"stage"},
	)

	r.TaskAttemptsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttp_task_attempts_total",
			Help: "Map and reduce task attempts",
		},
		[]string{"stage", "phase", "status"},
	)

	r.ShuffleBytesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttp_shuffle_bytes_total",
			Help: "Bytes written to shuffle segments",
		},
		[]string{"stage", "encoding"}, // raw, compressed
	)

	r.StageRecordsOutput = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttp_stage_output_records_total",
			Help: "Records written by reduce tasks",
		},
		[]string{"stage"},
	)
}
