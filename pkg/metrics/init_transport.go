package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initTransportMetrics() {
	r.RemoteTasksTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ttp_remote_tasks_total",
			Help: "Group tasks dispatched to remote workers, by outcome",
		},
		[]string{"status"}, // ok, error, timeout, resubmitted
	)

	r.RemoteTaskDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ttp_remote_task_duration_seconds",
			Help:    "Round trip time of a remote group task",
			Buckets: []float64{0.01, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0},
		},
	)

	r.RemoteTasksPending = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "ttp_remote_tasks_pending",
			Help: "Group tasks awaiting a worker result",
		},
	)
}
