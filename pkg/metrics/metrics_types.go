package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics of a triangle counting job
type Registry struct {
	// Input metrics
	InputRecordsTotal *prometheus.CounterVec
	CanonicalEdges    prometheus.Gauge

	// Replication metrics
	ReplicatedRecordsTotal *prometheus.CounterVec

	// Local counting metrics
	GroupsProcessedTotal prometheus.Counter
	GroupEdges           prometheus.Histogram
	GroupDuration        prometheus.Histogram
	TrianglesTotal       *prometheus.CounterVec

	// Engine metrics
	StageDuration      *prometheus.HistogramVec
	TaskAttemptsTotal  *prometheus.CounterVec
	ShuffleBytesTotal  *prometheus.CounterVec
	StageRecordsOutput *prometheus.CounterVec

	// Remote worker metrics
	RemoteTasksTotal   *prometheus.CounterVec
	RemoteTaskDuration prometheus.Histogram
	RemoteTasksPending prometheus.Gauge

	registry *prometheus.Registry
}

// NewRegistry creates a new metrics registry with all metrics initialized.
// Each job owns its registry; there is no process-wide instance.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initPipelineMetrics()
	r.initEngineMetrics()
	r.initTransportMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
