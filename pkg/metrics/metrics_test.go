package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}

	if r.InputRecordsTotal == nil || r.TrianglesTotal == nil || r.StageDuration == nil || r.RemoteTasksTotal == nil {
		t.Error("metrics not initialized")
	}
	if r.GetPrometheusRegistry() == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	r1 := NewRegistry()
	r2 := NewRegistry()

	r1.RecordInput(true)

	if got := counterValue(t, r2.InputRecordsTotal.WithLabelValues("parsed")); got != 0 {
		t.Errorf("second registry observed %f records", got)
	}
}

func TestRecordInput(t *testing.T) {
	r := NewRegistry()
	r.RecordInput(true)
	r.RecordInput(true)
	r.RecordInput(false)

	if got := counterValue(t, r.InputRecordsTotal.WithLabelValues("parsed")); got != 2 {
		t.Errorf("parsed = %f, want 2", got)
	}
	if got := counterValue(t, r.InputRecordsTotal.WithLabelValues("skipped")); got != 1 {
		t.Errorf("skipped = %f, want 1", got)
	}
}

func TestRecordGroup(t *testing.T) {
	r := NewRegistry()
	r.RecordGroup(120, 3, 5, 10*time.Millisecond)
	r.RecordGroup(10, 0, 1, time.Millisecond)

	if got := counterValue(t, r.GroupsProcessedTotal); got != 2 {
		t.Errorf("groups = %f, want 2", got)
	}
	if got := counterValue(t, r.TrianglesTotal.WithLabelValues("Type1")); got != 3 {
		t.Errorf("Type1 = %f, want 3", got)
	}
	if got := counterValue(t, r.TrianglesTotal.WithLabelValues("TypeSpanning")); got != 6 {
		t.Errorf("TypeSpanning = %f, want 6", got)
	}

	var metric dto.Metric
	if err := r.GroupEdges.Write(&metric); err != nil {
		t.Fatal(err)
	}
	if metric.Histogram.GetSampleCount() != 2 || metric.Histogram.GetSampleSum() != 130 {
		t.Errorf("group edges histogram = %d samples / %f sum", metric.Histogram.GetSampleCount(), metric.Histogram.GetSampleSum())
	}
}

func TestRecordTaskAttempt(t *testing.T) {
	r := NewRegistry()
	r.RecordTaskAttempt("canonicalize", "map", nil)
	r.RecordTaskAttempt("canonicalize", "map", errors.New("disk"))

	if got := counterValue(t, r.TaskAttemptsTotal.WithLabelValues("canonicalize", "map", "ok")); got != 1 {
		t.Errorf("ok attempts = %f, want 1", got)
	}
	if got := counterValue(t, r.TaskAttemptsTotal.WithLabelValues("canonicalize", "map", "error")); got != 1 {
		t.Errorf("error attempts = %f, want 1", got)
	}
}

func TestRecordRemoteTask(t *testing.T) {
	r := NewRegistry()
	r.RecordRemoteTask("ok", 50*time.Millisecond)
	r.RecordRemoteTask("timeout", time.Second)

	var metric dto.Metric
	if err := r.RemoteTaskDuration.Write(&metric); err != nil {
		t.Fatal(err)
	}
	if metric.Histogram.GetSampleCount() != 1 {
		t.Errorf("only successful tasks should be timed, got %d samples", metric.Histogram.GetSampleCount())
	}
	if got := counterValue(t, r.RemoteTasksTotal.WithLabelValues("timeout")); got != 1 {
		t.Errorf("timeouts = %f, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.RecordStage("aggregate", 2*time.Second)
	r.RecordShuffle("replicate-count", 1000, 400)
	r.CanonicalEdges.Set(42)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`ttp_stage_duration_seconds_count{stage="aggregate"} 1`,
		`ttp_shuffle_bytes_total{encoding="compressed",stage="replicate-count"} 400`,
		`ttp_canonical_edges 42`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
