package metrics

import (
	"time"
)

// RecordInput records one raw input record
func (r *Registry) RecordInput(parsed bool) {
	if parsed {
		r.InputRecordsTotal.WithLabelValues("parsed").Inc()
	} else {
		r.InputRecordsTotal.WithLabelValues("skipped").Inc()
	}
}

// RecordReplication records an edge emitted to a group of the given shape
func (r *Registry) RecordReplication(shape string) {
	r.ReplicatedRecordsTotal.WithLabelValues(shape).Inc()
}

// RecordGroup records a completed local count
func (r *Registry) RecordGroup(edges int, type1, spanning uint64, duration time.Duration) {
	r.GroupsProcessedTotal.Inc()
	r.GroupEdges.Observe(float64(edges))
	r.GroupDuration.Observe(duration.Seconds())
	r.TrianglesTotal.WithLabelValues("Type1").Add(float64(type1))
	r.TrianglesTotal.WithLabelValues("TypeSpanning").Add(float64(spanning))
}

// RecordStage records the wall clock duration of a finished stage
func (r *Registry) RecordStage(stage string, duration time.Duration) {
	r.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordTaskAttempt records a map or reduce task attempt
func (r *Registry) RecordTaskAttempt(stage, phase string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.TaskAttemptsTotal.WithLabelValues(stage, phase, status).Inc()
}

// RecordShuffle records bytes written to shuffle segments
func (r *Registry) RecordShuffle(stage string, raw, compressed uint64) {
	r.ShuffleBytesTotal.WithLabelValues(stage, "raw").Add(float64(raw))
	r.ShuffleBytesTotal.WithLabelValues(stage, "compressed").Add(float64(compressed))
}

// RecordStageOutput records records written by a reduce task
func (r *Registry) RecordStageOutput(stage string, records uint64) {
	r.StageRecordsOutput.WithLabelValues(stage).Add(float64(records))
}

// RecordRemoteTask records the outcome of a remote group task
func (r *Registry) RecordRemoteTask(status string, duration time.Duration) {
	r.RemoteTasksTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		r.RemoteTaskDuration.Observe(duration.Seconds())
	}
}
