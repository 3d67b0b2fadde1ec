package health

import (
	"context"
	"os"
	"time"
)

const checkTimeout = 2 * time.Second

// WorkDirCheck reports whether intermediate segments can still be written to dir
func WorkDirCheck(dir string) CheckFunc {
	return func() Check {
		check := Check{Details: map[string]any{"dir": dir}}

		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
			return check
		}
		f.Close()
		os.Remove(f.Name())

		check.Status = StatusHealthy
		return check
	}
}

// DatabaseCheck creates a health check for the run history database
func DatabaseCheck(ping func(ctx context.Context) error) CheckFunc {
	return func() Check {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()

		if err := ping(ctx); err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		return Check{Status: StatusHealthy, Message: "Connected"}
	}
}

// ActivityCheck reports how long ago a worker last answered a task. A worker
// that has never seen a task is healthy; one that went quiet is degraded.
func ActivityCheck(last func() time.Time, processed func() uint64, idle time.Duration) CheckFunc {
	return func() Check {
		check := Check{
			Status:  StatusHealthy,
			Details: map[string]any{"processed": processed()},
		}

		t := last()
		if t.IsZero() {
			check.Message = "Waiting for tasks"
			return check
		}
		since := time.Since(t)
		check.Details["idle_seconds"] = since.Seconds()
		if since > idle {
			check.Status = StatusDegraded
			check.Message = "No tasks received recently"
		}
		return check
	}
}
