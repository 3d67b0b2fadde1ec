package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckWorstStatusWins(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"no checks", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy beats degraded", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker()
			for i, s := range tt.statuses {
				s := s
				hc.RegisterCheck(string(rune('a'+i)), func() Check { return Check{Status: s} })
			}
			resp := hc.Check()
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.statuses))
		})
	}
}

func TestCheckFillsNameAndTiming(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterCheck("workdir", func() Check { return Check{Status: StatusHealthy} })

	resp := hc.Check()
	check := resp.Checks["workdir"]
	assert.Equal(t, "workdir", check.Name)
	assert.False(t, check.LastChecked.IsZero())
	assert.GreaterOrEqual(t, resp.Uptime, time.Duration(0))
}

func TestHTTPHandler(t *testing.T) {
	tests := []struct {
		status Status
		code   int
	}{
		{StatusHealthy, http.StatusOK},
		{StatusDegraded, http.StatusOK},
		{StatusUnhealthy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			hc := NewHealthChecker()
			hc.RegisterCheck("c", func() Check { return Check{Status: tt.status} })

			rec := httptest.NewRecorder()
			hc.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp Response
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.status, resp.Status)
		})
	}
}

func TestWorkDirCheck(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, StatusHealthy, WorkDirCheck(dir)().Status)

	matches, err := filepath.Glob(filepath.Join(dir, ".health-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	missing := WorkDirCheck(filepath.Join(dir, "missing"))()
	assert.Equal(t, StatusUnhealthy, missing.Status)
	assert.NotEmpty(t, missing.Message)
}

func TestDatabaseCheck(t *testing.T) {
	ok := DatabaseCheck(func(context.Context) error { return nil })()
	assert.Equal(t, StatusHealthy, ok.Status)

	down := DatabaseCheck(func(context.Context) error { return errors.New("connection refused") })()
	assert.Equal(t, StatusUnhealthy, down.Status)
	assert.Equal(t, "connection refused", down.Message)
}

func TestActivityCheck(t *testing.T) {
	processed := func() uint64 { return 3 }

	never := ActivityCheck(func() time.Time { return time.Time{} }, processed, time.Minute)()
	assert.Equal(t, StatusHealthy, never.Status)
	assert.Equal(t, "Waiting for tasks", never.Message)

	recent := ActivityCheck(time.Now, processed, time.Minute)()
	assert.Equal(t, StatusHealthy, recent.Status)
	assert.Equal(t, uint64(3), recent.Details["processed"])

	stale := ActivityCheck(func() time.Time { return time.Now().Add(-2 * time.Minute) }, processed, time.Minute)()
	assert.Equal(t, StatusDegraded, stale.Status)
}
