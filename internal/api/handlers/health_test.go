package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func readyz(t *testing.T, checker *HealthChecker) (int, HealthCheck) {
	t.Helper()
	rec := httptest.NewRecorder()
	checker.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var body HealthCheck
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return rec.Code, body
}

func TestReadyz(t *testing.T) {
	applied := func() (uint, bool, error) { return 2, false, nil }

	tests := []struct {
		name       string
		db         Pinger
		migrations MigrationVersionFunc
		wantCode   int
		wantStatus string
	}{
		{name: "healthy", db: fakePinger{}, migrations: applied, wantCode: http.StatusOK, wantStatus: "healthy"},
		{name: "database down", db: fakePinger{err: errors.New("connection refused")}, migrations: applied, wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy"},
		{name: "no pool", migrations: applied, wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy"},
		{name: "dirty migration", db: fakePinger{}, migrations: func() (uint, bool, error) { return 2, true, nil }, wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy"},
		{name: "unknown migrations", db: fakePinger{}, wantCode: http.StatusOK, wantStatus: "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := readyz(t, NewHealthChecker(tt.db, tt.migrations, "1.0.0", "abc123"))
			require.Equal(t, tt.wantCode, code)
			require.Equal(t, tt.wantStatus, body.Status)
			require.Equal(t, "1.0.0", body.Version)
			require.Contains(t, body.Checks, "database")
			require.Contains(t, body.Checks, "migrations")
		})
	}
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthChecker(nil, nil, "", "").Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
