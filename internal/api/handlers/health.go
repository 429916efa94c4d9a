package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HealthCheck is the body of /readyz.
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// CheckResult is the outcome of one dependency check. Status is pass,
// warn or fail.
type CheckResult struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MigrationVersionFunc reports the applied schema version.
type MigrationVersionFunc func() (version uint, dirty bool, err error)

// HealthChecker answers liveness and readiness probes.
type HealthChecker struct {
	db         Pinger
	migrations MigrationVersionFunc
	version    string
	gitCommit  string
	now        func() time.Time
}

func NewHealthChecker(db Pinger, migrations MigrationVersionFunc, version, gitCommit string) *HealthChecker {
	return &HealthChecker{
		db:         db,
		migrations: migrations,
		version:    version,
		gitCommit:  gitCommit,
		now:        time.Now,
	}
}

// Healthz reports that the process is up. It never touches dependencies.
func (h *HealthChecker) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz runs every dependency check. Any failure makes the instance
// unready; warnings only degrade it.
func (h *HealthChecker) Readyz(w http.ResponseWriter, r *http.Request) {
	if r.Context().Err() != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]CheckResult{
		"database":   h.checkDatabase(ctx),
		"migrations": h.checkMigrations(),
	}

	status, code := "healthy", http.StatusOK
	for _, check := range checks {
		if check.Status == "fail" {
			status, code = "unhealthy", http.StatusServiceUnavailable
			break
		}
		if check.Status == "warn" {
			status = "degraded"
		}
	}

	writeJSON(w, code, HealthCheck{
		Status:    status,
		Version:   h.version,
		GitCommit: h.gitCommit,
		Checks:    checks,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthChecker) checkDatabase(ctx context.Context) CheckResult {
	if h.db == nil {
		return CheckResult{Status: "fail", Message: "database pool not initialized"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := h.now()
	err := h.db.Ping(ctx)
	latency := h.now().Sub(start).Milliseconds()
	if err != nil {
		return CheckResult{Status: "fail", Message: err.Error(), LatencyMs: latency}
	}
	return CheckResult{Status: "pass", Message: "PostgreSQL connection successful", LatencyMs: latency}
}

func (h *HealthChecker) checkMigrations() CheckResult {
	if h.migrations == nil {
		return CheckResult{Status: "warn", Message: "migration status unknown"}
	}
	version, dirty, err := h.migrations()
	switch {
	case err != nil:
		return CheckResult{Status: "fail", Message: err.Error()}
	case dirty:
		return CheckResult{Status: "fail", Message: fmt.Sprintf("migration %d is dirty", version)}
	case version == 0:
		return CheckResult{Status: "fail", Message: "no migrations applied"}
	}
	return CheckResult{Status: "pass", Message: fmt.Sprintf("schema version %d", version)}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
