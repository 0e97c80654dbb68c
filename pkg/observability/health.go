package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

// Version is reported by the readiness probe. Overridden at link time.
var Version = "dev"

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

type dependencyCheck struct {
	name string
	// critical dependencies make the service unhealthy; others only degrade it
	critical bool
	check    CheckFunc
}

// HealthChecker runs liveness and readiness probes over registered dependencies
type HealthChecker struct {
	checks []dependencyCheck
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHealthChecker creates a health checker for the asset database and, when
// the profile cache is shared, its Redis server. Either may be nil.
func NewHealthChecker(db *sql.DB, rdb *redis.Client) *HealthChecker {
	h := &HealthChecker{}
	if db != nil {
		h.AddCheck("database", true, func(ctx context.Context) error {
			return db.PingContext(ctx)
		})
	}
	if rdb != nil {
		// a lost profile cache only costs extra lookups
		h.AddCheck("redis", false, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	return h
}

// AddCheck registers a dependency probe
func (h *HealthChecker) AddCheck(name string, critical bool, check CheckFunc) {
	h.checks = append(h.checks, dependencyCheck{name: name, critical: critical, check: check})
}

// Check runs every probe and folds the results into one status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Version:      Version,
		Dependencies: make(map[string]DependencyStatus, len(h.checks)),
	}

	for _, c := range h.checks {
		start := time.Now()
		err := c.check(ctx)
		dep := DependencyStatus{
			Status:    StatusHealthy,
			LatencyMS: time.Since(start).Milliseconds(),
			Timestamp: time.Now().UTC(),
		}
		if err != nil {
			dep.Status = StatusUnhealthy
			dep.Message = err.Error()
			switch {
			case c.critical:
				status.Status = StatusUnhealthy
			case status.Status == StatusHealthy:
				status.Status = StatusDegraded
			}
		}
		status.Dependencies[c.name] = dep
	}

	return status
}

// Liveness answers 200 while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now().UTC(),
	})
}

// Readiness answers 503 when a critical dependency is down
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(router *mux.Router, checker *HealthChecker) {
	router.HandleFunc("/healthz", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/readyz", checker.Readiness).Methods(http.MethodGet)
}
