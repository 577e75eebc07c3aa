package api

import (
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/fairstack/engine-go/internal/store"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResponse represents a comprehensive health check response
type HealthCheckResponse struct {
	Status        HealthStatus           `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	EngineVersion string                 `json:"engine_version"`
	Uptime        string                 `json:"uptime"`
	Checks        map[string]HealthCheck `json:"checks"`
	System        SystemInfo             `json:"system"`
	RequestID     string                 `json:"request_id,omitempty"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// SystemInfo contains system information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
	MemorySys     uint64 `json:"memory_sys_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
}

// handleHealthCheck provides the comprehensive health check endpoint
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	checks := map[string]HealthCheck{
		"games":    s.checkGamesHealth(),
		"database": s.checkDatabaseHealth(),
	}
	overall := HealthStatusHealthy
	for _, c := range checks {
		switch c.Status {
		case HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if overall == HealthStatusHealthy {
				overall = HealthStatusDegraded
			}
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	status := http.StatusOK
	if overall == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, HealthCheckResponse{
		Status:        overall,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: EngineVersion,
		Uptime:        time.Since(s.startTime).String(),
		Checks:        checks,
		System: SystemInfo{
			GoVersion:     runtime.Version(),
			NumGoroutines: runtime.NumGoroutine(),
			NumCPU:        runtime.NumCPU(),
			MemoryAlloc:   mem.Alloc,
			MemorySys:     mem.Sys,
			GCCycles:      mem.NumGC,
		},
		RequestID: requestID,
	})
}

// handleLiveness is the fast check for process liveness probes
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "alive",
		EngineVersion: EngineVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReadiness reports whether the server can take traffic
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.checkDatabaseHealth().Status == HealthStatusUnhealthy {
		s.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:        "not_ready",
			EngineVersion: EngineVersion,
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ready",
		EngineVersion: EngineVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) checkGamesHealth() HealthCheck {
	if s.games == nil || len(s.games.List()) == 0 {
		return HealthCheck{Status: HealthStatusUnhealthy, Message: "no games registered"}
	}
	return HealthCheck{Status: HealthStatusHealthy}
}

func (s *Server) checkDatabaseHealth() HealthCheck {
	if s.db == nil {
		return HealthCheck{Status: HealthStatusUnhealthy, Message: "database not configured"}
	}
	// A cheap read exercises the connection.
	if _, err := s.db.GetBet("health-probe"); err != nil && !errors.Is(err, store.ErrBetNotFound) {
		return HealthCheck{Status: HealthStatusDegraded, Message: err.Error()}
	}
	return HealthCheck{Status: HealthStatusHealthy}
}
