package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusUnavailable  = "unavailable"
)

const sessionCountTimeout = 2 * time.Second

// HealthChecker provides liveness and readiness probes.
type HealthChecker struct {
	ready           atomic.Bool
	requireListener atomic.Bool
	serverContext   *ServerContext
	startTime       time.Time
}

// NewHealthChecker creates a HealthChecker that starts out ready.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// RequireCallbackListener makes readiness depend on the standalone OAuth
// callback listener. Used when the callback is not served by HTTPServer.
func (h *HealthChecker) RequireCallbackListener(require bool) {
	h.requireListener.Store(require)
}

func (h *HealthChecker) isServerShuttingDown() bool {
	return h.serverContext != nil && h.serverContext.IsShutdown()
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status   string         `json:"status"`
	Version  string         `json:"version,omitempty"`
	Uptime   string         `json:"uptime"`
	Sessions map[string]int `json:"sessions,omitempty"`
}

// LivenessHandler serves /healthz. It only reports that the process runs.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealthJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

func (h *HealthChecker) checks() (map[string]string, bool) {
	checks := make(map[string]string)
	allOk := true

	if h.ready.Load() {
		checks["ready"] = healthStatusOK
	} else {
		checks["ready"] = healthStatusNotReady
		allOk = false
	}

	if h.isServerShuttingDown() {
		checks["shutdown"] = healthStatusShuttingDown
		allOk = false
	} else {
		checks["shutdown"] = healthStatusOK
	}

	if h.requireListener.Load() {
		if h.serverContext != nil && h.serverContext.OAuth().Running() {
			checks["callback_listener"] = healthStatusOK
		} else {
			checks["callback_listener"] = healthStatusUnavailable
			allOk = false
		}
	}
	return checks, allOk
}

// ReadinessHandler serves /readyz.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks, ok := h.checks()
		response := HealthResponse{Status: healthStatusOK, Checks: checks}
		status := http.StatusOK
		if !ok {
			response.Status = healthStatusNotReady
			status = http.StatusServiceUnavailable
		}
		writeHealthJSON(w, status, response)
	})
}

// DetailedHealthHandler serves /healthz/detailed, including the number of
// sessions per state.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := DetailedHealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		}
		status := http.StatusOK

		switch {
		case !h.ready.Load():
			response.Status = healthStatusNotReady
			status = http.StatusServiceUnavailable
		case h.isServerShuttingDown():
			response.Status = healthStatusShuttingDown
			status = http.StatusServiceUnavailable
		}

		if sc := h.serverContext; sc != nil {
			response.Version = sc.Version()
			ctx, cancel := context.WithTimeout(r.Context(), sessionCountTimeout)
			counts, err := sc.OAuth().Store().Counts(ctx)
			cancel()
			if err == nil {
				response.Sessions = make(map[string]int, len(counts))
				for state, n := range counts {
					response.Sessions[string(state)] = n
				}
			}
		}

		writeHealthJSON(w, status, response)
	})
}

// RegisterHealthEndpoints registers the probes on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

func writeHealthJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
