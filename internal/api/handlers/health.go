package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthCheckTimeout is the maximum time allowed for health check operations.
// This timeout applies to store health checks to prevent a slow store from
// blocking health probes indefinitely.
const HealthCheckTimeout = 5 * time.Second

// Healthchecker is a store that can report its own reachability.
type Healthchecker interface {
	Healthcheck(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Are both stores configured?
//   - Store health: Per-store reachability with latency
type HealthHandler struct {
	blob      Healthchecker
	rel       Healthchecker
	startTime time.Time
}

// NewHealthHandler creates a new health handler. Either store may be nil, in
// which case readiness and store health report unhealthy.
func NewHealthHandler(blobStore, relStore Healthchecker) *HealthHandler {
	return &HealthHandler{
		blob:      blobStore,
		rel:       relStore,
		startTime: time.Now(),
	}
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK if the server process is running. This endpoint should
// always succeed as long as the HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	WriteJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"service":    "mediavault",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}))
}

// Readiness handles GET /health/ready - readiness probe.
// Returns 200 OK if both store adapters are configured.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.blob == nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("blob store not configured"))
		return
	}
	if h.rel == nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("relational store not configured"))
		return
	}

	WriteJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"stores": []string{"blob", "relational"},
	}))
}

// StoreHealth represents the health status of a single store.
type StoreHealth struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// StoresResponse represents the detailed store health response.
type StoresResponse struct {
	Stores []StoreHealth `json:"stores"`
}

// Stores handles GET /health/stores - detailed store health.
//
// Returns 200 OK if all stores are healthy, 503 Service Unavailable if any
// store is unhealthy or missing.
func (h *HealthHandler) Stores(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	resp := StoresResponse{}
	allHealthy := true

	for _, probe := range []struct {
		name  string
		store Healthchecker
	}{
		{"blob", h.blob},
		{"relational", h.rel},
	} {
		sh := StoreHealth{Name: probe.name, Status: "healthy"}
		if probe.store == nil {
			sh.Status = "unhealthy"
			sh.Error = "not configured"
			allHealthy = false
		} else {
			start := time.Now()
			if err := probe.store.Healthcheck(ctx); err != nil {
				sh.Status = "unhealthy"
				sh.Error = err.Error()
				allHealthy = false
			}
			sh.Latency = time.Since(start).Round(time.Millisecond).String()
		}
		resp.Stores = append(resp.Stores, sh)
	}

	if !allHealthy {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponseWithData(resp))
		return
	}
	WriteJSON(w, http.StatusOK, healthyResponse(resp))
}
