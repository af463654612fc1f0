package handler

import (
	"context"
	"net/http"
	"time"

	"rwsplit/internal/config"
	"rwsplit/internal/pool"
	"rwsplit/internal/routing"
)

// Registry is the part of *pool.Registry the routing handler reads
type Registry interface {
	Stats() pool.Stats
	Policy() config.FallbackPolicy
	Ping(ctx context.Context, role routing.Role) error
}

// RoutingHandler exposes pool registry state
type RoutingHandler struct {
	reg Registry
}

// NewRoutingHandler creates a new routing handler
func NewRoutingHandler(reg Registry) *RoutingHandler {
	return &RoutingHandler{reg: reg}
}

// Stats returns acquisition counters and pool statistics per role
func (h *RoutingHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.reg.Stats(), http.StatusOK)
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status         string                `json:"status"`
	FallbackPolicy config.FallbackPolicy `json:"fallback_policy"`
	Roles          map[string]string     `json:"roles"`
}

// Health pings every role. Only an unreachable primary makes the service
// unhealthy; a down replica is reported as degraded, along with the policy
// that decides whether its reads fail or move to the primary.
func (h *RoutingHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:         "ok",
		FallbackPolicy: h.reg.Policy(),
		Roles:          make(map[string]string, len(routing.Roles)),
	}
	status := http.StatusOK
	for _, role := range routing.Roles {
		if err := h.reg.Ping(ctx, role); err != nil {
			resp.Roles[role.String()] = err.Error()
			if role == routing.Primary {
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
			} else if resp.Status == "ok" {
				resp.Status = "degraded"
			}
			continue
		}
		resp.Roles[role.String()] = "ok"
	}

	writeJSON(w, resp, status)
}
