package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

// HealthCheckFunc pings the configured storage backend
type HealthCheckFunc func(ctx context.Context) error

// HealthHandler reports whether the defense store is reachable
type HealthHandler struct {
	check   HealthCheckFunc
	backend string
	logger  *slog.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(check HealthCheckFunc, backend string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{check: check, backend: backend, logger: logger}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.check(ctx); err != nil {
		h.logger.Error("health check failed", slog.String("backend", h.backend), slog.Any("error", err))
		pkghttp.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Backend: h.backend})
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Backend: h.backend})
}
