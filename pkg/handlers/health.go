package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-engine/pkg/config"
)

// healthCheckTimeout bounds the database ping so probes never hang on a
// stalled pool.
const healthCheckTimeout = 2 * time.Second

// DatabasePinger reports whether the backing database is reachable.
// *database.DB satisfies it.
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

// PingResponse contains service status, version, and database reachability.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	Database    string `json:"database"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	db     DatabasePinger
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(cfg *config.Config, db DatabasePinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/ping", h.Ping)
}

// Health handles GET /health requests. The service is healthy only when the
// database answers a ping.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.pingDatabase(r.Context()); err != nil {
		h.logger.Error("Health check failed to reach database", zap.Error(err))
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping requests.
// Returns detailed service information including version, environment, and
// database reachability; a degraded database does not fail the request.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	status, dbStatus := "ok", "ok"
	if err := h.pingDatabase(r.Context()); err != nil {
		h.logger.Warn("Ping failed to reach database", zap.Error(err))
		status, dbStatus = "degraded", "unreachable"
	}

	response := PingResponse{
		Status:      status,
		Version:     h.cfg.Version,
		Service:     "cardhaven-engine",
		Database:    dbStatus,
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write ping response", zap.Error(err))
	}
}

func (h *HealthHandler) pingDatabase(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	return h.db.Ping(ctx)
}
