package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-engine/pkg/config"
	"github.com/cardhaven/cardhaven-engine/pkg/services"
)

// ImportResponse reports how many records an ingestion run imported.
type ImportResponse struct {
	Imported int `json:"imported"`
}

// ImportHandler triggers an ingestion run over the configured data
// directory. The endpoint only works in the local environment.
type ImportHandler struct {
	cfg           *config.Config
	ingestService services.IngestService
	logger        *zap.Logger
}

// NewImportHandler creates a new ImportHandler.
func NewImportHandler(cfg *config.Config, ingestService services.IngestService, logger *zap.Logger) *ImportHandler {
	return &ImportHandler{cfg: cfg, ingestService: ingestService, logger: logger}
}

// RegisterRoutes registers the import handler's routes on the given mux.
func (h *ImportHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/import", h.Import)
}

// Import handles GET /api/import.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Env != "local" {
		if err := ErrorResponse(w, http.StatusForbidden, "forbidden", "Import is only available in the local environment"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	imported, err := h.ingestService.Ingest(r.Context())
	if err != nil {
		h.logger.Error("Ingestion run failed", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Import failed"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := ApiResponse{
		Success: true,
		Data:    ImportResponse{Imported: imported},
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
