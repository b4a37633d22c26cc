package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-engine/pkg/apperrors"
	"github.com/cardhaven/cardhaven-engine/pkg/services"
)

// CardsHandler handles card search requests.
type CardsHandler struct {
	queryService services.CardQueryService
	logger       *zap.Logger
}

// NewCardsHandler creates a new CardsHandler.
func NewCardsHandler(queryService services.CardQueryService, logger *zap.Logger) *CardsHandler {
	return &CardsHandler{queryService: queryService, logger: logger}
}

// RegisterRoutes registers the cards handler's routes on the given mux.
func (h *CardsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/cards", h.Search)
}

// Search handles GET /api/cards. Every query parameter is a filter; repeated
// parameters collapse to their first value.
func (h *CardsHandler) Search(w http.ResponseWriter, r *http.Request) {
	params := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	result, err := h.queryService.Search(r.Context(), params)
	if err != nil {
		var validation *apperrors.ValidationError
		if errors.As(err, &validation) {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_query", validation.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}

		h.logger.Error("Card search failed", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Internal server error"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := ApiResponse{
		Success: true,
		Data:    result,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
