// Package handlers provides HTTP handlers for portfolio valuation.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ledgerview/ledgerview/internal/domain"
	"github.com/ledgerview/ledgerview/internal/modules/valuation"
)

// Handler handles valuation HTTP requests
type Handler struct {
	engine *valuation.Engine
	log    zerolog.Logger
}

// NewHandler creates a new valuation handler
func NewHandler(engine *valuation.Engine, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		log:    log.With().Str("handler", "valuation").Logger(),
	}
}

// HandleGetSnapshot handles GET /api/portfolio/snapshot?owner=
func (h *Handler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		http.Error(w, "Query parameter 'owner' is required", http.StatusBadRequest)
		return
	}

	snap, err := h.engine.ComputeSnapshot(r.Context(), ownerID)
	if err != nil {
		h.log.Error().Err(err).Str("owner", ownerID).Msg("Snapshot computation failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// HandleGetAllocation handles GET /api/portfolio/allocation?owner=
func (h *Handler) HandleGetAllocation(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		http.Error(w, "Query parameter 'owner' is required", http.StatusBadRequest)
		return
	}

	breakdown, err := h.engine.CategoryBreakdown(r.Context(), ownerID)
	if err != nil {
		h.log.Error().Err(err).Str("owner", ownerID).Msg("Allocation computation failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, breakdown)
}

// HandleGetHistory handles GET /api/history/{symbol}?range=
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	historyRange := r.URL.Query().Get("range")
	if historyRange == "" {
		historyRange = "6mo"
	}

	report, err := h.engine.HistoryReport(r.Context(), symbol, historyRange)
	if err != nil {
		if errors.Is(err, domain.ErrSymbolNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "symbol not found: " + symbol})
			return
		}
		h.log.Error().Err(err).Str("symbol", symbol).Msg("History report failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
