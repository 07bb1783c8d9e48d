// Package handlers provides HTTP handlers for ledger operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ledgerview/ledgerview/internal/domain"
	"github.com/ledgerview/ledgerview/internal/modules/ledger"
)

// Handler handles ledger HTTP requests
type Handler struct {
	service *ledger.Service
	log     zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(service *ledger.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "ledger").Logger(),
	}
}

type submitRequest struct {
	OwnerID string `json:"owner_id"`
	domain.TransactionSpec
}

type importRequest struct {
	OwnerID      string                   `json:"owner_id"`
	Transactions []domain.TransactionSpec `json:"transactions"`
}

// HandleSubmitTransaction handles POST /api/transactions
func (h *Handler) HandleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := h.service.Append(r.Context(), req.OwnerID, req.TransactionSpec)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

// HandleImportBatch handles POST /api/transactions/import.
// The batch is all-or-nothing: one bad entry rejects every entry.
func (h *Handler) HandleImportBatch(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	txs, err := h.service.ImportBatch(r.Context(), req.OwnerID, req.Transactions)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"imported":     len(txs),
		"transactions": txs,
	})
}

// HandleGetTransactions handles GET /api/transactions?owner=&symbol=
func (h *Handler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	symbol := r.URL.Query().Get("symbol")

	txs, err := h.service.Query(r.Context(), ownerID, symbol)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}

	writeJSON(w, http.StatusOK, txs)
}

// writeLedgerError maps ledger validation errors to HTTP statuses.
// Validation failures carry the reason back to the caller for immediate
// feedback; anything else is an internal error.
func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidTransaction):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrInsufficientHoldings):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		h.log.Error().Err(err).Msg("Ledger operation failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
