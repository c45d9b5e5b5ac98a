// Package api is the Transfer HTTP Facade: request framing, Idempotency-Key
// header enforcement, and correlation-id propagation.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/ledgerops/platform/internal/platform/apperr"
	"github.com/ledgerops/platform/internal/platform/logging"
	"github.com/ledgerops/platform/internal/transfer/batch"
	"github.com/ledgerops/platform/internal/transfer/coordinator"
	"github.com/ledgerops/platform/internal/transfer/domain"
)

type Handler struct {
	coordinator *coordinator.Coordinator
	batch       *batch.Dispatcher
}

func NewHandler(coord *coordinator.Coordinator, dispatcher *batch.Dispatcher) *Handler {
	return &Handler{coordinator: coord, batch: dispatcher}
}

type createTransferRequest struct {
	FromAccountID int64           `json:"fromAccountId"`
	ToAccountID   int64           `json:"toAccountId"`
	Amount        decimal.Decimal `json:"amount"`
}

func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey == "" {
		respondError(w, http.StatusBadRequest, "missing Idempotency-Key header")
		return
	}

	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	record, err := h.coordinator.CreateTransfer(r.Context(), domain.Intent{
		IdempotencyKey: idemKey,
		FromAccountID:  req.FromAccountID,
		ToAccountID:    req.ToAccountID,
		Amount:         req.Amount,
	})
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, record)
}

func (h *Handler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	record, err := h.coordinator.GetTransfer(r.Context(), id)
	if err != nil {
		logging.L().Error().Err(err).Msg("transfer facade: get transfer failed")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, "transfer not found")
		return
	}
	respondJSON(w, http.StatusOK, record)
}

type batchIntent struct {
	IdempotencyKey string          `json:"idempotencyKey"`
	FromAccountID  int64           `json:"fromAccountId"`
	ToAccountID    int64           `json:"toAccountId"`
	Amount         decimal.Decimal `json:"amount"`
}

type batchRequest struct {
	Transfers []batchIntent `json:"transfers"`
}

type batchResponse struct {
	Transfers []*domain.Record `json:"transfers"`
}

func (h *Handler) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	intents := make([]domain.Intent, len(req.Transfers))
	for i, t := range req.Transfers {
		intents[i] = domain.Intent{
			IdempotencyKey: t.IdempotencyKey,
			FromAccountID:  t.FromAccountID,
			ToAccountID:    t.ToAccountID,
			Amount:         t.Amount,
		}
	}

	records, err := h.batch.ProcessBatch(r.Context(), intents)
	if err != nil {
		writeCoordinatorError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, batchResponse{Transfers: records})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeCoordinatorError(w http.ResponseWriter, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidRequest, apperr.KindIdempotencyConflict:
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		logging.L().Error().Err(err).Msg("transfer facade: unexpected error")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}
