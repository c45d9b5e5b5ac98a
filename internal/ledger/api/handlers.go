// Package api is the Ledger HTTP Facade: a thin request/response surface
// over the engine whose only added behavior is error categorization —
// deterministic rejections map to 4xx, transient errors map to 5xx, and
// alreadyApplied is reported as plain success.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/ledgerops/platform/internal/ledger/engine"
	"github.com/ledgerops/platform/internal/platform/apperr"
	"github.com/ledgerops/platform/internal/platform/logging"
)

type Handler struct {
	engine *engine.Engine
}

func NewHandler(e *engine.Engine) *Handler {
	return &Handler{engine: e}
}

type createAccountRequest struct {
	InitialBalance decimal.Decimal `json:"initialBalance"`
}

type accountResponse struct {
	ID      int64           `json:"id"`
	Balance decimal.Decimal `json:"balance"`
	Version int64           `json:"version"`
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	acc, err := h.engine.CreateAccount(r.Context(), req.InitialBalance)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, accountResponse{ID: acc.ID, Balance: acc.Balance, Version: acc.Version})
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	acc, err := h.engine.GetAccount(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if acc == nil {
		respondError(w, http.StatusNotFound, "account not found")
		return
	}
	respondJSON(w, http.StatusOK, accountResponse{ID: acc.ID, Balance: acc.Balance, Version: acc.Version})
}

func (h *Handler) GetAccountEntries(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	entries, err := h.engine.GetEntries(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

type transferRequest struct {
	TransferID    string          `json:"transferId"`
	FromAccountID int64           `json:"fromAccountId"`
	ToAccountID   int64           `json:"toAccountId"`
	Amount        decimal.Decimal `json:"amount"`
}

type transferResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *Handler) ApplyTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	outcome, err := h.engine.ApplyTransfer(r.Context(), req.TransferID, req.FromAccountID, req.ToAccountID, req.Amount)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	// alreadyApplied is reported as success: the caller cannot distinguish
	// first application from replay.
	msg := "transfer applied"
	if outcome.AlreadyApplied {
		msg = "transfer already applied"
	}
	respondJSON(w, http.StatusOK, transferResponse{Success: true, Message: msg})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidRequest, apperr.KindAccountNotFound, apperr.KindInsufficientFunds:
		respondError(w, http.StatusBadRequest, err.Error())
	case apperr.KindTransient:
		logging.L().Error().Err(err).Msg("ledger: transient storage failure")
		respondError(w, http.StatusInternalServerError, "transient storage error, retry")
	default:
		logging.L().Error().Err(err).Msg("ledger: unexpected error")
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

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
