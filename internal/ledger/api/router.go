package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledgerops/platform/internal/platform/httpmw"
)

// NewRouter builds the Ledger Facade's route table.
func NewRouter(h *Handler) http.Handler {
	metrics := httpmw.NewMetrics("ledger")

	r := mux.NewRouter()
	r.Use(httpmw.RequestID)
	r.Use(httpmw.Deadline(10 * time.Second))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/accounts", metrics.Instrument("/accounts", h.CreateAccount)).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{id}", metrics.Instrument("/accounts/{id}", h.GetAccount)).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}/entries", metrics.Instrument("/accounts/{id}/entries", h.GetAccountEntries)).Methods(http.MethodGet)
	r.HandleFunc("/ledger/transfer", metrics.Instrument("/ledger/transfer", h.ApplyTransfer)).Methods(http.MethodPost)

	return r
}
