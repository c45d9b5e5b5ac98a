package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledgerops/platform/internal/platform/httpmw"
)

// NewRouter builds the Transfer Facade's route table.
func NewRouter(h *Handler) http.Handler {
	metrics := httpmw.NewMetrics("transfer")

	r := mux.NewRouter()
	r.Use(httpmw.RequestID)
	r.Use(httpmw.Deadline(15 * time.Second))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/transfers", metrics.Instrument("/transfers", h.CreateTransfer)).Methods(http.MethodPost)
	r.HandleFunc("/transfers/{id}", metrics.Instrument("/transfers/{id}", h.GetTransfer)).Methods(http.MethodGet)
	r.HandleFunc("/transfers/batch", metrics.Instrument("/transfers/batch", h.ProcessBatch)).Methods(http.MethodPost)

	return r
}
