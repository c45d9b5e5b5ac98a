// Command ledger runs the Ledger Engine + Facade service.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledgerops/platform/internal/ledger/api"
	"github.com/ledgerops/platform/internal/ledger/engine"
	"github.com/ledgerops/platform/internal/platform/config"
	"github.com/ledgerops/platform/internal/platform/dbconn"
	"github.com/ledgerops/platform/internal/platform/logging"
)

func main() {
	cfg, err := config.LoadLedger()
	if err != nil {
		panic(err)
	}

	logging.Init("ledger", cfg.LogLevel)
	log := logging.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := dbconn.Open(ctx, cfg.DBSource, cfg.DDLPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("ledger: failed to connect to database")
	}
	defer pool.Close()

	eng := engine.New(pool, cfg.MaxAttempts, cfg.RetryBase)
	handler := api.NewHandler(eng)
	router := api.NewRouter(handler)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("ledger: listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ledger: server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("ledger: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ledger: graceful shutdown failed")
	}
}
