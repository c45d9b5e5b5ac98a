// Command coordinator runs the Transfer Coordinator + Batch Dispatcher +
// Facade service, including the recovery sweep for orphaned PENDING records.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledgerops/platform/internal/platform/breaker"
	"github.com/ledgerops/platform/internal/platform/config"
	"github.com/ledgerops/platform/internal/platform/dbconn"
	"github.com/ledgerops/platform/internal/platform/logging"
	"github.com/ledgerops/platform/internal/transfer/api"
	"github.com/ledgerops/platform/internal/transfer/batch"
	tclient "github.com/ledgerops/platform/internal/transfer/client"
	"github.com/ledgerops/platform/internal/transfer/coordinator"
	"github.com/ledgerops/platform/internal/transfer/pool"
)

func main() {
	cfg, err := config.LoadCoordinator()
	if err != nil {
		panic(err)
	}

	logging.Init("coordinator", cfg.LogLevel)
	log := logging.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := dbconn.Open(ctx, cfg.DBSource, cfg.DDLPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("coordinator: failed to connect to database")
	}
	defer db.Close()

	ledgerClient := tclient.New(cfg.LedgerURL, tclient.Config{
		MaxAttempts:    cfg.RetryMaxAttempts,
		InitialBackoff: cfg.RetryInitialDelay,
		MaxBackoff:     cfg.RetryMaxDelay,
		Breaker: breaker.Config{
			WindowSize:        cfg.BreakerWindowSize,
			FailureRateThresh: cfg.BreakerFailureRate,
			OpenDuration:      cfg.BreakerOpenDuration,
			HalfOpenProbes:    cfg.BreakerHalfOpenProbes,
		},
	})

	workerPool := pool.New(cfg.WorkerPoolSize)
	coord := coordinator.New(db, ledgerClient, workerPool)
	dispatcher := batch.New(coord, workerPool)

	handler := api.NewHandler(coord, dispatcher)
	router := api.NewRouter(handler)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	sweepTicker := time.NewTicker(cfg.PendingSweepInterval)
	defer sweepTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sweepTicker.C:
				n, err := coord.SweepPending(ctx, cfg.PendingSweepAge)
				if err != nil {
					log.Error().Err(err).Msg("coordinator: pending sweep failed")
					continue
				}
				if n > 0 {
					log.Info().Int("count", n).Msg("coordinator: re-dispatched orphaned pending records")
				}
			}
		}
	}()

	go func() {
		log.Info().Str("port", cfg.Port).Msg("coordinator: listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("coordinator: server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("coordinator: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("coordinator: graceful shutdown failed")
	}
}
