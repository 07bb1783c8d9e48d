// Package main is the entry point for the LedgerView portfolio valuation and
// reconciliation service. It wires the transaction ledger, the price oracle
// and the valuation engine together, starts the background quote refresh and
// serves the HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ledgerview/ledgerview/internal/clients/yahoo"
	"github.com/ledgerview/ledgerview/internal/config"
	"github.com/ledgerview/ledgerview/internal/database"
	"github.com/ledgerview/ledgerview/internal/modules/ledger"
	ledgerhandlers "github.com/ledgerview/ledgerview/internal/modules/ledger/handlers"
	"github.com/ledgerview/ledgerview/internal/modules/pricing"
	"github.com/ledgerview/ledgerview/internal/modules/valuation"
	valuationhandlers "github.com/ledgerview/ledgerview/internal/modules/valuation/handlers"
	"github.com/ledgerview/ledgerview/internal/scheduler"
	"github.com/ledgerview/ledgerview/internal/server"
	"github.com/ledgerview/ledgerview/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting LedgerView")

	// Ledger database. The ledger profile trades write speed for durability;
	// accepted transactions must survive a crash.
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	if err := ledgerDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate ledger database")
	}

	// Ledger module
	ledgerRepo := ledger.NewRepository(ledgerDB.Conn(), log)
	ledgerService := ledger.NewService(ledgerRepo, log)

	// Market data provider and price oracle
	yahooClient := yahoo.NewClient(yahoo.Config{
		RequestTimeout:    cfg.FetchTimeout,
		RequestsPerSecond: cfg.ProviderRateLimit,
	}, log)

	oracle := pricing.New(yahooClient, pricing.Config{
		QuoteTTL:     cfg.QuoteTTL,
		HistoryTTL:   cfg.HistoryTTL,
		FetchTimeout: cfg.FetchTimeout,
	}, log)

	// Valuation engine
	engine := valuation.NewEngine(ledgerService, oracle, valuation.Config{
		LookupConcurrency: cfg.LookupConcurrency,
		SnapshotTimeout:   cfg.SnapshotTimeout,
	}, log)

	// Background quote refresh for held symbols
	sched := scheduler.New(log)
	if cfg.RefreshSchedule != "" {
		refreshJob := scheduler.NewPriceRefreshJob(ledgerRepo, oracle, log)
		if err := sched.AddJob(cfg.RefreshSchedule, refreshJob); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.RefreshSchedule).Msg("Failed to register price refresh job")
		}
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:              log,
		LedgerDB:         ledgerDB,
		LedgerHandler:    ledgerhandlers.NewHandler(ledgerService, log),
		ValuationHandler: valuationhandlers.NewHandler(engine, log),
		Port:             cfg.Port,
		DevMode:          cfg.DevMode,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("HTTP server failed")
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	log.Info().Msg("LedgerView stopped")
}
