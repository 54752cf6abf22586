package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"loanledger/internal/backend"
	"loanledger/internal/cli"
	apphttp "loanledger/internal/http"
	"loanledger/internal/ledger"
	"loanledger/internal/loan"
	"loanledger/internal/log"
	"loanledger/internal/sheets/google"
)

func main() {
	cli.LoadEnvFile()

	cfg, logger := cli.LoadAndValidateConfig(log.ComponentHTTP)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := cli.GracefulShutdown(logger)
	defer cancel()

	res, err := backend.NewFactory(logger).Create(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Cleanup failed", log.FieldError, err)
		}
	}()

	deps := apphttp.Deps{
		Ledger:             ledger.New(res.Store, res.Publisher).WithLogger(logger),
		Timeline:           loan.NewTimeline(res.Store),
		Terms:              cfg.Loan.Terms(),
		Currency:           cfg.Currency,
		Workers:            cfg.ReconcileWorkers,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}
	if res.AMQP != nil {
		deps.Queue = res.AMQP
	}
	if cfg.GoogleSpreadsheetID != "" {
		w, err := google.New(ctx, cfg.GoogleSpreadsheetID)
		if err != nil {
			logger.Warn("Google Sheets unavailable - statement export disabled", log.FieldError, err)
		} else {
			deps.Sheets = w
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting loanledger server",
			"port", cfg.Port,
			"storage", cfg.StorageBackend,
			"events", cfg.EventsBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldError, err)
	}
	logger.Info("Server stopped gracefully")
}
