package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"loanledger/internal/backend"
	"loanledger/internal/cli"
	"loanledger/internal/ledger"
	"loanledger/internal/log"
	"loanledger/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, logger := cli.LoadAndValidateConfig(log.ComponentWorker)
	logger.Info("Starting reconcile-worker",
		"storage", cfg.StorageBackend,
		"events", cfg.EventsBackend,
		"interval", cfg.ReconcileInterval,
		"workers", cfg.ReconcileWorkers)

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

	l := ledger.New(res.Store, res.Publisher).WithLogger(logger)
	w := worker.NewReconcileWorker(ledger.NewReconciler(l, cfg.ReconcileWorkers), cfg.ReconcileInterval, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	if res.AMQP != nil {
		g.Go(func() error { return res.AMQP.ConsumeReconcileRequests(gctx, w.HandleReconcileRequest) })
	} else {
		logger.Info("AMQP disabled - reconcile requests will not be consumed")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Reconcile worker stopped", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Reconcile-worker shutdown complete")
}
