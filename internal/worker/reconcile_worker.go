// Package worker runs reconciliation in the background: once at startup,
// then on a fixed interval and whenever a reconcile request arrives.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"loanledger/internal/core"
	"loanledger/internal/events"
	"loanledger/internal/ledger"
	"loanledger/internal/log"
)

// ReconcileWorker schedules reconciliation passes. Passes never overlap.
type ReconcileWorker struct {
	reconciler *ledger.Reconciler
	interval   time.Duration
	today      func() core.Date
	logger     *log.Logger

	mu sync.Mutex
}

func NewReconcileWorker(reconciler *ledger.Reconciler, interval time.Duration, logger *log.Logger) *ReconcileWorker {
	return &ReconcileWorker{
		reconciler: reconciler,
		interval:   interval,
		today:      core.Today,
		logger:     logger.WithComponent(log.ComponentWorker),
	}
}

// RunOnce reconciles the obligations due before asOf.
func (w *ReconcileWorker) RunOnce(ctx context.Context, asOf core.Date) (ledger.Report, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	report, err := w.reconciler.Reconcile(ctx, asOf)
	if err != nil {
		return report, fmt.Errorf("reconcile as of %s: %w", asOf, err)
	}
	if len(report.Mismatched) > 0 {
		w.logger.WarnContext(ctx, "Obligations left unfulfilled",
			log.FieldAsOf, asOf.String(),
			"obligation_ids", report.Mismatched)
	}
	return report, nil
}

// HandleReconcileRequest processes a single reconcile request from AMQP.
// A request without a date reconciles as of today.
func (w *ReconcileWorker) HandleReconcileRequest(ctx context.Context, req *events.ReconcileRequest) error {
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = w.today()
	}
	w.logger.InfoContext(ctx, "Processing reconcile request",
		log.FieldRequestID, req.ID,
		log.FieldAsOf, asOf.String())

	_, err := w.RunOnce(ctx, asOf)
	return err
}

// Run reconciles at startup and then every interval until ctx is done.
// Failed passes are logged; the next tick retries them.
func (w *ReconcileWorker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Running initial reconciliation...")
	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			w.tick(ctx)
			w.logger.DebugContext(ctx, "Next reconciliation scheduled",
				"next_check", now.Add(w.interval).Format("15:04:05"))
		}
	}
}

func (w *ReconcileWorker) tick(ctx context.Context) {
	report, err := w.RunOnce(ctx, w.today())
	if err != nil {
		w.logger.ErrorContext(ctx, "Periodic reconciliation failed", log.FieldError, err)
		return
	}
	w.logger.InfoContext(ctx, "Periodic reconciliation complete",
		"fulfilled", len(report.Fulfilled),
		"entries", report.Entries)
}
