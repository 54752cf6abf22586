package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"loanledger/internal/core"
	"loanledger/internal/events"
	"loanledger/internal/log"
	"loanledger/internal/storage"
)

// CounterpartyBank is the counterparty of reconciled obligations.
const CounterpartyBank = "bank"

// Report summarizes one reconciliation pass.
type Report struct {
	AsOf       core.Date
	Due        int
	Fulfilled  []int64 // obligation ids, in processing order when Workers <= 1
	Skipped    []int64 // already fulfilled by a concurrent pass
	Mismatched []int64 // shares do not add up; left unfulfilled
	Entries    int
	Duration   time.Duration
}

// Reconciler turns due obligations into ledger postings.
type Reconciler struct {
	ledger  *Ledger
	workers int
	logger  *log.Logger
}

// NewReconciler returns a reconciler posting through l. With workers > 1
// distinct obligations are reconciled concurrently.
func NewReconciler(l *Ledger, workers int) *Reconciler {
	if workers < 1 {
		workers = 1
	}
	return &Reconciler{
		ledger:  l,
		workers: workers,
		logger:  l.logger.WithComponent(log.ComponentReconcile),
	}
}

// Reconcile posts every unfulfilled obligation due strictly before asOf.
//
// Each obligation is reconciled in its own transaction: the three debits
// and the fulfilled flag commit together, so a failed obligation stays
// eligible for the next pass. Obligations whose shares do not add up are
// reported and left alone. The first storage error stops the pass and is
// returned together with the partial report.
func (r *Reconciler) Reconcile(ctx context.Context, asOf core.Date) (Report, error) {
	start := time.Now()
	report := Report{AsOf: asOf}
	if asOf.IsZero() {
		return report, fmt.Errorf("reconcile: %w: empty as-of date", core.ErrInvalidDate)
	}

	var due []core.Obligation
	err := r.ledger.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		due, err = tx.DueObligations(ctx, asOf)
		return err
	})
	if err != nil {
		return report, fmt.Errorf("reconcile: list due obligations: %w", err)
	}
	report.Due = len(due)

	var mu sync.Mutex
	record := func(o core.Obligation, res result) {
		mu.Lock()
		defer mu.Unlock()
		switch res.status {
		case fulfilled:
			report.Fulfilled = append(report.Fulfilled, o.ID)
			report.Entries += len(res.entries)
		case skipped:
			report.Skipped = append(report.Skipped, o.ID)
		case mismatched:
			report.Mismatched = append(report.Mismatched, o.ID)
		}
	}

	if r.workers == 1 {
		for _, o := range due {
			res, err := r.reconcileOne(ctx, o)
			if err != nil {
				report.Duration = time.Since(start)
				return report, err
			}
			record(o, res)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.workers)
		for _, o := range due {
			g.Go(func() error {
				res, err := r.reconcileOne(gctx, o)
				if err != nil {
					return err
				}
				record(o, res)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
	}

	report.Duration = time.Since(start)
	r.logger.InfoContext(ctx, "Reconciliation finished",
		log.FieldAsOf, asOf.String(),
		"due", report.Due,
		"fulfilled", len(report.Fulfilled),
		"skipped", len(report.Skipped),
		"mismatched", len(report.Mismatched),
		log.FieldDuration, report.Duration.Milliseconds())
	return report, nil
}

type status int

const (
	fulfilled status = iota
	skipped
	mismatched
)

type result struct {
	status  status
	entries []core.LedgerEntry
}

var errAlreadyFulfilled = errors.New("obligation already fulfilled")

func (r *Reconciler) reconcileOne(ctx context.Context, o core.Obligation) (result, error) {
	if err := o.CheckShares(); err != nil {
		r.logger.WarnContext(ctx, "Skipping obligation with mismatched shares",
			log.NewFields().WithObligation(o).WithError(err).ToSlice()...)
		return result{status: mismatched}, nil
	}

	var posted []core.LedgerEntry
	err := r.ledger.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		posted = posted[:0]
		current, err := tx.LockObligation(ctx, o.ID)
		if err != nil {
			return err
		}
		if current.Fulfilled {
			return errAlreadyFulfilled
		}
		if err := current.CheckShares(); err != nil {
			return err
		}

		legs := []Leg{
			{Account: core.HolderA, Amount: -current.ShareA},
			{Account: core.HolderB, Amount: -current.ShareB},
			{Account: core.Joint, Amount: -current.Amount},
		}
		for _, leg := range legs {
			if leg.Amount == 0 {
				continue
			}
			e, err := post(ctx, tx, core.NewEntry(leg.Account, leg.Amount, current.DueDate, CounterpartyBank, current.Kind.String()))
			if err != nil {
				return fmt.Errorf("post %s: %w", leg.Account, err)
			}
			posted = append(posted, e)
		}

		ok, err := tx.MarkFulfilled(ctx, current.ID)
		if err != nil {
			return err
		}
		if !ok {
			return errAlreadyFulfilled
		}
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyFulfilled):
		r.logger.DebugContext(ctx, "Obligation already fulfilled", log.FieldObligationID, o.ID)
		return result{status: skipped}, nil
	case errors.Is(err, core.ErrAmountMismatch):
		r.logger.WarnContext(ctx, "Skipping obligation with mismatched shares",
			log.NewFields().WithObligation(o).WithError(err).ToSlice()...)
		return result{status: mismatched}, nil
	case err != nil:
		return result{}, fmt.Errorf("reconcile obligation %d: %w", o.ID, err)
	}

	r.logger.InfoContext(ctx, "Reconciled obligation", log.NewFields().WithObligation(o).ToSlice()...)
	ev := events.NewPostingEvent(events.OpReconcile, posted)
	ev.ObligationID = o.ID
	r.ledger.publish(ctx, ev)
	return result{status: fulfilled, entries: posted}, nil
}
