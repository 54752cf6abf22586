// Package storage persists the ledger, the balance snapshots and the loan
// timeline. Every read and write happens inside a transaction obtained from
// Store.WithTx; nothing is cached between transactions.
package storage

import (
	"context"

	"loanledger/internal/core"
)

type (
	// Store runs units of work atomically. fn's writes are committed when it
	// returns nil and rolled back otherwise. Failures to begin or commit are
	// reported wrapped in core.ErrStorageUnavailable.
	Store interface {
		WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
		Close() error
	}

	// Tx is the set of statements available inside a transaction.
	Tx interface {
		LedgerTx
		TimelineTx
	}

	LedgerTx interface {
		// AppendEntry inserts a ledger row and returns its id.
		AppendEntry(ctx context.Context, e core.LedgerEntry) (int64, error)
		// Balance reads an account snapshot. Backends with row locks hold
		// the row until the transaction ends.
		Balance(ctx context.Context, account core.Account) (core.BalanceSnapshot, error)
		SaveBalance(ctx context.Context, s core.BalanceSnapshot) error
		Balances(ctx context.Context) ([]core.BalanceSnapshot, error)
		// Entries returns the rows dated in [start, stop), ordered by date
		// then id. A zero bound is open.
		Entries(ctx context.Context, account core.Account, start, stop core.Date) ([]core.LedgerEntry, error)
		// SumEntries totals the rows dated strictly before cutoff. A zero
		// cutoff totals every row.
		SumEntries(ctx context.Context, account core.Account, cutoff core.Date) (debit, credit core.Cents, err error)
	}

	TimelineTx interface {
		InsertObligation(ctx context.Context, o core.Obligation) (int64, error)
		CountObligations(ctx context.Context) (int, error)
		// Obligations returns the whole timeline ordered by due date then id.
		Obligations(ctx context.Context) ([]core.Obligation, error)
		// DueObligations returns unfulfilled obligations due strictly
		// before the given date, ordered by due date then id.
		DueObligations(ctx context.Context, before core.Date) ([]core.Obligation, error)
		// LockObligation reads one obligation, locking it where supported.
		LockObligation(ctx context.Context, id int64) (core.Obligation, error)
		// MarkFulfilled flips the fulfilled flag and reports whether this
		// call did it; false means the obligation was already fulfilled.
		MarkFulfilled(ctx context.Context, id int64) (bool, error)
	}
)
