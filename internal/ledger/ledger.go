// Package ledger posts money movements on the three fixed accounts and
// reconciles the loan timeline into postings.
//
// Every operation re-reads state inside a storage transaction: an entry
// insert and the read-modify-write of its account snapshot always commit
// together, and multi-leg operations share a single transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"loanledger/internal/core"
	"loanledger/internal/events"
	"loanledger/internal/log"
	"loanledger/internal/storage"
)

type Ledger struct {
	store     storage.Store
	publisher events.Publisher
	logger    *log.Logger
}

// New returns a ledger over store. publisher may be nil.
func New(store storage.Store, publisher events.Publisher) *Ledger {
	return &Ledger{
		store:     store,
		publisher: publisher,
		logger:    log.FromContext(context.Background()).WithComponent(log.ComponentLedger),
	}
}

// WithLogger replaces the ledger's logger.
func (l *Ledger) WithLogger(logger *log.Logger) *Ledger {
	l.logger = logger.WithComponent(log.ComponentLedger)
	return l
}

// post appends one entry and folds it into the account snapshot.
func post(ctx context.Context, tx storage.Tx, e core.LedgerEntry) (core.LedgerEntry, error) {
	if err := e.Validate(); err != nil {
		return e, err
	}
	snap, err := tx.Balance(ctx, e.Account)
	if err != nil {
		return e, err
	}
	id, err := tx.AppendEntry(ctx, e)
	if err != nil {
		return e, err
	}
	e.ID = id
	if err := tx.SaveBalance(ctx, snap.Apply(e)); err != nil {
		return e, err
	}
	return e, nil
}

// Post records a signed amount on account: positive amounts are credits,
// negative amounts debits.
func (l *Ledger) Post(ctx context.Context, account core.Account, amount core.Cents, date core.Date, counterparty, operation string) (core.LedgerEntry, error) {
	if !account.Valid() {
		return core.LedgerEntry{}, fmt.Errorf("post: %w: %q", core.ErrUnknownAccount, account)
	}
	if amount == 0 {
		return core.LedgerEntry{}, fmt.Errorf("post: %w", core.ErrZeroAmount)
	}

	var posted core.LedgerEntry
	err := l.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		posted, err = post(ctx, tx, core.NewEntry(account, amount, date, counterparty, operation))
		return err
	})
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("post on %s: %w", account, err)
	}

	l.logger.InfoContext(ctx, "Posted entry", log.NewFields().WithEntry(posted).ToSlice()...)
	l.publish(ctx, events.NewPostingEvent(events.OpPost, []core.LedgerEntry{posted}))
	return posted, nil
}

// postLegs writes the legs in one transaction. Zero legs are skipped.
func (l *Ledger) postLegs(ctx context.Context, legs []Leg, date core.Date) ([]core.LedgerEntry, error) {
	var posted []core.LedgerEntry
	err := l.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		posted = posted[:0]
		for _, leg := range legs {
			if leg.Amount == 0 {
				continue
			}
			e, err := post(ctx, tx, core.NewEntry(leg.Account, leg.Amount, date, leg.Counterparty, leg.Operation))
			if err != nil {
				return fmt.Errorf("leg on %s: %w", leg.Account, err)
			}
			posted = append(posted, e)
		}
		return nil
	})
	return posted, err
}

// Transfer moves amount from issuer to recipient following the routing
// table. Both legs commit or neither does.
func (l *Ledger) Transfer(ctx context.Context, issuer, recipient core.Account, amount core.Cents, date core.Date) ([]core.LedgerEntry, error) {
	legs, err := Route(issuer, recipient, amount)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}

	posted, err := l.postLegs(ctx, legs, date)
	if err != nil {
		return nil, fmt.Errorf("transfer %s to %s: %w", issuer, recipient, err)
	}

	l.logger.InfoContext(ctx, "Transferred",
		"issuer", issuer,
		"recipient", recipient,
		log.FieldAmountCents, int64(amount),
		log.FieldDate, date.String())
	l.publish(ctx, events.NewPostingEvent(events.OpTransfer, posted))
	return posted, nil
}

// JointPurchase records a purchase paid to an external recipient and split
// between the holders: holder A is debited percentageA of amount, holder B
// the remainder and the joint account the full amount.
func (l *Ledger) JointPurchase(ctx context.Context, amount core.Cents, recipient string, percentageA decimal.Decimal, date core.Date, note string) ([]core.LedgerEntry, error) {
	if amount == 0 {
		return nil, fmt.Errorf("joint purchase: %w", core.ErrZeroAmount)
	}
	if amount < 0 {
		return nil, fmt.Errorf("joint purchase: %w: %s", core.ErrInvalidAmount, amount)
	}
	shareA, shareB, err := SplitPurchase(amount, percentageA)
	if err != nil {
		return nil, fmt.Errorf("joint purchase: %w", err)
	}

	legs := []Leg{
		{Account: core.HolderA, Amount: -shareA, Counterparty: recipient, Operation: note},
		{Account: core.HolderB, Amount: -shareB, Counterparty: recipient, Operation: note},
		{Account: core.Joint, Amount: -amount, Counterparty: recipient, Operation: note},
	}
	posted, err := l.postLegs(ctx, legs, date)
	if err != nil {
		return nil, fmt.Errorf("joint purchase: %w", err)
	}

	l.logger.InfoContext(ctx, "Recorded joint purchase",
		log.FieldCounterparty, recipient,
		log.FieldAmountCents, int64(amount),
		log.FieldShareA, int64(shareA),
		log.FieldShareB, int64(shareB))
	l.publish(ctx, events.NewPostingEvent(events.OpJointPurchase, posted))
	return posted, nil
}

// CurrentBalance returns the cached snapshot of account.
func (l *Ledger) CurrentBalance(ctx context.Context, account core.Account) (core.BalanceSnapshot, error) {
	if !account.Valid() {
		return core.BalanceSnapshot{}, fmt.Errorf("current balance: %w: %q", core.ErrUnknownAccount, account)
	}
	var snap core.BalanceSnapshot
	err := l.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		snap, err = tx.Balance(ctx, account)
		return err
	})
	if err != nil {
		return core.BalanceSnapshot{}, fmt.Errorf("current balance of %s: %w", account, err)
	}
	return snap, nil
}

// Balances returns the snapshots of every account.
func (l *Ledger) Balances(ctx context.Context) ([]core.BalanceSnapshot, error) {
	var out []core.BalanceSnapshot
	err := l.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.Balances(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	return out, nil
}

// BalanceAsOf recomputes the balance of account from the entries dated
// strictly before cutoff. It never reads the snapshot.
func (l *Ledger) BalanceAsOf(ctx context.Context, account core.Account, cutoff core.Date) (core.Cents, error) {
	if !account.Valid() {
		return 0, fmt.Errorf("balance as of: %w: %q", core.ErrUnknownAccount, account)
	}
	if cutoff.IsZero() {
		return 0, fmt.Errorf("balance as of: %w: empty cutoff", core.ErrInvalidDate)
	}
	var debit, credit core.Cents
	err := l.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		debit, credit, err = tx.SumEntries(ctx, account, cutoff)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("balance of %s as of %s: %w", account, cutoff, err)
	}
	return credit - debit, nil
}

// History returns the entries of account dated in [start, stop), ordered
// by date then insertion order.
func (l *Ledger) History(ctx context.Context, account core.Account, start, stop core.Date) ([]core.LedgerEntry, error) {
	if !account.Valid() {
		return nil, fmt.Errorf("history: %w: %q", core.ErrUnknownAccount, account)
	}
	var out []core.LedgerEntry
	err := l.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.Entries(ctx, account, start, stop)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", account, err)
	}
	return out, nil
}

// Drift describes a snapshot that disagrees with its ledger rows.
type Drift struct {
	Snapshot core.BalanceSnapshot
	Computed core.BalanceSnapshot
}

// Verify recomputes every snapshot from the ledger rows. It returns the
// drifting accounts and an error wrapping core.ErrSnapshotDrift when there
// is at least one.
func (l *Ledger) Verify(ctx context.Context) ([]Drift, error) {
	var drifts []Drift
	err := l.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		drifts = drifts[:0]
		for _, account := range core.Accounts {
			snap, err := tx.Balance(ctx, account)
			if err != nil {
				return err
			}
			computed, err := recompute(ctx, tx, account)
			if err != nil {
				return err
			}
			if snap.TotalDebit != computed.TotalDebit || snap.TotalCredit != computed.TotalCredit || !snap.Consistent() {
				drifts = append(drifts, Drift{Snapshot: snap, Computed: computed})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify balances: %w", err)
	}

	if len(drifts) > 0 {
		errs := make([]error, 0, len(drifts))
		for _, d := range drifts {
			l.logger.WarnContext(ctx, "Balance snapshot drift",
				log.FieldAccount, d.Snapshot.Account,
				"snapshot_cents", int64(d.Snapshot.Balance),
				"computed_cents", int64(d.Computed.Balance))
			errs = append(errs, fmt.Errorf("%w: %s snapshot %s, ledger %s",
				core.ErrSnapshotDrift, d.Snapshot.Account, d.Snapshot.Balance, d.Computed.Balance))
		}
		return drifts, errors.Join(errs...)
	}
	return nil, nil
}

// Rebuild rewrites every snapshot from the ledger rows in one transaction.
func (l *Ledger) Rebuild(ctx context.Context) ([]core.BalanceSnapshot, error) {
	start := time.Now()
	var out []core.BalanceSnapshot
	err := l.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		out = out[:0]
		for _, account := range core.Accounts {
			snap, err := recompute(ctx, tx, account)
			if err != nil {
				return err
			}
			if err := tx.SaveBalance(ctx, snap); err != nil {
				return err
			}
			out = append(out, snap)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rebuild balances: %w", err)
	}

	l.logger.InfoContext(ctx, "Rebuilt balance snapshots", log.FieldDuration, time.Since(start).Milliseconds())
	return out, nil
}

func recompute(ctx context.Context, tx storage.Tx, account core.Account) (core.BalanceSnapshot, error) {
	entries, err := tx.Entries(ctx, account, core.Date{}, core.Date{})
	if err != nil {
		return core.BalanceSnapshot{}, err
	}
	snap := core.BalanceSnapshot{Account: account}
	for _, e := range entries {
		snap = snap.Apply(e)
	}
	return snap, nil
}

// publish sends ev after its transaction committed. The ledger rows are
// the record: a failed publish is logged and dropped.
func (l *Ledger) publish(ctx context.Context, ev *events.PostingEvent) {
	if l.publisher == nil || len(ev.Entries) == 0 {
		return
	}
	if err := l.publisher.PublishPosting(ctx, ev); err != nil {
		l.logger.WarnContext(ctx, "Failed to publish posting event",
			log.FieldEventID, ev.ID,
			log.FieldOperation, ev.Operation,
			log.FieldError, err)
	}
}
