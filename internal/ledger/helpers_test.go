package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"loanledger/internal/core"
	"loanledger/internal/events"
	"loanledger/internal/storage"
	"loanledger/internal/storage/memory"
)

var errBoom = errors.New("boom")

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.PostingEvent
	err    error
}

func (p *recordingPublisher) PublishPosting(_ context.Context, ev *events.PostingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// faultyStore fails every entry insert on failOn.
type faultyStore struct {
	storage.Store
	failOn core.Account
}

func (s *faultyStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return s.Store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return fn(ctx, faultyTx{Tx: tx, failOn: s.failOn})
	})
}

type faultyTx struct {
	storage.Tx
	failOn core.Account
}

func (t faultyTx) AppendEntry(ctx context.Context, e core.LedgerEntry) (int64, error) {
	if e.Account == t.failOn {
		return 0, errBoom
	}
	return t.Tx.AppendEntry(ctx, e)
}

// listingBarrier holds every transaction that listed due obligations until
// all expected listers have done so. The wait happens after the transaction
// commits, so the store is not locked while passes wait for each other.
type listingBarrier struct {
	storage.Store
	listed *sync.WaitGroup
}

func (s *listingBarrier) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	var didList bool
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return fn(ctx, listingTx{Tx: tx, didList: &didList})
	})
	if didList {
		s.listed.Done()
		s.listed.Wait()
	}
	return err
}

type listingTx struct {
	storage.Tx
	didList *bool
}

func (t listingTx) DueObligations(ctx context.Context, before core.Date) ([]core.Obligation, error) {
	*t.didList = true
	return t.Tx.DueObligations(ctx, before)
}

func newTestLedger(t *testing.T) (*Ledger, *memory.Store, *recordingPublisher) {
	t.Helper()
	store := memory.New()
	pub := &recordingPublisher{}
	return New(store, pub), store, pub
}

func insertObligation(t *testing.T, store storage.Store, o core.Obligation) int64 {
	t.Helper()
	var id int64
	err := store.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		id, err = tx.InsertObligation(ctx, o)
		return err
	})
	if err != nil {
		t.Fatalf("insert obligation: %v", err)
	}
	return id
}

func obligations(t *testing.T, store storage.Store) []core.Obligation {
	t.Helper()
	var out []core.Obligation
	err := store.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.Obligations(ctx)
		return err
	})
	if err != nil {
		t.Fatalf("list obligations: %v", err)
	}
	return out
}

func history(t *testing.T, l *Ledger, account core.Account) []core.LedgerEntry {
	t.Helper()
	entries, err := l.History(context.Background(), account, core.Date{}, core.Date{})
	if err != nil {
		t.Fatalf("History(%s) error = %v", account, err)
	}
	return entries
}

func balance(t *testing.T, l *Ledger, account core.Account) core.Cents {
	t.Helper()
	snap, err := l.CurrentBalance(context.Background(), account)
	if err != nil {
		t.Fatalf("CurrentBalance(%s) error = %v", account, err)
	}
	return snap.Balance
}
