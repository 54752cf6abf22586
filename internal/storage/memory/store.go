// Package memory provides an in-process storage.Store. Transactions run one
// at a time on a private copy of the state, which replaces the shared state
// only when the transaction succeeds.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"loanledger/internal/core"
	"loanledger/internal/storage"
)

type state struct {
	entries     []core.LedgerEntry
	balances    map[core.Account]core.BalanceSnapshot
	obligations []core.Obligation
	nextEntry   int64
	nextOblig   int64
}

func (s *state) clone() *state {
	return &state{
		entries:     slices.Clone(s.entries),
		balances:    maps.Clone(s.balances),
		obligations: slices.Clone(s.obligations),
		nextEntry:   s.nextEntry,
		nextOblig:   s.nextOblig,
	}
}

type Store struct {
	mu     sync.Mutex
	state  *state
	closed bool
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store with a zero snapshot for every account.
func New() *Store {
	balances := make(map[core.Account]core.BalanceSnapshot, len(core.Accounts))
	for _, a := range core.Accounts {
		balances[a] = core.BalanceSnapshot{Account: a}
	}
	return &Store{state: &state{balances: balances, nextEntry: 1, nextOblig: 1}}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: begin transaction: store closed", core.ErrStorageUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: begin transaction: %w", core.ErrStorageUnavailable, err)
	}

	work := s.state.clone()
	if err := fn(ctx, &txn{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type txn struct {
	st *state
}

func (t *txn) AppendEntry(_ context.Context, e core.LedgerEntry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, fmt.Errorf("insert ledger entry: %w", err)
	}
	e.ID = t.st.nextEntry
	t.st.nextEntry++
	t.st.entries = append(t.st.entries, e)
	return e.ID, nil
}

func (t *txn) Balance(_ context.Context, account core.Account) (core.BalanceSnapshot, error) {
	s, ok := t.st.balances[account]
	if !ok {
		return s, fmt.Errorf("balance of %s: %w", account, core.ErrUnknownAccount)
	}
	return s, nil
}

func (t *txn) SaveBalance(_ context.Context, s core.BalanceSnapshot) error {
	if _, ok := t.st.balances[s.Account]; !ok {
		return fmt.Errorf("update balance of %s: %w", s.Account, core.ErrUnknownAccount)
	}
	if !s.Consistent() {
		return fmt.Errorf("update balance of %s: %w", s.Account, core.ErrSnapshotDrift)
	}
	t.st.balances[s.Account] = s
	return nil
}

func (t *txn) Balances(_ context.Context) ([]core.BalanceSnapshot, error) {
	out := make([]core.BalanceSnapshot, 0, len(t.st.balances))
	for _, s := range t.st.balances {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b core.BalanceSnapshot) int {
		return cmp.Compare(a.Account, b.Account)
	})
	return out, nil
}

func (t *txn) Entries(_ context.Context, account core.Account, start, stop core.Date) ([]core.LedgerEntry, error) {
	var out []core.LedgerEntry
	for _, e := range t.st.entries {
		if e.Account != account {
			continue
		}
		if !start.IsZero() && e.Date.Before(start) {
			continue
		}
		if !stop.IsZero() && !e.Date.Before(stop) {
			continue
		}
		out = append(out, e)
	}
	slices.SortStableFunc(out, compareEntries)
	return out, nil
}

func (t *txn) SumEntries(_ context.Context, account core.Account, cutoff core.Date) (core.Cents, core.Cents, error) {
	var debit, credit core.Cents
	for _, e := range t.st.entries {
		if e.Account != account {
			continue
		}
		if !cutoff.IsZero() && !e.Date.Before(cutoff) {
			continue
		}
		debit += e.Debit
		credit += e.Credit
	}
	return debit, credit, nil
}

func (t *txn) InsertObligation(_ context.Context, o core.Obligation) (int64, error) {
	if err := o.Validate(); err != nil {
		return 0, fmt.Errorf("insert obligation: %w", err)
	}
	o.ID = t.st.nextOblig
	t.st.nextOblig++
	t.st.obligations = append(t.st.obligations, o)
	return o.ID, nil
}

func (t *txn) CountObligations(_ context.Context) (int, error) {
	return len(t.st.obligations), nil
}

func (t *txn) Obligations(_ context.Context) ([]core.Obligation, error) {
	out := slices.Clone(t.st.obligations)
	slices.SortStableFunc(out, compareObligations)
	return out, nil
}

func (t *txn) DueObligations(_ context.Context, before core.Date) ([]core.Obligation, error) {
	var out []core.Obligation
	for _, o := range t.st.obligations {
		if !o.Fulfilled && o.DueDate.Before(before) {
			out = append(out, o)
		}
	}
	slices.SortStableFunc(out, compareObligations)
	return out, nil
}

func (t *txn) LockObligation(_ context.Context, id int64) (core.Obligation, error) {
	i := t.indexOf(id)
	if i < 0 {
		return core.Obligation{}, fmt.Errorf("obligation %d: %w", id, core.ErrNotFound)
	}
	return t.st.obligations[i], nil
}

func (t *txn) MarkFulfilled(_ context.Context, id int64) (bool, error) {
	i := t.indexOf(id)
	if i < 0 {
		return false, fmt.Errorf("obligation %d: %w", id, core.ErrNotFound)
	}
	if t.st.obligations[i].Fulfilled {
		return false, nil
	}
	t.st.obligations[i].Fulfilled = true
	return true, nil
}

func (t *txn) indexOf(id int64) int {
	return slices.IndexFunc(t.st.obligations, func(o core.Obligation) bool { return o.ID == id })
}

func compareEntries(a, b core.LedgerEntry) int {
	if c := a.Date.Compare(b.Date.Time); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func compareObligations(a, b core.Obligation) int {
	if c := a.DueDate.Compare(b.DueDate.Time); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
