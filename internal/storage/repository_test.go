package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"loanledger/internal/core"
)

func newTestRepository(t *testing.T) *SQLRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLRepository_SeededBalances(t *testing.T) {
	repo := newTestRepository(t)

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		balances, err := tx.Balances(ctx)
		if err != nil {
			return err
		}
		if len(balances) != 3 {
			t.Fatalf("Balances() returned %d rows, want 3", len(balances))
		}
		for _, b := range balances {
			if !b.Account.Valid() || b.Balance != 0 || !b.AsOf.IsZero() {
				t.Errorf("seeded balance = %+v", b)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
}

func TestSQLRepository_Ledger(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	d := core.NewDate(2022, 7, 6)

	entries := []core.LedgerEntry{
		core.NewEntry(core.HolderA, 150000, d, "employer", "salary"),
		core.NewEntry(core.HolderA, -4999, d.AddDays(1), "grocer", ""),
		core.NewEntry(core.HolderA, -1, d.AddMonths(1), "bank", "fee"),
		core.NewEntry(core.HolderB, -2000, d, "bank", "loan"),
	}
	err := repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		for _, e := range entries {
			id, err := tx.AppendEntry(ctx, e)
			if err != nil {
				return err
			}
			if id == 0 {
				t.Error("AppendEntry() returned id 0")
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("append entries: %v", err)
	}

	err = repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		got, err := tx.Entries(ctx, core.HolderA, d, d.AddMonths(1))
		if err != nil {
			return err
		}
		if len(got) != 2 {
			t.Fatalf("Entries() returned %d rows, want 2", len(got))
		}
		if got[0].Credit != 150000 || got[0].Operation != "salary" || !got[0].Date.Equal(d) {
			t.Errorf("first entry = %+v", got[0])
		}
		if got[1].Debit != 4999 || got[1].Operation != "" {
			t.Errorf("second entry = %+v", got[1])
		}

		all, err := tx.Entries(ctx, core.HolderA, core.Date{}, core.Date{})
		if err != nil {
			return err
		}
		if len(all) != 3 {
			t.Errorf("Entries(open bounds) returned %d rows, want 3", len(all))
		}

		debit, credit, err := tx.SumEntries(ctx, core.HolderA, d.AddMonths(1))
		if err != nil {
			return err
		}
		if debit != 4999 || credit != 150000 {
			t.Errorf("SumEntries(cutoff) = %s, %s", debit, credit)
		}
		debit, _, err = tx.SumEntries(ctx, core.HolderA, core.Date{})
		if err != nil {
			return err
		}
		if debit != 5000 {
			t.Errorf("SumEntries(all) debit = %s, want 50.00", debit)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read entries: %v", err)
	}
}

func TestSQLRepository_RejectsInvalidEntry(t *testing.T) {
	repo := newTestRepository(t)

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.AppendEntry(ctx, core.LedgerEntry{
			Account: core.Joint, Date: core.NewDate(2022, 7, 6), Counterparty: "x", Debit: 100, Credit: 100,
		})
		return err
	})
	if err == nil {
		t.Error("AppendEntry() with both debit and credit should violate the schema")
	}
}

func TestSQLRepository_BalanceRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	want := core.BalanceSnapshot{
		Account:     core.Joint,
		AsOf:        core.NewDate(2022, 12, 31),
		TotalDebit:  500,
		TotalCredit: 1500,
		Balance:     1000,
	}

	err := repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.SaveBalance(ctx, want)
	})
	if err != nil {
		t.Fatalf("SaveBalance() error = %v", err)
	}

	err = repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		got, err := tx.Balance(ctx, core.Joint)
		if err != nil {
			return err
		}
		if got.Balance != want.Balance || got.TotalDebit != want.TotalDebit || got.TotalCredit != want.TotalCredit || !got.AsOf.Equal(want.AsOf) {
			t.Errorf("Balance() = %+v, want %+v", got, want)
		}
		_, err = tx.Balance(ctx, core.Account("nobody"))
		if !errors.Is(err, core.ErrUnknownAccount) {
			t.Errorf("Balance(unknown) error = %v, want %v", err, core.ErrUnknownAccount)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
}

func TestSQLRepository_RollbackOnError(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.AppendEntry(ctx, core.NewEntry(core.HolderB, 100, core.NewDate(2022, 7, 6), "x", "")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want %v", err, boom)
	}

	err = repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		got, err := tx.Entries(ctx, core.HolderB, core.Date{}, core.Date{})
		if err != nil {
			return err
		}
		if len(got) != 0 {
			t.Errorf("rolled back entry is visible: %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSQLRepository_Timeline(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	obs := []core.Obligation{
		{Amount: 42385, ShareA: 25431, ShareB: 16954, DueDate: core.NewDate(2022, 8, 6), Month: 1, Kind: core.KindLoan},
		{Amount: 100000, ShareA: 60000, ShareB: 40000, DueDate: core.NewDate(2022, 7, 6), Month: 1, Kind: core.KindFee},
		{Amount: 6000, ShareA: 3000, ShareB: 3000, DueDate: core.NewDate(2022, 8, 6), Month: 1, Kind: core.KindInsurance},
	}
	var ids []int64
	err := repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		for _, o := range obs {
			id, err := tx.InsertObligation(ctx, o)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert obligations: %v", err)
	}

	err = repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		n, err := tx.CountObligations(ctx)
		if err != nil {
			return err
		}
		if n != 3 {
			t.Errorf("CountObligations() = %d, want 3", n)
		}

		all, err := tx.Obligations(ctx)
		if err != nil {
			return err
		}
		if all[0].ID != ids[1] || all[1].ID != ids[0] || all[2].ID != ids[2] {
			t.Errorf("Obligations() order = %d, %d, %d", all[0].ID, all[1].ID, all[2].ID)
		}

		due, err := tx.DueObligations(ctx, core.NewDate(2022, 8, 6))
		if err != nil {
			return err
		}
		if len(due) != 1 || due[0].Kind != core.KindFee {
			t.Errorf("DueObligations() = %+v, want the fee only", due)
		}

		ok, err := tx.MarkFulfilled(ctx, ids[1])
		if err != nil || !ok {
			t.Errorf("MarkFulfilled() = %v, %v; want true", ok, err)
		}
		ok, err = tx.MarkFulfilled(ctx, ids[1])
		if err != nil || ok {
			t.Errorf("second MarkFulfilled() = %v, %v; want false", ok, err)
		}

		o, err := tx.LockObligation(ctx, ids[1])
		if err != nil {
			return err
		}
		if !o.Fulfilled || o.Amount != 100000 || !o.DueDate.Equal(core.NewDate(2022, 7, 6)) {
			t.Errorf("LockObligation() = %+v", o)
		}
		_, err = tx.LockObligation(ctx, 9999)
		if !errors.Is(err, core.ErrNotFound) {
			t.Errorf("LockObligation(missing) error = %v, want %v", err, core.ErrNotFound)
		}

		due, err = tx.DueObligations(ctx, core.NewDate(2030, 1, 1))
		if err != nil {
			return err
		}
		if len(due) != 2 {
			t.Errorf("DueObligations() after fulfilment returned %d, want 2", len(due))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
}

func TestSQLRepository_RejectsMismatchedObligation(t *testing.T) {
	repo := newTestRepository(t)

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.InsertObligation(ctx, core.Obligation{
			Amount: 100, ShareA: 60, ShareB: 41, DueDate: core.NewDate(2022, 7, 6), Month: 1, Kind: core.KindFee,
		})
		return err
	})
	if err == nil {
		t.Error("InsertObligation() with mismatched shares should violate the schema")
	}
}

func TestRebind(t *testing.T) {
	pg := &txn{dialect: Postgres}
	if got := pg.rebind("SELECT * FROM t WHERE a = ? AND b < ?"); got != "SELECT * FROM t WHERE a = $1 AND b < $2" {
		t.Errorf("rebind(postgres) = %q", got)
	}
	lite := &txn{dialect: SQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("rebind(sqlite) = %q", got)
	}
	if pg.forUpdate() != " FOR UPDATE" || lite.forUpdate() != "" {
		t.Error("forUpdate() should only lock rows on postgres")
	}
}

func TestDateColumn_Scan(t *testing.T) {
	want := core.NewDate(2022, 7, 6)
	for _, src := range []any{"2022-07-06", []byte("2022-07-06"), "2022-07-06T00:00:00Z", want.Time} {
		var d dateColumn
		if err := d.Scan(src); err != nil {
			t.Fatalf("Scan(%v) error = %v", src, err)
		}
		if !d.Equal(want) {
			t.Errorf("Scan(%v) = %s, want %s", src, d.Date, want)
		}
	}
	var d dateColumn
	if err := d.Scan(42); err == nil {
		t.Error("Scan(int) should fail")
	}
}
