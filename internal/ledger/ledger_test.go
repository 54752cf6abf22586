package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"loanledger/internal/core"
	"loanledger/internal/storage"
)

func TestPost(t *testing.T) {
	l, _, pub := newTestLedger(t)
	ctx := context.Background()
	d := core.NewDate(2022, 7, 6)

	credit, err := l.Post(ctx, core.HolderA, 150000, d, "employer", "salary")
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if credit.Credit != 150000 || credit.Debit != 0 || credit.ID == 0 {
		t.Errorf("credit entry = %+v", credit)
	}

	debit, err := l.Post(ctx, core.HolderA, -4999, d.AddDays(3), "grocer", "")
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if debit.Debit != 4999 || debit.Credit != 0 {
		t.Errorf("debit entry = %+v", debit)
	}

	snap, err := l.CurrentBalance(ctx, core.HolderA)
	if err != nil {
		t.Fatalf("CurrentBalance() error = %v", err)
	}
	want := core.BalanceSnapshot{
		Account:     core.HolderA,
		AsOf:        d.AddDays(3),
		TotalDebit:  4999,
		TotalCredit: 150000,
		Balance:     145001,
	}
	if snap != want {
		t.Errorf("snapshot = %+v, want %+v", snap, want)
	}
	if pub.count() != 2 {
		t.Errorf("published %d events, want 2", pub.count())
	}
}

func TestPost_AsOfNeverMovesBack(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.Post(ctx, core.Joint, 1000, core.NewDate(2023, 3, 1), "x", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Post(ctx, core.Joint, 1000, core.NewDate(2023, 1, 1), "x", ""); err != nil {
		t.Fatal(err)
	}
	snap, err := l.CurrentBalance(ctx, core.Joint)
	if err != nil {
		t.Fatal(err)
	}
	if !snap.AsOf.Equal(core.NewDate(2023, 3, 1)) {
		t.Errorf("AsOf = %s, want 2023-03-01", snap.AsOf)
	}
}

func TestPost_Errors(t *testing.T) {
	l, _, pub := newTestLedger(t)
	ctx := context.Background()
	d := core.NewDate(2022, 7, 6)

	tests := []struct {
		name    string
		account core.Account
		amount  core.Cents
		date    core.Date
		wantErr error
	}{
		{"zero amount", core.HolderA, 0, d, core.ErrZeroAmount},
		{"unknown account", core.Account("holder_c"), 100, d, core.ErrUnknownAccount},
		{"missing date", core.HolderB, 100, core.Date{}, core.ErrInvalidDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Post(ctx, tt.account, tt.amount, tt.date, "x", "")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Post() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if pub.count() != 0 {
		t.Errorf("failed postings published %d events", pub.count())
	}
}

func TestBalanceAsOf_MatchesSnapshot(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	start := core.NewDate(2022, 1, 31)

	amounts := []core.Cents{120000, -3550, -12, 999, -45000, 1, -1}
	for i, a := range amounts {
		for _, account := range core.Accounts {
			if _, err := l.Post(ctx, account, a, start.AddMonths(i), "counterparty", ""); err != nil {
				t.Fatalf("Post() error = %v", err)
			}
		}
	}

	farFuture := core.NewDate(9999, 12, 31)
	for _, account := range core.Accounts {
		got, err := l.BalanceAsOf(ctx, account, farFuture)
		if err != nil {
			t.Fatalf("BalanceAsOf() error = %v", err)
		}
		if want := balance(t, l, account); got != want {
			t.Errorf("BalanceAsOf(%s, far future) = %s, snapshot %s", account, got, want)
		}
	}

	// Entries on the cutoff day are excluded.
	got, err := l.BalanceAsOf(ctx, core.HolderA, start.AddMonths(1))
	if err != nil {
		t.Fatal(err)
	}
	if got != 120000 {
		t.Errorf("BalanceAsOf(cutoff) = %s, want 1200.00", got)
	}
}

func TestTransfer_BetweenIndividuals(t *testing.T) {
	l, _, pub := newTestLedger(t)
	ctx := context.Background()
	d := core.NewDate(2022, 9, 15)

	legs, err := l.Transfer(ctx, core.HolderA, core.HolderB, 50000, d)
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if len(legs) != 2 {
		t.Fatalf("Transfer() posted %d legs, want 2", len(legs))
	}

	delta := func(account core.Account) core.Cents {
		before, err := l.BalanceAsOf(ctx, account, d)
		if err != nil {
			t.Fatal(err)
		}
		after, err := l.BalanceAsOf(ctx, account, d.AddDays(1))
		if err != nil {
			t.Fatal(err)
		}
		return after - before
	}
	if got := delta(core.HolderA); got != -50000 {
		t.Errorf("holder_a delta = %s, want -500.00", got)
	}
	if got := delta(core.HolderB); got != 50000 {
		t.Errorf("holder_b delta = %s, want 500.00", got)
	}
	if legs[0].Counterparty != "holder_b" || legs[0].Operation != OpWire {
		t.Errorf("issuer leg = %+v", legs[0])
	}
	if pub.count() != 1 || len(pub.events[0].Entries) != 2 {
		t.Errorf("expected one event with both legs, got %d events", pub.count())
	}
}

func TestTransfer_Routes(t *testing.T) {
	tests := []struct {
		name      string
		issuer    core.Account
		recipient core.Account
		want      map[core.Account]core.Cents
		wantErr   error
	}{
		{
			name:   "individual to joint",
			issuer: core.HolderB, recipient: core.Joint,
			want: map[core.Account]core.Cents{core.HolderB: -1000, core.Joint: 1000, core.HolderA: 0},
		},
		{
			name:   "joint to individual",
			issuer: core.Joint, recipient: core.HolderA,
			want: map[core.Account]core.Cents{core.Joint: -1000, core.HolderA: -1000, core.HolderB: 0},
		},
		{name: "joint to joint", issuer: core.Joint, recipient: core.Joint, wantErr: core.ErrInvalidTransferRoute},
		{name: "to itself", issuer: core.HolderA, recipient: core.HolderA, wantErr: core.ErrInvalidTransferRoute},
		{name: "unknown issuer", issuer: core.Account("bank"), recipient: core.HolderA, wantErr: core.ErrUnknownAccount},
		{name: "unknown recipient", issuer: core.HolderA, recipient: core.Account(""), wantErr: core.ErrUnknownAccount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _, _ := newTestLedger(t)
			_, err := l.Transfer(context.Background(), tt.issuer, tt.recipient, 1000, core.NewDate(2022, 8, 1))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Transfer() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Transfer() error = %v", err)
			}
			for account, want := range tt.want {
				if got := balance(t, l, account); got != want {
					t.Errorf("balance(%s) = %s, want %s", account, got, want)
				}
			}
		})
	}
}

func TestTransfer_IsAtomic(t *testing.T) {
	l, store, pub := newTestLedger(t)
	faulty := New(&faultyStore{Store: store, failOn: core.HolderB}, pub)

	_, err := faulty.Transfer(context.Background(), core.HolderA, core.HolderB, 50000, core.NewDate(2022, 9, 15))
	if !errors.Is(err, errBoom) {
		t.Fatalf("Transfer() error = %v, want %v", err, errBoom)
	}
	if entries := history(t, l, core.HolderA); len(entries) != 0 {
		t.Errorf("issuer leg survived a failed transfer: %+v", entries)
	}
	if got := balance(t, l, core.HolderA); got != 0 {
		t.Errorf("issuer balance = %s, want 0", got)
	}
	if pub.count() != 0 {
		t.Errorf("failed transfer published %d events", pub.count())
	}
}

func TestJointPurchase(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	posted, err := l.JointPurchase(ctx, 10000, "bank", decimal.NewFromInt(50), core.NewDate(2022, 10, 1), "notary")
	if err != nil {
		t.Fatalf("JointPurchase() error = %v", err)
	}
	if len(posted) != 3 {
		t.Fatalf("JointPurchase() posted %d entries, want 3", len(posted))
	}

	want := map[core.Account]core.Cents{core.HolderA: 5000, core.HolderB: 5000, core.Joint: 10000}
	for _, e := range posted {
		if e.Credit != 0 || e.Debit != want[e.Account] {
			t.Errorf("entry on %s = debit %s credit %s, want debit %s", e.Account, e.Debit, e.Credit, want[e.Account])
		}
		if e.Counterparty != "bank" || e.Operation != "notary" {
			t.Errorf("entry on %s labelled %q/%q", e.Account, e.Counterparty, e.Operation)
		}
	}
}

func TestJointPurchase_SharesAlwaysAddUp(t *testing.T) {
	amounts := []core.Cents{1, 3, 10001, 99999, 123457}
	percentages := []string{"0", "33.33", "50", "60", "66.667", "99.99", "100"}

	for _, amount := range amounts {
		for _, p := range percentages {
			a, b, err := SplitPurchase(amount, decimal.RequireFromString(p))
			if err != nil {
				t.Fatalf("SplitPurchase(%s, %s) error = %v", amount, p, err)
			}
			if a+b != amount {
				t.Errorf("SplitPurchase(%s, %s) = %s + %s", amount, p, a, b)
			}
		}
	}
}

func TestJointPurchase_Errors(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	d := core.NewDate(2022, 10, 1)

	if _, err := l.JointPurchase(ctx, 10000, "shop", decimal.NewFromInt(101), d, ""); !errors.Is(err, core.ErrInvalidPercentage) {
		t.Errorf("percentage 101: error = %v", err)
	}
	if _, err := l.JointPurchase(ctx, 10000, "shop", decimal.NewFromInt(-1), d, ""); !errors.Is(err, core.ErrInvalidPercentage) {
		t.Errorf("percentage -1: error = %v", err)
	}
	if _, err := l.JointPurchase(ctx, 0, "shop", decimal.NewFromInt(50), d, ""); !errors.Is(err, core.ErrZeroAmount) {
		t.Errorf("zero amount: error = %v", err)
	}
}

func TestJointPurchase_FullShareSkipsZeroLeg(t *testing.T) {
	l, _, _ := newTestLedger(t)

	posted, err := l.JointPurchase(context.Background(), 2500, "shop", decimal.NewFromInt(100), core.NewDate(2022, 10, 1), "")
	if err != nil {
		t.Fatalf("JointPurchase() error = %v", err)
	}
	if len(posted) != 2 {
		t.Errorf("posted %d entries, want 2 (holder_b share is zero)", len(posted))
	}
	if got := balance(t, l, core.HolderB); got != 0 {
		t.Errorf("holder_b balance = %s, want 0", got)
	}
}

func TestHistory(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	dates := []core.Date{
		core.NewDate(2022, 8, 1),
		core.NewDate(2022, 7, 1),
		core.NewDate(2022, 7, 15),
		core.NewDate(2022, 7, 1),
	}
	for i, d := range dates {
		if _, err := l.Post(ctx, core.Joint, core.Cents(i+1), d, "x", ""); err != nil {
			t.Fatal(err)
		}
	}

	got, err := l.History(ctx, core.Joint, core.NewDate(2022, 7, 1), core.NewDate(2022, 8, 1))
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	wantCredits := []core.Cents{2, 4, 3}
	if len(got) != len(wantCredits) {
		t.Fatalf("History() returned %d entries, want %d", len(got), len(wantCredits))
	}
	for i, e := range got {
		if e.Credit != wantCredits[i] {
			t.Errorf("entry %d credit = %s, want %s", i, e.Credit, wantCredits[i])
		}
	}
}

func TestVerifyAndRebuild(t *testing.T) {
	l, store, _ := newTestLedger(t)
	ctx := context.Background()
	d := core.NewDate(2022, 7, 6)

	if _, err := l.Post(ctx, core.HolderA, 10000, d, "x", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Post(ctx, core.HolderB, -2500, d, "x", ""); err != nil {
		t.Fatal(err)
	}
	if drifts, err := l.Verify(ctx); err != nil || len(drifts) != 0 {
		t.Fatalf("Verify() = %v, %v; want no drift", drifts, err)
	}

	// Corrupt holder_a's snapshot.
	err := store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.SaveBalance(ctx, core.BalanceSnapshot{Account: core.HolderA, AsOf: d, TotalCredit: 99, Balance: 99})
	})
	if err != nil {
		t.Fatal(err)
	}

	drifts, err := l.Verify(ctx)
	if !errors.Is(err, core.ErrSnapshotDrift) {
		t.Fatalf("Verify() error = %v, want %v", err, core.ErrSnapshotDrift)
	}
	if len(drifts) != 1 || drifts[0].Snapshot.Account != core.HolderA || drifts[0].Computed.Balance != 10000 {
		t.Errorf("drifts = %+v", drifts)
	}

	if _, err := l.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if drifts, err := l.Verify(ctx); err != nil || len(drifts) != 0 {
		t.Errorf("Verify() after rebuild = %v, %v", drifts, err)
	}
	if got := balance(t, l, core.HolderA); got != 10000 {
		t.Errorf("holder_a balance after rebuild = %s, want 100.00", got)
	}
}

func TestPublishFailureDoesNotFailPosting(t *testing.T) {
	l, _, pub := newTestLedger(t)
	pub.err = errBoom

	if _, err := l.Post(context.Background(), core.Joint, 100, core.NewDate(2022, 7, 6), "x", ""); err != nil {
		t.Fatalf("Post() error = %v, want nil despite publish failure", err)
	}
	if got := balance(t, l, core.Joint); got != 100 {
		t.Errorf("balance = %s, want 1.00", got)
	}
}
