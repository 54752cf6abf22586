package core

import (
	"errors"
	"testing"
)

func TestParseAccount(t *testing.T) {
	for _, in := range []string{"joint", "holder_a", " HOLDER_B "} {
		if _, err := ParseAccount(in); err != nil {
			t.Fatalf("%q: unexpected error %v", in, err)
		}
	}
	for _, in := range []string{"", "user_1", "bank"} {
		if _, err := ParseAccount(in); !errors.Is(err, ErrUnknownAccount) {
			t.Fatalf("%q: expected ErrUnknownAccount, got %v", in, err)
		}
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want Date
		ok   bool
	}{
		{"2022-07-06", NewDate(2022, 7, 6), true},
		{"2022/07/05", NewDate(2022, 7, 5), true},
		{"06/07/2022", Date{}, false},
		{"2022-13-01", Date{}, false},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(tc.want) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.want, got, err)
			}
		} else if !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("%q expected ErrInvalidDate, got %v", tc.in, err)
		}
	}

	if d, err := ParseDate(""); err != nil || !d.Equal(Today()) {
		t.Fatalf("empty date should be today, got %s (err=%v)", d, err)
	}
}

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2022, 7, 6)
	if got := d.AddMonths(6).String(); got != "2023-01-06" {
		t.Fatalf("AddMonths = %s", got)
	}
	if got := NewDate(2023, 1, 31).AddMonths(1).String(); got != "2023-02-28" {
		t.Fatalf("AddMonths should clamp, got %s", got)
	}
	if got := d.AddDays(1).String(); got != "2022-07-07" {
		t.Fatalf("AddDays = %s", got)
	}
	if got := d.FirstOfMonth().String(); got != "2022-07-01" {
		t.Fatalf("FirstOfMonth = %s", got)
	}
	if got := MaxDate(d, d.AddDays(-3)); !got.Equal(d) {
		t.Fatalf("MaxDate = %s", got)
	}
}

func TestNewEntryClassifiesSign(t *testing.T) {
	credit := NewEntry(HolderA, 500, NewDate(2022, 7, 5), "joint", "wire")
	if credit.Credit != 500 || credit.Debit != 0 {
		t.Fatalf("positive amount should be a credit: %+v", credit)
	}
	debit := NewEntry(HolderA, -500, NewDate(2022, 7, 5), "joint", "wire")
	if debit.Debit != 500 || debit.Credit != 0 {
		t.Fatalf("negative amount should be a debit: %+v", debit)
	}
	if debit.Signed() != -500 {
		t.Fatalf("Signed() = %d", debit.Signed())
	}
	if err := NewEntry(HolderA, 0, NewDate(2022, 7, 5), "x", "").Validate(); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("zero entry should not validate, got %v", err)
	}
	if err := NewEntry("bank", 1, NewDate(2022, 7, 5), "x", "").Validate(); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("unknown account should not validate, got %v", err)
	}
}

func TestSnapshotApply(t *testing.T) {
	s := BalanceSnapshot{Account: Joint, AsOf: NewDate(2022, 8, 1)}
	s = s.Apply(NewEntry(Joint, 1000, NewDate(2022, 7, 5), "holder_a", "wire"))
	s = s.Apply(NewEntry(Joint, -250, NewDate(2022, 8, 15), "bank", "fee"))
	if s.TotalCredit != 1000 || s.TotalDebit != 250 || s.Balance != 750 {
		t.Fatalf("unexpected totals: %+v", s)
	}
	if !s.AsOf.Equal(NewDate(2022, 8, 15)) {
		t.Fatalf("AsOf should move forward only, got %s", s.AsOf)
	}
	if !s.Consistent() {
		t.Fatalf("snapshot should be consistent")
	}
}

func TestObligationValidate(t *testing.T) {
	good := Obligation{Amount: 200, ShareA: 120, ShareB: 80, DueDate: NewDate(2022, 7, 6), Month: 1, Kind: KindFee}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bad := good
	bad.ShareB = 79
	if err := bad.Validate(); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
	bad = good
	bad.Kind = "rent"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}
