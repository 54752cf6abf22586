package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	HolderA Account = "holder_a"
	HolderB Account = "holder_b"
	Joint   Account = "joint"
)

const (
	KindFee       ObligationKind = "fee"
	KindInsurance ObligationKind = "insurance"
	KindLoan      ObligationKind = "loan"
)

type (
	// Account is one of the three fixed ledger identities.
	Account string

	// ObligationKind tells what a scheduled obligation pays for.
	ObligationKind string

	Date struct {
		time.Time
	}

	// LedgerEntry is one immutable row of an account's transaction log.
	// Exactly one of Debit and Credit is non-zero.
	LedgerEntry struct {
		ID           int64
		Account      Account
		Date         Date
		Counterparty string
		Operation    string // empty when the posting has no label
		Debit        Cents
		Credit       Cents
	}

	// BalanceSnapshot is the cached running balance of an account.
	BalanceSnapshot struct {
		Account     Account
		AsOf        Date
		TotalDebit  Cents
		TotalCredit Cents
		Balance     Cents
	}

	// Obligation is one scheduled payment of the loan timeline, split
	// between the two holders.
	Obligation struct {
		ID        int64
		Amount    Cents
		ShareA    Cents
		ShareB    Cents
		DueDate   Date
		Month     int
		Kind      ObligationKind
		Fulfilled bool
	}
)

// Accounts lists the fixed identities in storage order.
var Accounts = []Account{Joint, HolderA, HolderB}

// ParseAccount returns the account named s.
func ParseAccount(s string) (Account, error) {
	a := Account(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAccount, s)
	}
	return a, nil
}

// Valid reports whether a is one of the fixed identities.
func (a Account) Valid() bool {
	switch a {
	case HolderA, HolderB, Joint:
		return true
	default:
		return false
	}
}

// IsJoint reports whether a is the joint account.
func (a Account) IsJoint() bool { return a == Joint }

func (a Account) String() string { return string(a) }

// ParseKind returns the obligation kind named s.
func ParseKind(s string) (ObligationKind, error) {
	k := ObligationKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

func (k ObligationKind) Valid() bool {
	switch k {
	case KindFee, KindInsurance, KindLoan:
		return true
	default:
		return false
	}
}

func (k ObligationKind) String() string { return string(k) }

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// Today returns the current calendar day in local time.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate accepts 2006-01-02 and 2006/01/02. An empty string means today.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Today(), nil
	}
	layout := "2006-01-02"
	if strings.Contains(s, "/") {
		layout = "2006/01/02"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// String formats the date as 2006-01-02.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	return d.UnmarshalText([]byte(s))
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }

// After reports whether d is strictly after o.
func (d Date) After(o Date) bool { return d.Time.After(o.Time) }

// Equal reports whether d and o are the same day.
func (d Date) Equal(o Date) bool { return d.Time.Equal(o.Time) }

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.AddDate(0, 0, n)}
}

// AddMonths returns d shifted by n months, keeping the day of month.
// Days that do not exist in the target month are clamped to its last day.
func (d Date) AddMonths(n int) Date {
	first := time.Date(d.Year(), d.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	lastDay := first.AddDate(0, 1, -1).Day()
	day := d.Day()
	if day > lastDay {
		day = lastDay
	}
	return NewDate(first.Year(), int(first.Month()), day)
}

// FirstOfMonth returns the first day of d's month.
func (d Date) FirstOfMonth() Date {
	return NewDate(d.Year(), int(d.Month()), 1)
}

// MaxDate returns the later of a and b.
func MaxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

// NewEntry classifies a signed amount into a ledger row: positive amounts
// are credits, the rest are debits of their magnitude.
func NewEntry(account Account, amount Cents, date Date, counterparty, operation string) LedgerEntry {
	e := LedgerEntry{
		Account:      account,
		Date:         date,
		Counterparty: counterparty,
		Operation:    operation,
	}
	if amount > 0 {
		e.Credit = amount
	} else {
		e.Debit = -amount
	}
	return e
}

// Signed returns the entry as a signed amount, credit positive.
func (e LedgerEntry) Signed() Cents {
	return e.Credit - e.Debit
}

func (e LedgerEntry) Validate() error {
	if !e.Account.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAccount, e.Account)
	}
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if e.Debit < 0 || e.Credit < 0 {
		return ErrInvalidAmount
	}
	if (e.Debit == 0) == (e.Credit == 0) {
		return ErrZeroAmount
	}
	return nil
}

// Apply adds the entry to the snapshot. AsOf only ever moves forward.
func (s BalanceSnapshot) Apply(e LedgerEntry) BalanceSnapshot {
	s.TotalDebit += e.Debit
	s.TotalCredit += e.Credit
	s.Balance = s.TotalCredit - s.TotalDebit
	s.AsOf = MaxDate(s.AsOf, e.Date)
	return s
}

// Consistent reports whether Balance matches the totals.
func (s BalanceSnapshot) Consistent() bool {
	return s.Balance == s.TotalCredit-s.TotalDebit
}

// Validate checks the obligation before it is written to the timeline.
func (o Obligation) Validate() error {
	if !o.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, o.Kind)
	}
	if o.DueDate.IsZero() {
		return ErrInvalidDate
	}
	if o.Amount < 0 || o.ShareA < 0 || o.ShareB < 0 {
		return ErrInvalidAmount
	}
	return o.CheckShares()
}

// CheckShares verifies that the two shares add up to the amount.
func (o Obligation) CheckShares() error {
	if o.ShareA+o.ShareB != o.Amount {
		return fmt.Errorf("%w: %s + %s != %s", ErrAmountMismatch, o.ShareA, o.ShareB, o.Amount)
	}
	return nil
}
