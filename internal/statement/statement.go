// Package statement builds account statements: an opening balance, the
// rows of a date window and the closing balance.
package statement

import (
	"context"
	"fmt"
	"strings"

	"loanledger/internal/core"
)

// Source is the read side of the ledger a statement is built from.
type Source interface {
	BalanceAsOf(ctx context.Context, account core.Account, cutoff core.Date) (core.Cents, error)
	History(ctx context.Context, account core.Account, start, stop core.Date) ([]core.LedgerEntry, error)
}

type Row struct {
	Date   core.Date
	Label  string
	Debit  core.Cents
	Credit core.Cents
}

// Statement covers the entries of Account dated in [Start, Stop).
type Statement struct {
	Account core.Account
	Start   core.Date
	Stop    core.Date
	Opening core.Cents
	Rows    []Row
	Closing core.Cents
}

// DefaultWindow returns the start of the statement ending at stop: the
// first of stop's month, or the first of the previous month when stop is
// itself the first of a month.
func DefaultWindow(stop core.Date) core.Date {
	if stop.Day() == 1 {
		return stop.AddMonths(-1)
	}
	return stop.FirstOfMonth()
}

// Build reads the window from src. A zero start uses DefaultWindow.
func Build(ctx context.Context, src Source, account core.Account, start, stop core.Date) (*Statement, error) {
	if stop.IsZero() {
		return nil, fmt.Errorf("build statement: %w: empty stop date", core.ErrInvalidDate)
	}
	if start.IsZero() {
		start = DefaultWindow(stop)
	}
	if !start.Before(stop) {
		return nil, fmt.Errorf("build statement: %w: start %s is not before stop %s", core.ErrInvalidDate, start, stop)
	}

	opening, err := src.BalanceAsOf(ctx, account, start)
	if err != nil {
		return nil, fmt.Errorf("build statement: %w", err)
	}
	entries, err := src.History(ctx, account, start, stop)
	if err != nil {
		return nil, fmt.Errorf("build statement: %w", err)
	}

	st := &Statement{
		Account: account,
		Start:   start,
		Stop:    stop,
		Opening: opening,
		Rows:    make([]Row, 0, len(entries)),
		Closing: opening,
	}
	for _, e := range entries {
		st.Rows = append(st.Rows, Row{
			Date:   e.Date,
			Label:  label(e),
			Debit:  e.Debit,
			Credit: e.Credit,
		})
		st.Closing += e.Signed()
	}
	return st, nil
}

func label(e core.LedgerEntry) string {
	if e.Operation == "" {
		return e.Counterparty
	}
	return e.Counterparty + " : " + e.Operation
}

// TotalDebit sums the debit column.
func (s *Statement) TotalDebit() core.Cents {
	var total core.Cents
	for _, r := range s.Rows {
		total += r.Debit
	}
	return total
}

// TotalCredit sums the credit column.
func (s *Statement) TotalCredit() core.Cents {
	var total core.Cents
	for _, r := range s.Rows {
		total += r.Credit
	}
	return total
}

// Markdown renders the statement as a markdown table. Balances sit in the
// debit column when negative and in the credit column otherwise.
func (s *Statement) Markdown(currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Statement %s\n\n", s.Account)
	fmt.Fprintf(&b, "From %s to %s\n\n", s.Start, s.Stop)
	b.WriteString("| Date | Operation | Debit | Credit |\n")
	b.WriteString("|:-----|:----------|------:|-------:|\n")

	balanceRow := func(date core.Date, amount core.Cents) {
		if amount < 0 {
			fmt.Fprintf(&b, "| %s | **balance** | %s | |\n", date, (-amount).Format(currency))
		} else {
			fmt.Fprintf(&b, "| %s | **balance** | | %s |\n", date, amount.Format(currency))
		}
	}

	balanceRow(s.Start, s.Opening)
	for _, r := range s.Rows {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", r.Date, escape(r.Label), cell(r.Debit, currency), cell(r.Credit, currency))
	}
	balanceRow(s.Stop, s.Closing)
	return b.String()
}

func cell(c core.Cents, currency string) string {
	if c == 0 {
		return ""
	}
	return c.Format(currency)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
