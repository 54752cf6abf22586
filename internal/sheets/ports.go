package sheets

import (
	"context"

	"loanledger/internal/core"
	"loanledger/internal/statement"
)

// Ports for outbound adapters.
type (
	// StatementWriter exports a statement and returns a reference to where
	// it was written.
	StatementWriter interface {
		WriteStatement(ctx context.Context, st *statement.Statement) (ref string, err error)
	}
)

// SheetName is the tab a statement is exported to, e.g. "holder_a 2022-07-01".
func SheetName(st *statement.Statement) string {
	return st.Account.String() + " " + st.Start.String()
}

// Values lays the statement out as spreadsheet rows: a header, the opening
// balance, one row per entry and the closing balance. Amounts are plain
// decimal strings so the sheet can do arithmetic on them.
func Values(st *statement.Statement) [][]any {
	rows := make([][]any, 0, len(st.Rows)+3)
	rows = append(rows, []any{"Date", "Operation", "Debit", "Credit"})

	balance := func(date string, amount int64) []any {
		if amount < 0 {
			return []any{date, "balance", centsString(-amount), ""}
		}
		return []any{date, "balance", "", centsString(amount)}
	}

	rows = append(rows, balance(st.Start.String(), int64(st.Opening)))
	for _, r := range st.Rows {
		rows = append(rows, []any{r.Date.String(), r.Label, optional(int64(r.Debit)), optional(int64(r.Credit))})
	}
	rows = append(rows, balance(st.Stop.String(), int64(st.Closing)))
	return rows
}

func centsString(c int64) string {
	return core.Cents(c).String()
}

func optional(c int64) string {
	if c == 0 {
		return ""
	}
	return centsString(c)
}
