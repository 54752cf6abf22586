package http

import (
	"loanledger/internal/core"
	"loanledger/internal/ledger"
	"loanledger/internal/loan"
	"loanledger/internal/statement"
)

// Amounts leave the API as fixed two-decimal strings so clients never see
// binary floats; the _cents fields carry the exact integer.

type entryView struct {
	ID           int64     `json:"id"`
	Account      string    `json:"account"`
	Date         core.Date `json:"date"`
	Counterparty string    `json:"counterparty"`
	Operation    string    `json:"operation,omitempty"`
	Debit        string    `json:"debit"`
	Credit       string    `json:"credit"`
	SignedCents  int64     `json:"signed_cents"`
}

func newEntryView(e core.LedgerEntry) entryView {
	return entryView{
		ID:           e.ID,
		Account:      e.Account.String(),
		Date:         e.Date,
		Counterparty: e.Counterparty,
		Operation:    e.Operation,
		Debit:        e.Debit.String(),
		Credit:       e.Credit.String(),
		SignedCents:  int64(e.Signed()),
	}
}

func newEntryViews(entries []core.LedgerEntry) []entryView {
	out := make([]entryView, len(entries))
	for i, e := range entries {
		out[i] = newEntryView(e)
	}
	return out
}

type balanceView struct {
	Account      string `json:"account"`
	AsOf         string `json:"as_of,omitempty"`
	TotalDebit   string `json:"total_debit"`
	TotalCredit  string `json:"total_credit"`
	Balance      string `json:"balance"`
	BalanceCents int64  `json:"balance_cents"`
	Display      string `json:"display"`
}

func newBalanceView(s core.BalanceSnapshot, currency string) balanceView {
	v := balanceView{
		Account:      s.Account.String(),
		TotalDebit:   s.TotalDebit.String(),
		TotalCredit:  s.TotalCredit.String(),
		Balance:      s.Balance.String(),
		BalanceCents: int64(s.Balance),
		Display:      s.Balance.Format(currency),
	}
	if !s.AsOf.IsZero() {
		v.AsOf = s.AsOf.String()
	}
	return v
}

// pointBalanceView is a balance recomputed from the entries before a date.
type pointBalanceView struct {
	Account      string    `json:"account"`
	Before       core.Date `json:"before"`
	Balance      string    `json:"balance"`
	BalanceCents int64     `json:"balance_cents"`
	Display      string    `json:"display"`
}

type obligationView struct {
	ID        int64     `json:"id,omitempty"`
	Month     int       `json:"month"`
	Kind      string    `json:"kind"`
	DueDate   core.Date `json:"due_date"`
	Amount    string    `json:"amount"`
	ShareA    string    `json:"share_a"`
	ShareB    string    `json:"share_b"`
	Fulfilled bool      `json:"fulfilled"`
}

func newObligationViews(obligations []core.Obligation) []obligationView {
	out := make([]obligationView, len(obligations))
	for i, o := range obligations {
		out[i] = obligationView{
			ID:        o.ID,
			Month:     o.Month,
			Kind:      o.Kind.String(),
			DueDate:   o.DueDate,
			Amount:    o.Amount.String(),
			ShareA:    o.ShareA.String(),
			ShareB:    o.ShareB.String(),
			Fulfilled: o.Fulfilled,
		}
	}
	return out
}

type summaryView struct {
	Loan             string `json:"loan"`
	Principal        string `json:"principal"`
	MonthlyRepayment string `json:"monthly_repayment"`
	MonthlyCost      string `json:"monthly_cost"`
	UpfrontCost      string `json:"upfront_cost"`
	ProcessingCost   string `json:"processing_cost"`
	TotalCost        string `json:"total_cost"`
}

func newSummaryViews(terms loan.Terms) []summaryView {
	joint, a, b := terms.Loans()
	named := []struct {
		name string
		sum  loan.Summary
	}{
		{core.Joint.String(), joint.Summary()},
		{core.HolderA.String(), a.Summary()},
		{core.HolderB.String(), b.Summary()},
	}
	out := make([]summaryView, len(named))
	for i, n := range named {
		out[i] = summaryView{
			Loan:             n.name,
			Principal:        n.sum.Principal.String(),
			MonthlyRepayment: n.sum.MonthlyRepayment.String(),
			MonthlyCost:      n.sum.MonthlyCost.String(),
			UpfrontCost:      n.sum.UpfrontCost.String(),
			ProcessingCost:   n.sum.ProcessingCost.String(),
			TotalCost:        n.sum.TotalCost.String(),
		}
	}
	return out
}

type reportView struct {
	AsOf       core.Date `json:"as_of"`
	Due        int       `json:"due"`
	Fulfilled  []int64   `json:"fulfilled"`
	Skipped    []int64   `json:"skipped"`
	Mismatched []int64   `json:"mismatched"`
	Entries    int       `json:"entries"`
	DurationMs int64     `json:"duration_ms"`
}

func newReportView(r ledger.Report) reportView {
	nonNil := func(ids []int64) []int64 {
		if ids == nil {
			return []int64{}
		}
		return ids
	}
	return reportView{
		AsOf:       r.AsOf,
		Due:        r.Due,
		Fulfilled:  nonNil(r.Fulfilled),
		Skipped:    nonNil(r.Skipped),
		Mismatched: nonNil(r.Mismatched),
		Entries:    r.Entries,
		DurationMs: r.Duration.Milliseconds(),
	}
}

type driftView struct {
	Account  string `json:"account"`
	Snapshot string `json:"snapshot"`
	Ledger   string `json:"ledger"`
}

type statementRowView struct {
	Date   core.Date `json:"date"`
	Label  string    `json:"label"`
	Debit  string    `json:"debit"`
	Credit string    `json:"credit"`
}

type statementView struct {
	Account     string             `json:"account"`
	Start       core.Date          `json:"start"`
	Stop        core.Date          `json:"stop"`
	Opening     string             `json:"opening"`
	Rows        []statementRowView `json:"rows"`
	Closing     string             `json:"closing"`
	TotalDebit  string             `json:"total_debit"`
	TotalCredit string             `json:"total_credit"`
	ExportedTo  string             `json:"exported_to,omitempty"`
}

func newStatementView(st *statement.Statement) statementView {
	rows := make([]statementRowView, len(st.Rows))
	for i, r := range st.Rows {
		rows[i] = statementRowView{Date: r.Date, Label: r.Label, Debit: r.Debit.String(), Credit: r.Credit.String()}
	}
	return statementView{
		Account:     st.Account.String(),
		Start:       st.Start,
		Stop:        st.Stop,
		Opening:     st.Opening.String(),
		Rows:        rows,
		Closing:     st.Closing.String(),
		TotalDebit:  st.TotalDebit().String(),
		TotalCredit: st.TotalCredit().String(),
	}
}
