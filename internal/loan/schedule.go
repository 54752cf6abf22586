package loan

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"loanledger/internal/core"
)

// Borrowing is the part of the loan specific to one borrower.
type Borrowing struct {
	Principal      decimal.Decimal
	ProcessingCost decimal.Decimal
	MonthlyCost    decimal.Decimal
}

// Terms describe the joint loan and its split between the two holders.
// Terms are plain values: callers build them from configuration and pass
// them to Schedule, nothing is read from globals.
type Terms struct {
	AnnualRate   decimal.Decimal
	UpfrontRate  decimal.Decimal
	Periods      int
	FirstDueDate core.Date // date of the one-time fees; mensualities start a month later

	Joint   Borrowing
	HolderA Borrowing
	HolderB Borrowing
}

// DefaultTerms returns the terms of the loan the ledger was set up for:
// 100 000 borrowed at 2% over 25 years, 60/40 between the holders.
func DefaultTerms() Terms {
	return Terms{
		AnnualRate:   decimal.RequireFromString("0.02"),
		UpfrontRate:  decimal.RequireFromString("0.011"),
		Periods:      25 * 12,
		FirstDueDate: core.NewDate(2022, 7, 6),
		Joint: Borrowing{
			Principal:      decimal.NewFromInt(100000),
			ProcessingCost: decimal.NewFromInt(1000),
			MonthlyCost:    decimal.NewFromInt(60),
		},
		HolderA: Borrowing{
			Principal:      decimal.NewFromInt(60000),
			ProcessingCost: decimal.NewFromInt(600),
			MonthlyCost:    decimal.NewFromInt(30),
		},
		HolderB: Borrowing{
			Principal:      decimal.NewFromInt(40000),
			ProcessingCost: decimal.NewFromInt(400),
			MonthlyCost:    decimal.NewFromInt(30),
		},
	}
}

// Validate checks that the terms describe a coherent split loan.
func (t Terms) Validate() error {
	var errs []error
	if t.Periods < 1 {
		errs = append(errs, fmt.Errorf("invalid number of periods %d: must be at least 1", t.Periods))
	}
	if t.AnnualRate.IsNegative() {
		errs = append(errs, fmt.Errorf("invalid annual rate %s: must not be negative", t.AnnualRate))
	}
	if t.UpfrontRate.IsNegative() {
		errs = append(errs, fmt.Errorf("invalid upfront rate %s: must not be negative", t.UpfrontRate))
	}
	if t.FirstDueDate.IsZero() {
		errs = append(errs, fmt.Errorf("first due date is required"))
	}
	if !t.Joint.Principal.IsPositive() {
		errs = append(errs, fmt.Errorf("invalid joint principal %s: must be positive", t.Joint.Principal))
	}
	if sum := t.HolderA.Principal.Add(t.HolderB.Principal); !sum.Equal(t.Joint.Principal) {
		errs = append(errs, fmt.Errorf("holder principals %s + %s do not sum to joint principal %s",
			t.HolderA.Principal, t.HolderB.Principal, t.Joint.Principal))
	}
	return errors.Join(errs...)
}

func (t Terms) loan(b Borrowing) Loan {
	return Loan{
		Principal:      b.Principal,
		AnnualRate:     t.AnnualRate,
		Periods:        t.Periods,
		ProcessingCost: b.ProcessingCost,
		MonthlyCost:    b.MonthlyCost,
		UpfrontRate:    t.UpfrontRate,
	}
}

// Loans returns the joint loan and the two holder sub-loans.
func (t Terms) Loans() (joint, holderA, holderB Loan) {
	return t.loan(t.Joint), t.loan(t.HolderA), t.loan(t.HolderB)
}

// Schedule computes every obligation of the loan: the processing and
// upfront fees on the first due date, then for each month the loan
// repayment and the insurance.
//
// The holders' shares are computed from their own sub-loans. Generation
// fails with core.ErrAmountMismatch as soon as the two rounded shares do
// not add up to the rounded joint amount; the difference is never absorbed
// into one side.
func Schedule(t Terms) ([]core.Obligation, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid loan terms: %w", err)
	}
	joint, a, b := t.Loans()

	out := make([]core.Obligation, 0, 2+2*t.Periods)
	add := func(kind core.ObligationKind, month int, due core.Date, amount, shareA, shareB decimal.Decimal) error {
		o := core.Obligation{
			Amount:  core.ToMinor(amount),
			ShareA:  core.ToMinor(shareA),
			ShareB:  core.ToMinor(shareB),
			DueDate: due,
			Month:   month,
			Kind:    kind,
		}
		if err := o.Validate(); err != nil {
			return fmt.Errorf("%s obligation for month %d: %w", kind, month, err)
		}
		out = append(out, o)
		return nil
	}

	if err := add(core.KindFee, 1, t.FirstDueDate, joint.ProcessingCost, a.ProcessingCost, b.ProcessingCost); err != nil {
		return nil, err
	}
	if err := add(core.KindFee, 1, t.FirstDueDate, joint.UpfrontCost(), a.UpfrontCost(), b.UpfrontCost()); err != nil {
		return nil, err
	}

	repay, repayA, repayB := joint.MonthlyRepayment(), a.MonthlyRepayment(), b.MonthlyRepayment()
	for i := 0; i < t.Periods; i++ {
		due := t.FirstDueDate.AddMonths(i + 1)
		if err := add(core.KindLoan, i+1, due, repay, repayA, repayB); err != nil {
			return nil, err
		}
		if err := add(core.KindInsurance, i+1, due, joint.MonthlyCost, a.MonthlyCost, b.MonthlyCost); err != nil {
			return nil, err
		}
	}
	return out, nil
}
