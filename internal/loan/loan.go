// Package loan computes the fixed-payment amortization of the shared loan
// and turns it into the timeline of obligations owed by the two holders.
package loan

import (
	"math"

	"github.com/shopspring/decimal"

	"loanledger/internal/core"
)

var twelve = decimal.NewFromInt(12)

// Loan is one borrowing with its ancillary costs.
type Loan struct {
	Principal      decimal.Decimal
	AnnualRate     decimal.Decimal // 0.02 for 2%
	Periods        int             // monthly periods
	ProcessingCost decimal.Decimal // one-time application cost
	MonthlyCost    decimal.Decimal // monthly insurance
	UpfrontRate    decimal.Decimal // share of the principal paid upfront
}

// PeriodicRate returns the annuity factor r(1+r)^n / ((1+r)^n - 1): the
// payment per unit of principal for rate r over n periods.
//
// The power is computed in float64 and converted back to decimal; callers
// round the resulting amounts to the cent with core.ToMinor.
func PeriodicRate(rate float64, periods int) decimal.Decimal {
	if periods <= 0 {
		return decimal.Zero
	}
	if rate == 0 {
		// Zero interest: even split.
		return decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(periods)))
	}
	factor := math.Pow(1+rate, float64(periods))
	return decimal.NewFromFloat(rate * factor / (factor - 1))
}

// MonthlyRate is the annual rate divided by twelve.
func (l Loan) MonthlyRate() float64 {
	return l.AnnualRate.Div(twelve).InexactFloat64()
}

// MonthlyRepayment is the fixed principal plus interest payment.
func (l Loan) MonthlyRepayment() decimal.Decimal {
	return PeriodicRate(l.MonthlyRate(), l.Periods).Mul(l.Principal)
}

// UpfrontCost is the share of the principal charged when the loan starts.
func (l Loan) UpfrontCost() decimal.Decimal {
	return l.UpfrontRate.Mul(l.Principal)
}

// TotalInsurance is the monthly cost paid over the life of the loan.
func (l Loan) TotalInsurance() decimal.Decimal {
	return l.MonthlyCost.Mul(decimal.NewFromInt(int64(l.Periods)))
}

// TotalCost is everything paid over the life of the loan:
// (repayment + monthly cost) * n + upfront cost + processing cost.
func (l Loan) TotalCost() decimal.Decimal {
	n := decimal.NewFromInt(int64(l.Periods))
	return l.MonthlyRepayment().Add(l.MonthlyCost).Mul(n).
		Add(l.UpfrontCost()).
		Add(l.ProcessingCost)
}

// Summary is the rounded cost breakdown of a loan.
type Summary struct {
	Principal        core.Cents
	MonthlyRepayment core.Cents
	MonthlyCost      core.Cents
	UpfrontCost      core.Cents
	ProcessingCost   core.Cents
	TotalCost        core.Cents
}

func (l Loan) Summary() Summary {
	return Summary{
		Principal:        core.ToMinor(l.Principal),
		MonthlyRepayment: core.ToMinor(l.MonthlyRepayment()),
		MonthlyCost:      core.ToMinor(l.MonthlyCost),
		UpfrontCost:      core.ToMinor(l.UpfrontCost()),
		ProcessingCost:   core.ToMinor(l.ProcessingCost),
		TotalCost:        core.ToMinor(l.TotalCost()),
	}
}
