package loan

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"loanledger/internal/core"
	"loanledger/internal/storage/memory"
)

func TestPeriodicRate(t *testing.T) {
	tests := []struct {
		name    string
		rate    float64
		periods int
		want    float64
	}{
		{"two percent over 25 years", 0.02 / 12, 300, 0.0042385},
		{"zero rate", 0, 4, 0.25},
		{"single period", 0.01, 1, 1.01},
		{"no periods", 0.01, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PeriodicRate(tt.rate, tt.periods).InexactFloat64()
			if math.Abs(got-tt.want) > 1e-7 {
				t.Errorf("PeriodicRate(%v, %d) = %v, want %v", tt.rate, tt.periods, got, tt.want)
			}
		})
	}
}

func TestLoan_Summary(t *testing.T) {
	joint, a, b := DefaultTerms().Loans()

	tests := []struct {
		name      string
		loan      Loan
		repayment core.Cents
		upfront   core.Cents
		total     core.Cents
	}{
		{"joint", joint, 42385, 110000, 14725630},
		{"holder a", a, 25431, 66000, 8655378},
		{"holder b", b, 16954, 44000, 6070252},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.loan.Summary()
			if s.MonthlyRepayment != tt.repayment {
				t.Errorf("MonthlyRepayment = %s, want %s", s.MonthlyRepayment, tt.repayment)
			}
			if s.UpfrontCost != tt.upfront {
				t.Errorf("UpfrontCost = %s, want %s", s.UpfrontCost, tt.upfront)
			}
			if (s.TotalCost - tt.total).Abs() > 1 {
				t.Errorf("TotalCost = %s, want %s", s.TotalCost, tt.total)
			}
		})
	}
}

func TestLoan_MonthlyRepaymentMatchesFormula(t *testing.T) {
	l := Loan{Principal: decimal.NewFromInt(100000), AnnualRate: decimal.RequireFromString("0.02"), Periods: 300}

	r := 0.02 / 12
	f := math.Pow(1+r, 300)
	want := core.ToMinor(decimal.NewFromFloat(100000 * r * f / (f - 1)))

	if got := core.ToMinor(l.MonthlyRepayment()); got != want {
		t.Errorf("MonthlyRepayment = %s, want %s", got, want)
	}
}

func TestSchedule(t *testing.T) {
	terms := DefaultTerms()
	obs, err := Schedule(terms)
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if len(obs) != 2+2*terms.Periods {
		t.Fatalf("Schedule() returned %d obligations, want %d", len(obs), 2+2*terms.Periods)
	}

	fees := obs[:2]
	if fees[0].Kind != core.KindFee || fees[0].Amount != 100000 || fees[0].ShareA != 60000 || fees[0].ShareB != 40000 {
		t.Errorf("processing fee = %+v", fees[0])
	}
	if fees[1].Kind != core.KindFee || fees[1].Amount != 110000 || fees[1].ShareA != 66000 || fees[1].ShareB != 44000 {
		t.Errorf("upfront fee = %+v", fees[1])
	}
	for _, f := range fees {
		if f.Month != 1 || !f.DueDate.Equal(core.NewDate(2022, 7, 6)) {
			t.Errorf("fee month %d due %s, want month 1 due 2022-07-06", f.Month, f.DueDate)
		}
	}

	first := obs[2]
	if first.Kind != core.KindLoan || first.Month != 1 || !first.DueDate.Equal(core.NewDate(2022, 8, 6)) {
		t.Errorf("first mensuality = %+v", first)
	}
	if first.Amount != 42385 || first.ShareA != 25431 || first.ShareB != 16954 {
		t.Errorf("first mensuality amounts = %s / %s / %s", first.Amount, first.ShareA, first.ShareB)
	}
	if ins := obs[3]; ins.Kind != core.KindInsurance || ins.Amount != 6000 || ins.ShareA != 3000 || ins.ShareB != 3000 {
		t.Errorf("first insurance = %+v", ins)
	}

	last := obs[len(obs)-1]
	if last.Month != 300 || !last.DueDate.Equal(core.NewDate(2047, 7, 6)) {
		t.Errorf("last obligation month %d due %s", last.Month, last.DueDate)
	}

	var joint, shares core.Cents
	for _, o := range obs {
		joint += o.Amount
		shares += o.ShareA + o.ShareB
	}
	if joint != shares {
		t.Errorf("sum of shares %s != sum of joint amounts %s", shares, joint)
	}
}

func TestSchedule_MismatchFailsFast(t *testing.T) {
	terms := DefaultTerms()
	terms.HolderA.MonthlyCost = decimal.RequireFromString("30.004")
	terms.HolderB.MonthlyCost = decimal.RequireFromString("30.004")
	terms.Joint.MonthlyCost = decimal.RequireFromString("60.008")

	_, err := Schedule(terms)
	if !errors.Is(err, core.ErrAmountMismatch) {
		t.Errorf("Schedule() error = %v, want %v", err, core.ErrAmountMismatch)
	}
}

func TestTerms_Validate(t *testing.T) {
	terms := DefaultTerms()
	terms.Periods = 0
	terms.HolderB.Principal = decimal.NewFromInt(1)

	err := terms.Validate()
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	if _, err := Schedule(terms); err == nil {
		t.Error("Schedule() should refuse invalid terms")
	}
}

// exactTerms is an interest-free 120 000 loan split 72 000 / 48 000: every
// joint amount is the exact sum of the holder amounts after rounding.
func exactTerms(periods int) Terms {
	terms := DefaultTerms()
	terms.AnnualRate = decimal.Zero
	terms.Periods = periods
	terms.Joint.Principal = decimal.NewFromInt(120000)
	terms.HolderA.Principal = decimal.NewFromInt(72000)
	terms.HolderB.Principal = decimal.NewFromInt(48000)
	return terms
}

func TestSchedule_EndOfMonthClamps(t *testing.T) {
	terms := exactTerms(3)
	terms.FirstDueDate = core.NewDate(2023, 1, 31)

	obs, err := Schedule(terms)
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	want := []core.Date{core.NewDate(2023, 2, 28), core.NewDate(2023, 3, 31), core.NewDate(2023, 4, 30)}
	for i, w := range want {
		if got := obs[2+2*i].DueDate; !got.Equal(w) {
			t.Errorf("month %d due %s, want %s", i+1, got, w)
		}
	}
}

func TestTimeline_Generate(t *testing.T) {
	ctx := context.Background()
	tl := NewTimeline(memory.New())

	terms := exactTerms(12)
	generated, err := tl.Generate(ctx, terms)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(generated) != 26 {
		t.Fatalf("Generate() returned %d obligations, want 26", len(generated))
	}
	for _, o := range generated {
		if o.ID == 0 || o.Fulfilled {
			t.Errorf("generated obligation = %+v", o)
		}
	}
	if first := generated[2]; first.Amount != 1000000 || first.ShareA != 600000 || first.ShareB != 400000 {
		t.Errorf("first mensuality = %s / %s / %s, want 10000.00 / 6000.00 / 4000.00", first.Amount, first.ShareA, first.ShareB)
	}

	if _, err := tl.Generate(ctx, terms); !errors.Is(err, core.ErrTimelineExists) {
		t.Errorf("second Generate() error = %v, want %v", err, core.ErrTimelineExists)
	}

	listed, err := tl.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(listed) != 26 {
		t.Errorf("List() returned %d obligations, want 26", len(listed))
	}
	for i := 1; i < len(listed); i++ {
		if listed[i].DueDate.Before(listed[i-1].DueDate) {
			t.Fatalf("List() not ordered by due date at %d", i)
		}
	}
}

func TestTimeline_GenerateMismatchStoresNothing(t *testing.T) {
	ctx := context.Background()
	tl := NewTimeline(memory.New())

	terms := exactTerms(12)
	terms.HolderA.MonthlyCost = decimal.RequireFromString("30.004")
	terms.HolderB.MonthlyCost = decimal.RequireFromString("30.004")
	terms.Joint.MonthlyCost = decimal.RequireFromString("60.008")

	if _, err := tl.Generate(ctx, terms); !errors.Is(err, core.ErrAmountMismatch) {
		t.Fatalf("Generate() error = %v, want %v", err, core.ErrAmountMismatch)
	}
	listed, err := tl.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("List() returned %d obligations after a failed Generate, want 0", len(listed))
	}

	// The failed run does not block a later valid one.
	if _, err := tl.Generate(ctx, exactTerms(12)); err != nil {
		t.Errorf("Generate() after mismatch error = %v", err)
	}
}
