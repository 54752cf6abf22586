package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"loanledger/internal/core"
	"loanledger/internal/events"
	"loanledger/internal/ledger"
	"loanledger/internal/loan"
)

// scheduleCmd holds the flags for the 'schedule' subcommand.
type scheduleCmd struct {
	summary bool
	kind    string
	limit   int
}

func (*scheduleCmd) Name() string     { return "schedule" }
func (*scheduleCmd) Synopsis() string { return "show the loan schedule computed from the configured terms" }
func (*scheduleCmd) Usage() string {
	return `loanctl schedule [-summary] [-k <kind>] [-n <rows>]

  Prints the obligations the configured loan terms produce, without storing
  them. With -summary prints the cost breakdown of each loan instead.
`
}

func (c *scheduleCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.summary, "summary", false, "print the cost summary of each loan")
	f.StringVar(&c.kind, "k", "", "only show obligations of this kind: fee, loan or insurance")
	f.IntVar(&c.limit, "n", 0, "maximum number of rows (0 for all)")
}

func (c *scheduleCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	var kind core.ObligationKind
	if c.kind != "" {
		k, err := core.ParseKind(c.kind)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
		kind = k
	}

	return run(ctx, args, func(app *App) subcommands.ExitStatus {
		if c.summary {
			if err := app.Terms.Validate(); err != nil {
				app.errorf("Error in loan terms: %v", err)
				return subcommands.ExitFailure
			}
			app.printMarkdown(summaryMarkdown(app.Terms, app.Config.Currency))
			return subcommands.ExitSuccess
		}

		obligations, err := loan.Schedule(app.Terms)
		if err != nil {
			app.errorf("Error computing schedule: %v", err)
			return subcommands.ExitFailure
		}
		if kind != "" {
			filtered := obligations[:0]
			for _, o := range obligations {
				if o.Kind == kind {
					filtered = append(filtered, o)
				}
			}
			obligations = filtered
		}
		if c.limit > 0 && len(obligations) > c.limit {
			obligations = obligations[:c.limit]
		}
		app.printMarkdown(obligationsMarkdown("Loan schedule", app.Config.Currency, obligations, false))
		return subcommands.ExitSuccess
	})
}

// timelineCmd holds the flags for the 'timeline' subcommand.
type timelineCmd struct {
	list    bool
	pending bool
}

func (*timelineCmd) Name() string     { return "timeline" }
func (*timelineCmd) Synopsis() string { return "store the loan timeline or list it" }
func (*timelineCmd) Usage() string {
	return `loanctl timeline [-list [-pending]]

  Without flags, computes the loan schedule and stores it as the timeline.
  This is done once: a second run fails and leaves the timeline untouched.
`
}

func (c *timelineCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.list, "list", false, "list the stored timeline")
	f.BoolVar(&c.pending, "pending", false, "with -list, only show unfulfilled obligations")
}

func (c *timelineCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	return run(ctx, args, func(app *App) subcommands.ExitStatus {
		if c.list {
			obligations, err := app.Timeline.List(ctx)
			if err != nil {
				app.errorf("Error listing timeline: %v", err)
				return subcommands.ExitFailure
			}
			if c.pending {
				pending := obligations[:0]
				for _, o := range obligations {
					if !o.Fulfilled {
						pending = append(pending, o)
					}
				}
				obligations = pending
			}
			app.printMarkdown(obligationsMarkdown("Loan timeline", app.Config.Currency, obligations, true))
			return subcommands.ExitSuccess
		}

		obligations, err := app.Timeline.Generate(ctx, app.Terms)
		if errors.Is(err, core.ErrTimelineExists) {
			app.errorf("The timeline is already stored; use -list to show it")
			return subcommands.ExitFailure
		}
		if err != nil {
			app.errorf("Error generating timeline: %v", err)
			return subcommands.ExitFailure
		}
		first, last := obligations[0], obligations[len(obligations)-1]
		fmt.Fprintf(app.Out, "Stored %d obligations due from %s to %s\n", len(obligations), first.DueDate, last.DueDate)
		return subcommands.ExitSuccess
	})
}

// reconcileCmd holds the flags for the 'reconcile' subcommand.
type reconcileCmd struct {
	asOf  string
	async bool
}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "post every obligation that has come due" }
func (*reconcileCmd) Usage() string {
	return `loanctl reconcile [-d <as-of date>] [-async]

  Posts the obligations due strictly before the as-of date (default today)
  and marks them fulfilled. With -async the request is queued for the
  reconcile worker instead.
`
}

func (c *reconcileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.asOf, "d", "", "as-of date (default today)")
	f.BoolVar(&c.async, "async", false, "queue the request for the reconcile worker over AMQP")
}

func (c *reconcileCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	asOf, err := core.ParseDate(c.asOf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}

	return run(ctx, args, func(app *App) subcommands.ExitStatus {
		if c.async {
			if app.AMQP == nil {
				app.errorf("Error: -async needs EVENTS_BACKEND=amqp and a reachable broker")
				return subcommands.ExitFailure
			}
			req := events.NewReconcileRequest(asOf)
			if err := app.AMQP.PublishReconcileRequest(ctx, req); err != nil {
				app.errorf("Error queueing reconcile request: %v", err)
				return subcommands.ExitFailure
			}
			fmt.Fprintf(app.Out, "Queued reconcile request %s as of %s\n", req.ID, asOf)
			return subcommands.ExitSuccess
		}

		report, err := ledger.NewReconciler(app.Ledger, app.Config.ReconcileWorkers).Reconcile(ctx, asOf)
		if err != nil {
			app.errorf("Error reconciling: %v", err)
			return subcommands.ExitFailure
		}
		app.printMarkdown(reportMarkdown(report))
		return subcommands.ExitSuccess
	})
}

func summaryMarkdown(terms loan.Terms, currency string) string {
	joint, a, b := terms.Loans()
	sums := []loan.Summary{joint.Summary(), a.Summary(), b.Summary()}

	var sb strings.Builder
	sb.WriteString("# Loan summary\n\n")
	fmt.Fprintf(&sb, "%d monthly payments from %s\n\n", terms.Periods, terms.FirstDueDate.AddMonths(1))
	sb.WriteString("| | joint | holder_a | holder_b |\n|---|---:|---:|---:|\n")
	row := func(label string, pick func(loan.Summary) core.Cents) {
		fmt.Fprintf(&sb, "| %s |", label)
		for _, s := range sums {
			fmt.Fprintf(&sb, " %s |", pick(s).Format(currency))
		}
		sb.WriteString("\n")
	}
	row("Principal", func(s loan.Summary) core.Cents { return s.Principal })
	row("Monthly repayment", func(s loan.Summary) core.Cents { return s.MonthlyRepayment })
	row("Monthly cost", func(s loan.Summary) core.Cents { return s.MonthlyCost })
	row("Upfront cost", func(s loan.Summary) core.Cents { return s.UpfrontCost })
	row("Processing cost", func(s loan.Summary) core.Cents { return s.ProcessingCost })
	row("Total cost", func(s loan.Summary) core.Cents { return s.TotalCost })
	return sb.String()
}

func obligationsMarkdown(title, currency string, obligations []core.Obligation, withStatus bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if len(obligations) == 0 {
		b.WriteString("No obligations.\n")
		return b.String()
	}
	b.WriteString("| Month | Due | Kind | Amount | holder_a | holder_b |")
	if withStatus {
		b.WriteString(" Fulfilled |")
	}
	b.WriteString("\n|---:|---|---|---:|---:|---:|")
	if withStatus {
		b.WriteString("---|")
	}
	b.WriteString("\n")
	for _, o := range obligations {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s |",
			o.Month, o.DueDate, o.Kind, o.Amount.Format(currency), o.ShareA.Format(currency), o.ShareB.Format(currency))
		if withStatus {
			status := "no"
			if o.Fulfilled {
				status = "yes"
			}
			fmt.Fprintf(&b, " %s |", status)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func reportMarkdown(r ledger.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Reconciliation as of %s\n\n", r.AsOf)
	fmt.Fprintf(&b, "- Due: %d\n", r.Due)
	fmt.Fprintf(&b, "- Fulfilled: %d (%d entries)\n", len(r.Fulfilled), r.Entries)
	fmt.Fprintf(&b, "- Skipped: %d\n", len(r.Skipped))
	fmt.Fprintf(&b, "- Mismatched: %d\n", len(r.Mismatched))
	if len(r.Mismatched) > 0 {
		ids := make([]string, len(r.Mismatched))
		for i, id := range r.Mismatched {
			ids[i] = fmt.Sprint(id)
		}
		fmt.Fprintf(&b, "\nObligations left unfulfilled because their shares do not add up: %s\n", strings.Join(ids, ", "))
	}
	return b.String()
}
