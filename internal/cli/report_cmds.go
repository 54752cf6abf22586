package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"loanledger/internal/core"
	"loanledger/internal/statement"
)

// balanceCmd holds the flags for the 'balance' subcommand.
type balanceCmd struct {
	account string
	asOf    string
}

func (*balanceCmd) Name() string     { return "balance" }
func (*balanceCmd) Synopsis() string { return "show account balances" }
func (*balanceCmd) Usage() string {
	return `loanctl balance [-a <account>] [-d <date>]

  Without -d prints the balance snapshots. With -d prints the balances
  computed from the entries dated strictly before that date.
`
}

func (c *balanceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "a", "", "only this account")
	f.StringVar(&c.asOf, "d", "", "compute the balance before this date")
}

func (c *balanceCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	accounts := core.Accounts
	if c.account != "" {
		a, err := core.ParseAccount(c.account)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
		accounts = []core.Account{a}
	}
	asOf, err := parseOptionalDate(c.asOf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}

	return run(ctx, args, func(app *App) subcommands.ExitStatus {
		currency := app.Config.Currency
		var b strings.Builder

		if !asOf.IsZero() {
			fmt.Fprintf(&b, "# Balances before %s\n\n| Account | Balance |\n|---|---:|\n", asOf)
			for _, account := range accounts {
				bal, err := app.Ledger.BalanceAsOf(ctx, account, asOf)
				if err != nil {
					app.errorf("Error computing balance: %v", err)
					return subcommands.ExitFailure
				}
				fmt.Fprintf(&b, "| %s | %s |\n", account, bal.Format(currency))
			}
			app.printMarkdown(b.String())
			return subcommands.ExitSuccess
		}

		b.WriteString("# Balances\n\n| Account | As of | Debit | Credit | Balance |\n|---|---|---:|---:|---:|\n")
		for _, account := range accounts {
			s, err := app.Ledger.CurrentBalance(ctx, account)
			if err != nil {
				app.errorf("Error reading balance: %v", err)
				return subcommands.ExitFailure
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", s.Account, asOfCell(s.AsOf),
				s.TotalDebit.Format(currency), s.TotalCredit.Format(currency), s.Balance.Format(currency))
		}
		app.printMarkdown(b.String())
		return subcommands.ExitSuccess
	})
}

func asOfCell(d core.Date) string {
	if d.IsZero() {
		return "-"
	}
	return d.String()
}

type verifyCmd struct{}

func (*verifyCmd) Name() string     { return "verify" }
func (*verifyCmd) Synopsis() string { return "check the balance snapshots against the ledger" }
func (*verifyCmd) Usage() string {
	return `loanctl verify

  Recomputes every balance from the ledger entries and reports the
  snapshots that disagree. Exits non-zero on drift.
`
}

func (*verifyCmd) SetFlags(*flag.FlagSet) {}

func (*verifyCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	return run(ctx, args, func(app *App) subcommands.ExitStatus {
		drifts, err := app.Ledger.Verify(ctx)
		if len(drifts) > 0 {
			currency := app.Config.Currency
			var b strings.Builder
			b.WriteString("# Snapshot drift\n\n| Account | Snapshot | Ledger |\n|---|---:|---:|\n")
			for _, d := range drifts {
				fmt.Fprintf(&b, "| %s | %s | %s |\n", d.Snapshot.Account,
					d.Snapshot.Balance.Format(currency), d.Computed.Balance.Format(currency))
			}
			app.printMarkdown(b.String())
			app.errorf("Run 'loanctl rebuild' to rewrite the snapshots from the ledger")
			return subcommands.ExitFailure
		}
		if err != nil {
			app.errorf("Error verifying balances: %v", err)
			return subcommands.ExitFailure
		}
		fmt.Fprintln(app.Out, "All balance snapshots match the ledger")
		return subcommands.ExitSuccess
	})
}

type rebuildCmd struct{}

func (*rebuildCmd) Name() string     { return "rebuild" }
func (*rebuildCmd) Synopsis() string { return "rewrite the balance snapshots from the ledger" }
func (*rebuildCmd) Usage() string {
	return `loanctl rebuild
`
}

func (*rebuildCmd) SetFlags(*flag.FlagSet) {}

func (*rebuildCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	return run(ctx, args, func(app *App) subcommands.ExitStatus {
		snaps, err := app.Ledger.Rebuild(ctx)
		if err != nil {
			app.errorf("Error rebuilding balances: %v", err)
			return subcommands.ExitFailure
		}
		var b strings.Builder
		b.WriteString("# Rebuilt balances\n\n| Account | Balance |\n|---|---:|\n")
		for _, s := range snaps {
			fmt.Fprintf(&b, "| %s | %s |\n", s.Account, s.Balance.Format(app.Config.Currency))
		}
		app.printMarkdown(b.String())
		return subcommands.ExitSuccess
	})
}

// statementCmd holds the flags for the 'statement' subcommand.
type statementCmd struct {
	account string
	start   string
	stop    string
	export  bool
}

func (*statementCmd) Name() string     { return "statement" }
func (*statementCmd) Synopsis() string { return "print an account statement" }
func (*statementCmd) Usage() string {
	return `loanctl statement [-a <account>] [-start <date>] [-stop <date>] [-export]

  Prints the opening balance at start, the entries dated in [start, stop)
  and the closing balance. Start defaults to the first day of stop's month,
  or of the previous month when stop is itself a first. With -export the
  statement is also written to Google Sheets.
`
}

func (c *statementCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "a", string(core.Joint), "account")
	f.StringVar(&c.start, "start", "", "first day of the statement")
	f.StringVar(&c.stop, "stop", "", "day after the statement (default today)")
	f.BoolVar(&c.export, "export", false, "also export the statement to Google Sheets")
}

func (c *statementCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	account, err := core.ParseAccount(c.account)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	start, err := parseOptionalDate(c.start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing start date: %v\n", err)
		return subcommands.ExitUsageError
	}
	stop, err := core.ParseDate(c.stop)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing stop date: %v\n", err)
		return subcommands.ExitUsageError
	}

	return run(ctx, args, func(app *App) subcommands.ExitStatus {
		st, err := statement.Build(ctx, app.Ledger, account, start, stop)
		if err != nil {
			app.errorf("Error building statement: %v", err)
			return subcommands.ExitFailure
		}
		app.printMarkdown(st.Markdown(app.Config.Currency))

		if !c.export {
			return subcommands.ExitSuccess
		}
		w, err := app.statementWriter(ctx)
		if err != nil {
			app.errorf("Error connecting to Google Sheets: %v", err)
			return subcommands.ExitFailure
		}
		ref, err := w.WriteStatement(ctx, st)
		if err != nil {
			app.errorf("Error exporting statement: %v", err)
			return subcommands.ExitFailure
		}
		fmt.Fprintf(app.Out, "Exported to %s\n", ref)
		return subcommands.ExitSuccess
	})
}
