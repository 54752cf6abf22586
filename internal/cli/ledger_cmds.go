package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"loanledger/internal/core"
)

// postCmd holds the flags for the 'post' subcommand.
type postCmd struct {
	account      string
	amount       string
	date         string
	counterparty string
	operation    string
}

func (*postCmd) Name() string     { return "post" }
func (*postCmd) Synopsis() string { return "post a signed amount on one account" }
func (*postCmd) Usage() string {
	return `loanctl post -a <account> -m <amount> [-d <date>] [-cp <counterparty>] [-op <operation>]

  Posts a single entry. A negative amount debits the account, a positive
  amount credits it.
`
}

func (c *postCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "a", "", "account: joint, holder_a or holder_b")
	f.StringVar(&c.amount, "m", "", "signed amount, e.g. -12.50")
	f.StringVar(&c.date, "d", "", "entry date (default today)")
	f.StringVar(&c.counterparty, "cp", "", "counterparty")
	f.StringVar(&c.operation, "op", "", "operation label")
}

func (c *postCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	account, err := core.ParseAccount(c.account)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	amount, err := core.ParseAmount(c.amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing amount %q: %v\n", c.amount, err)
		return subcommands.ExitUsageError
	}
	date, err := core.ParseDate(c.date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}

	return run(ctx, args, func(app *App) subcommands.ExitStatus {
		e, err := app.Ledger.Post(ctx, account, amount, date, c.counterparty, c.operation)
		if err != nil {
			app.errorf("Error posting entry: %v", err)
			return subcommands.ExitFailure
		}
		app.printMarkdown(entriesMarkdown("Posted", app.Config.Currency, []core.LedgerEntry{e}))
		return subcommands.ExitSuccess
	})
}

// transferCmd holds the flags for the 'transfer' subcommand.
type transferCmd struct {
	from   string
	to     string
	amount string
	date   string
}

func (*transferCmd) Name() string     { return "transfer" }
func (*transferCmd) Synopsis() string { return "move money between accounts" }
func (*transferCmd) Usage() string {
	return `loanctl transfer -from <account> -to <account> -m <amount> [-d <date>]

  Wires a positive amount. A transfer from an individual account debits the
  issuer and credits the recipient. A transfer from joint to an individual
  account records a joint payment made from the individual's money and
  debits both.
`
}

func (c *transferCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "issuing account")
	f.StringVar(&c.to, "to", "", "receiving account")
	f.StringVar(&c.amount, "m", "", "positive amount")
	f.StringVar(&c.date, "d", "", "transfer date (default today)")
}

func (c *transferCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	issuer, err := core.ParseAccount(c.from)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	recipient, err := core.ParseAccount(c.to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	amount, err := core.ParseAmount(c.amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing amount %q: %v\n", c.amount, err)
		return subcommands.ExitUsageError
	}
	date, err := core.ParseDate(c.date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}

	return run(ctx, args, func(app *App) subcommands.ExitStatus {
		entries, err := app.Ledger.Transfer(ctx, issuer, recipient, amount, date)
		if err != nil {
			app.errorf("Error transferring: %v", err)
			return subcommands.ExitFailure
		}
		app.printMarkdown(entriesMarkdown("Transfer", app.Config.Currency, entries))
		return subcommands.ExitSuccess
	})
}

// purchaseCmd holds the flags for the 'purchase' subcommand.
type purchaseCmd struct {
	amount    string
	recipient string
	percent   string
	date      string
	note      string
}

func (*purchaseCmd) Name() string     { return "purchase" }
func (*purchaseCmd) Synopsis() string { return "split a joint purchase between the holders" }
func (*purchaseCmd) Usage() string {
	return `loanctl purchase -m <amount> -to <recipient> [-pct <holder_a percent>] [-d <date>] [-note <text>]

  Debits holder_a by pct% of the amount and holder_b by the rest.
`
}

func (c *purchaseCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.amount, "m", "", "positive purchase amount")
	f.StringVar(&c.recipient, "to", "", "who was paid")
	f.StringVar(&c.percent, "pct", "50", "holder_a share in percent")
	f.StringVar(&c.date, "d", "", "purchase date (default today)")
	f.StringVar(&c.note, "note", "", "operation label")
}

func (c *purchaseCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	amount, err := core.ParseAmount(c.amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing amount %q: %v\n", c.amount, err)
		return subcommands.ExitUsageError
	}
	pct, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(c.percent), "%"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing percentage %q: %v\n", c.percent, err)
		return subcommands.ExitUsageError
	}
	date, err := core.ParseDate(c.date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}

	return run(ctx, args, func(app *App) subcommands.ExitStatus {
		entries, err := app.Ledger.JointPurchase(ctx, amount, c.recipient, pct, date, c.note)
		if err != nil {
			app.errorf("Error recording purchase: %v", err)
			return subcommands.ExitFailure
		}
		app.printMarkdown(entriesMarkdown("Joint purchase", app.Config.Currency, entries))
		return subcommands.ExitSuccess
	})
}

func entriesMarkdown(title, currency string, entries []core.LedgerEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	b.WriteString("| Date | Account | Counterparty | Operation | Debit | Credit |\n")
	b.WriteString("|---|---|---|---|---:|---:|\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			e.Date, e.Account, escapeCell(e.Counterparty), escapeCell(e.Operation),
			amountCell(e.Debit, currency), amountCell(e.Credit, currency))
	}
	return b.String()
}

func amountCell(c core.Cents, currency string) string {
	if c == 0 {
		return ""
	}
	return c.Format(currency)
}
