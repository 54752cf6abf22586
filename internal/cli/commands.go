package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"loanledger/internal/core"
)

// Register adds the loanctl subcommands to c.
func Register(c *subcommands.Commander) {
	c.Register(c.HelpCommand(), "")
	c.Register(c.FlagsCommand(), "")
	c.Register(c.CommandsCommand(), "")

	c.Register(&scheduleCmd{}, "loan")
	c.Register(&timelineCmd{}, "loan")
	c.Register(&reconcileCmd{}, "loan")

	c.Register(&postCmd{}, "ledger")
	c.Register(&transferCmd{}, "ledger")
	c.Register(&purchaseCmd{}, "ledger")

	c.Register(&balanceCmd{}, "reports")
	c.Register(&verifyCmd{}, "reports")
	c.Register(&rebuildCmd{}, "reports")
	c.Register(&statementCmd{}, "reports")
}

// run opens the App for the duration of fn.
func run(ctx context.Context, args []interface{}, fn func(app *App) subcommands.ExitStatus) subcommands.ExitStatus {
	app, err := openApp(ctx, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ledger: %v\n", err)
		return subcommands.ExitFailure
	}
	defer func() {
		if err := app.Close(); err != nil {
			app.errorf("Error closing ledger: %v", err)
		}
	}()
	return fn(app)
}

// parseOptionalDate returns the zero Date for an empty flag.
func parseOptionalDate(s string) (core.Date, error) {
	if strings.TrimSpace(s) == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
