package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"

	"loanledger/internal/amqp"
	"loanledger/internal/backend"
	"loanledger/internal/config"
	"loanledger/internal/ledger"
	"loanledger/internal/loan"
	"loanledger/internal/log"
	"loanledger/internal/sheets"
	"loanledger/internal/sheets/google"
)

// App is what a command runs against: the ledger, the loan timeline and
// the output streams.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Ledger   *ledger.Ledger
	Timeline *loan.Timeline
	Terms    loan.Terms
	AMQP     *amqp.Client

	// Sheets receives exported statements. When nil a Google Sheets
	// client is created on demand from GOOGLE_SPREADSHEET_ID.
	Sheets sheets.StatementWriter

	Out   io.Writer
	Err   io.Writer
	Plain bool // print markdown without terminal rendering

	cleanup backend.CleanupFunc
}

// Opener builds the App a command runs against. It is passed as the first
// argument of Commander.Execute so that only commands that need storage
// open it.
type Opener func(ctx context.Context) (*App, error)

// NewApp wires the ledger and the timeline over a backend result.
func NewApp(cfg *config.Config, logger *log.Logger, res *backend.Result) *App {
	return &App{
		Config:   cfg,
		Logger:   logger,
		Ledger:   ledger.New(res.Store, res.Publisher).WithLogger(logger),
		Timeline: loan.NewTimeline(res.Store),
		Terms:    cfg.Loan.Terms(),
		AMQP:     res.AMQP,
		Out:      os.Stdout,
		Err:      os.Stderr,
		cleanup:  res.Cleanup,
	}
}

// Open creates the configured backend and returns an App over it.
func Open(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("backend config: %w", err)
	}
	res, err := backend.NewFactory(logger).Create(ctx, bcfg)
	if err != nil {
		return nil, err
	}
	return NewApp(cfg, logger, res), nil
}

// Close releases the backend.
func (a *App) Close() error {
	if a.cleanup == nil {
		return nil
	}
	return a.cleanup()
}

func (a *App) statementWriter(ctx context.Context) (sheets.StatementWriter, error) {
	if a.Sheets != nil {
		return a.Sheets, nil
	}
	return google.New(ctx, a.Config.GoogleSpreadsheetID)
}

// printMarkdown renders md for the terminal, falling back to the raw text.
func (a *App) printMarkdown(md string) {
	if a.Plain {
		fmt.Fprint(a.Out, md)
		return
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Fprint(a.Out, out)
			return
		}
	}
	a.Logger.Debug("Markdown rendering failed", log.FieldError, err)
	fmt.Fprint(a.Out, md)
}

func (a *App) errorf(format string, args ...any) {
	fmt.Fprintf(a.Err, format+"\n", args...)
}

func openApp(ctx context.Context, args []interface{}) (*App, error) {
	if len(args) == 0 {
		return nil, errors.New("no application opener")
	}
	open, ok := args[0].(Opener)
	if !ok {
		return nil, fmt.Errorf("unexpected command argument %T", args[0])
	}
	return open(ctx)
}
