package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/google/subcommands"

	"loanledger/internal/cli"
	"loanledger/internal/log"
)

var plain = flag.Bool("plain", false, "print raw markdown instead of rendering it")

func main() {
	cli.LoadEnvFile()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	cli.Register(commander)
	flag.Parse()

	open := cli.Opener(func(ctx context.Context) (*cli.App, error) {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return nil, err
		}
		logger := cli.SetupLogger(cfg, log.ComponentCLI)
		app, err := cli.Open(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("open %s storage: %w", cfg.StorageBackend, err)
		}
		app.Plain = *plain
		return app, nil
	})

	os.Exit(int(commander.Execute(context.Background(), open)))
}
