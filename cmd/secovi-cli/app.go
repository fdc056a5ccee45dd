package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/subcommands"

	"secovi/internal/cli"
	"secovi/internal/config"
	"secovi/internal/log"
	"secovi/internal/services"
)

// app is the state every command works on. Changes are written back when
// the app is closed.
type app struct {
	cfg    *config.Config
	logger *log.Logger
	store  *cli.Store
	ledger *services.LedgerService
	users  *services.UserService
}

func openApp(ctx context.Context) (*app, error) {
	// Logs go to stderr so exports can be piped from stdout.
	lcfg := log.DefaultConfig()
	lcfg.Level = slog.LevelWarn
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		lcfg.Level = log.ParseLevel(level)
	}
	lcfg.Component = log.ComponentCLI
	lcfg.Output = os.Stderr
	logger := log.New(lcfg)
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	store, err := cli.OpenStore(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}
	ledger, err := services.NewLedgerService(ctx, store, nil,
		logger.WithComponent(log.ComponentLedger).Slog(), services.DefaultLedgerServiceConfig())
	if err != nil {
		store.Close()
		return nil, err
	}
	users, err := services.NewUserService(ctx, store, logger.WithComponent(log.ComponentUsers).Slog())
	if err != nil {
		store.Close()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, store: store, ledger: ledger, users: users}, nil
}

// close flushes pending ledger changes and releases the store.
func (a *app) close(ctx context.Context) error {
	err := a.ledger.Close(ctx, true)
	if cerr := a.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// run opens the app, calls fn and closes the app, reporting errors on
// stderr.
func run(ctx context.Context, fn func(*app) error) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	ferr := fn(a)
	if err := a.close(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: saving changes: %v\n", err)
		return subcommands.ExitFailure
	}
	if ferr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", ferr)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
