// Package cli holds the start-up steps shared by cmd/secovi,
// cmd/secovi-worker and cmd/secovi-cli.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"secovi/internal/backend"
	"secovi/internal/config"
	"secovi/internal/kv"
	"secovi/internal/log"
)

// SetupLogger builds the process logger at the given level and installs it
// as the slog default.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads the configuration and exits on validation
// failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// Store is an opened key-value store with its cleanup.
type Store struct {
	kv.Store
	cleanup backend.CleanupFunc
}

// Pinger returns the store as a readiness check, or nil when the backend
// cannot be pinged.
func (s *Store) Pinger() kv.Pinger {
	p, _ := s.Store.(kv.Pinger)
	return p
}

// Close releases the backend.
func (s *Store) Close() error {
	if s.cleanup == nil {
		return nil
	}
	return s.cleanup()
}

// OpenStore opens the backend selected by cfg.
func OpenStore(ctx context.Context, logger *log.Logger, cfg *config.Config) (*Store, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Slog()).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", bcfg.Type, err)
	}
	return &Store{Store: res.Store, cleanup: res.Cleanup}, nil
}

// ShutdownContext is cancelled on SIGINT or SIGTERM.
func ShutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
