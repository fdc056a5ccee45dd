package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"secovi/internal/amqp"
	"secovi/internal/cache"
	"secovi/internal/cli"
	apphttp "secovi/internal/http"
	"secovi/internal/log"
	"secovi/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.LogLevel != "" {
		logger = cli.SetupLogger(cfg.LogLevel)
	}

	ctx, stop := cli.ShutdownContext(context.Background())
	defer stop()

	store, err := cli.OpenStore(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to open store", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer store.Close()

	// Ledger-saved notifications are optional; without a broker the
	// dashboard only persists.
	var publisher services.LedgerPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without notifications", log.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	}

	ledgerCfg := services.DefaultLedgerServiceConfig()
	ledgerCfg.FlushDelay = cfg.FlushDelay
	ledger, err := services.NewLedgerService(ctx, store, publisher,
		logger.WithComponent(log.ComponentLedger).Slog(), ledgerCfg)
	if err != nil {
		logger.Error("Failed to load ledger", log.FieldError, err)
		os.Exit(1)
	}
	users, err := services.NewUserService(ctx, store, logger.WithComponent(log.ComponentUsers).Slog())
	if err != nil {
		logger.Error("Failed to load users", log.FieldError, err)
		os.Exit(1)
	}

	caches := cache.NewManager(logger.WithComponent(log.ComponentCache).Slog())
	caches.Register(ledger.SummaryCache())
	caches.StartCleanup(5 * time.Minute)
	defer caches.Stop()

	srv, err := apphttp.NewServer(apphttp.ServerConfig{
		Addr:        ":" + cfg.Port,
		DefaultYear: cfg.DefaultYear,
		Ready:       store.Pinger(),
	}, ledger, users, logger)
	if err != nil {
		logger.Error("Failed to build HTTP server", log.FieldError, err)
		os.Exit(1)
	}
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 60 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16
	srv.StartBackground()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting secovi server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"default_year", cfg.DefaultYear)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := ledger.Close(shutdownCtx, cfg.FlushOnShutdown); err != nil {
			logger.Error("Final ledger flush failed", log.FieldError, err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
