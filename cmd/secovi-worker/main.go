package main

import (
	"context"
	"errors"
	"os"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"secovi/internal/amqp"
	"secovi/internal/cli"
	"secovi/internal/log"
	"secovi/internal/storage"
	"secovi/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting secovi-worker")
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

	// Only the SQLite backend keeps a backup log.
	var recorder worker.BackupRecorder
	if repo, ok := store.Store.(*storage.SQLiteRepository); ok {
		recorder = repo
	}

	if err := os.MkdirAll(cfg.BackupDir, 0o755); err != nil {
		logger.Error("Failed to create backup directory", log.FieldError, err, "dir", cfg.BackupDir)
		os.Exit(1)
	}
	w := worker.NewBackupWorker(store, recorder, cfg.BackupDir, cfg.BackupRetention)

	// Take a backup right away so a fresh deployment has one.
	if path, err := w.Backup(ctx, 0); err != nil {
		logger.Error("Startup backup failed", log.FieldError, err)
	} else if path != "" {
		logger.Info("Startup backup written", "path", path)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.BackupSchedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.BackupSchedule, w.ScheduledBackup(gctx)); err != nil {
			logger.Error("Invalid backup schedule", log.FieldError, err, "schedule", cfg.BackupSchedule)
			os.Exit(1)
		}
		c.Start()
		logger.Info("Backup schedule configured", "schedule", cfg.BackupSchedule, "retention", cfg.BackupRetention)
		g.Go(func() error {
			<-gctx.Done()
			<-c.Stop().Done()
			return nil
		})
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		g.Go(func() error {
			err := client.ConsumeLedgerSaved(gctx, w.HandleLedgerSaved)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		logger.Info("Consuming ledger-saved messages", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled, backups run on schedule only")
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
