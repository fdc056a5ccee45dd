package worker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"secovi/internal/amqp"
	"secovi/internal/impexp"
	"secovi/internal/kv"
	"secovi/internal/storage"
)

// BackupRecorder keeps a log of written backup files.
type BackupRecorder interface {
	RecordBackup(ctx context.Context, revision int64, path string, size int64) (storage.BackupLog, error)
}

// BackupWorker copies the stored ledger into dated backup files, one per
// day, and prunes old files beyond the retention count.
type BackupWorker struct {
	store     kv.Store
	recorder  BackupRecorder
	dir       string
	retention int
	now       func() time.Time

	mu           sync.Mutex
	lastBoot     string
	lastRevision int64
}

func NewBackupWorker(store kv.Store, recorder BackupRecorder, dir string, retention int) *BackupWorker {
	return &BackupWorker{
		store:     store,
		recorder:  recorder,
		dir:       dir,
		retention: retention,
		now:       time.Now,
	}
}

// HandleLedgerSaved backs up the ledger after a newer revision was saved.
// A message from a different server boot starts a new revision sequence.
func (w *BackupWorker) HandleLedgerSaved(ctx context.Context, msg *amqp.LedgerSavedMessage) error {
	w.mu.Lock()
	if msg.Boot != w.lastBoot {
		if w.lastRevision != 0 {
			slog.InfoContext(ctx, "Server restarted, revisions start over", "boot", msg.Boot, "previous_revision", w.lastRevision)
		}
		w.lastBoot = msg.Boot
		w.lastRevision = 0
	}
	stale := msg.Revision != 0 && msg.Revision <= w.lastRevision
	w.mu.Unlock()

	if msg.Event == amqp.EventCleared {
		slog.WarnContext(ctx, "Ledger was cleared, keeping existing backups", "revision", msg.Revision)
		return nil
	}
	if stale {
		slog.DebugContext(ctx, "Skipping stale ledger message", "revision", msg.Revision)
		return nil
	}

	_, err := w.Backup(ctx, msg.Revision)
	return err
}

// Backup writes the stored ledger to today's backup file and returns its
// path. An empty path means there was nothing stored to back up.
func (w *BackupWorker) Backup(ctx context.Context, revision int64) (string, error) {
	data, ok, err := w.store.Get(ctx, kv.LedgerKey)
	if err != nil {
		return "", fmt.Errorf("read ledger: %w", err)
	}
	if !ok {
		slog.InfoContext(ctx, "No stored ledger, nothing to back up")
		return "", nil
	}

	ledger, err := impexp.ParseBackup(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("stored ledger: %w", err)
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}
	path := filepath.Join(w.dir, impexp.BackupFilename(w.now()))

	tmp, err := os.CreateTemp(w.dir, ".backup-*.json")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := impexp.ExportBackup(tmp, ledger); err != nil {
		tmp.Close()
		return "", err
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("stat backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close backup: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move backup into place: %w", err)
	}

	if revision != 0 {
		w.mu.Lock()
		if revision > w.lastRevision {
			w.lastRevision = revision
		}
		w.mu.Unlock()
	}

	if w.recorder != nil {
		if _, err := w.recorder.RecordBackup(ctx, revision, path, info.Size()); err != nil {
			slog.WarnContext(ctx, "Failed to record backup", "path", path, "error", err)
		}
	}

	slog.InfoContext(ctx, "Ledger backup written", "path", path, "revision", revision, "bytes", info.Size())

	if removed, err := w.Prune(); err != nil {
		slog.WarnContext(ctx, "Failed to prune backups", "error", err)
	} else if removed > 0 {
		slog.InfoContext(ctx, "Old backups removed", "count", removed)
	}
	return path, nil
}

// Prune removes the oldest backup files beyond the retention count.
// A retention of zero keeps everything.
func (w *BackupWorker) Prune() (int, error) {
	if w.retention <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("list backups: %w", err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, "database_secovi_backup_") && strings.HasSuffix(n, ".json") {
			names = append(names, n)
		}
	}
	if len(names) <= w.retention {
		return 0, nil
	}
	// Dates in the names sort chronologically.
	sort.Strings(names)
	removed := 0
	for _, n := range names[:len(names)-w.retention] {
		if err := os.Remove(filepath.Join(w.dir, n)); err != nil {
			return removed, fmt.Errorf("remove %s: %w", n, err)
		}
		removed++
	}
	return removed, nil
}

// ScheduledBackup returns a job for the cron scheduler.
func (w *BackupWorker) ScheduledBackup(ctx context.Context) func() {
	return func() {
		if _, err := w.Backup(ctx, 0); err != nil {
			slog.ErrorContext(ctx, "Scheduled backup failed", "error", err)
		}
	}
}
