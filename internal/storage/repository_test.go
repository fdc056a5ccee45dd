package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteRepositoryKV(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if _, ok, err := repo.Get(ctx, "secovi_users_v1"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := repo.Set(ctx, "secovi_users_v1", []byte(`[1]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := repo.Set(ctx, "secovi_users_v1", []byte(`[2]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, ok, err := repo.Get(ctx, "secovi_users_v1")
	if err != nil || !ok || string(got) != "[2]" {
		t.Fatalf("unexpected value %q ok=%v err=%v", got, ok, err)
	}

	keys, err := repo.Keys(ctx)
	if err != nil || len(keys) != 1 || keys[0].Key != "secovi_users_v1" {
		t.Fatalf("unexpected keys %+v err=%v", keys, err)
	}

	if err := repo.Delete(ctx, "secovi_users_v1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := repo.Get(ctx, "secovi_users_v1"); ok {
		t.Fatalf("expected key to be gone")
	}
}

func TestSQLiteRepositoryBackupLog(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for i, p := range []string{"a.json", "b.json"} {
		if _, err := repo.RecordBackup(ctx, int64(i+1), p, 100); err != nil {
			t.Fatalf("record backup: %v", err)
		}
	}
	items, err := repo.RecentBackups(ctx, 10)
	if err != nil {
		t.Fatalf("recent backups: %v", err)
	}
	if len(items) != 2 || items[0].Path != "b.json" || items[0].Revision != 2 {
		t.Fatalf("unexpected backups %+v", items)
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	first, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first != 2 || second != first {
		t.Fatalf("expected schema version 2 twice, got %d and %d", first, second)
	}
}
