package storage

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const getValue = `-- name: GetValue :one
SELECT value FROM kv_store WHERE key = ?
`

func (q *Queries) GetValue(ctx context.Context, key string) ([]byte, error) {
	row := q.db.QueryRowContext(ctx, getValue, key)
	var value []byte
	err := row.Scan(&value)
	return value, err
}

const upsertValue = `-- name: UpsertValue :exec
INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
`

type UpsertValueParams struct {
	Key   string
	Value []byte
}

func (q *Queries) UpsertValue(ctx context.Context, arg UpsertValueParams) error {
	_, err := q.db.ExecContext(ctx, upsertValue, arg.Key, arg.Value)
	return err
}

const deleteValue = `-- name: DeleteValue :exec
DELETE FROM kv_store WHERE key = ?
`

func (q *Queries) DeleteValue(ctx context.Context, key string) error {
	_, err := q.db.ExecContext(ctx, deleteValue, key)
	return err
}

const listKeys = `-- name: ListKeys :many
SELECT key, updated_at FROM kv_store ORDER BY key
`

type KeyInfo struct {
	Key       string
	UpdatedAt time.Time
}

func (q *Queries) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := q.db.QueryContext(ctx, listKeys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []KeyInfo
	for rows.Next() {
		var i KeyInfo
		if err := rows.Scan(&i.Key, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertBackup = `-- name: InsertBackup :one
INSERT INTO backup_log (revision, path, size_bytes) VALUES (?, ?, ?)
RETURNING id, revision, path, size_bytes, created_at
`

type InsertBackupParams struct {
	Revision  int64
	Path      string
	SizeBytes int64
}

type BackupLog struct {
	ID        int64
	Revision  int64
	Path      string
	SizeBytes int64
	CreatedAt time.Time
}

func (q *Queries) InsertBackup(ctx context.Context, arg InsertBackupParams) (BackupLog, error) {
	row := q.db.QueryRowContext(ctx, insertBackup, arg.Revision, arg.Path, arg.SizeBytes)
	var i BackupLog
	err := row.Scan(&i.ID, &i.Revision, &i.Path, &i.SizeBytes, &i.CreatedAt)
	return i, err
}

const listBackups = `-- name: ListBackups :many
SELECT id, revision, path, size_bytes, created_at FROM backup_log
ORDER BY created_at DESC, id DESC
LIMIT ?
`

func (q *Queries) ListBackups(ctx context.Context, limit int64) ([]BackupLog, error) {
	rows, err := q.db.QueryContext(ctx, listBackups, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BackupLog
	for rows.Next() {
		var i BackupLog
		if err := rows.Scan(&i.ID, &i.Revision, &i.Path, &i.SizeBytes, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
