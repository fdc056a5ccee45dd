// Package kv defines the key-value persistence port the dashboard state is
// stored through, and the keys it uses.
package kv

import "context"

// Keys under which the dashboard state is persisted.
const (
	LedgerKey  = "secovi_database_v4"
	UsersKey   = "secovi_users_v1"
	SessionKey = "secovi_session_v1"
)

// Store is a string-keyed blob store. Get reports ok=false for a missing key.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Closer is implemented by stores holding connections.
type Closer interface {
	Close() error
}
