package cache

import (
	"context"
	"fmt"
	"time"
)

// Store is a byte-oriented key/value store with per-entry expiry.
// Get reports a miss for expired entries.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Name() string
	Close() error
}

// Purger is implemented by stores that keep expired entries until swept.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// PurgeExpired sweeps expired entries from s. Stores that expire entries
// natively (redis, badger) or hold nothing report 0.
func PurgeExpired(ctx context.Context, s Store) (int64, error) {
	p, ok := s.(Purger)
	if !ok {
		return 0, nil
	}
	return p.Purge(ctx)
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendNone   = "none"
)

// Options selects and configures a backend.
type Options struct {
	Backend    string
	SQLitePath string
	RedisAddr  string
	BadgerDir  string
}

// Open builds the configured store.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendNone:
		return NewNoopStore(), nil
	case BackendSQLite:
		return NewSQLiteStore(opts.SQLitePath)
	case BackendRedis:
		return NewRedisStore(opts.RedisAddr)
	case BackendBadger:
		return NewBadgerStore(opts.BadgerDir)
	}
	return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
}
