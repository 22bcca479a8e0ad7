package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
type Store interface {
	Pinger
	HashStore
	KVStore
	ListStore
	Scripter
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore reads hash records written by scripts.
type HashStore interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// KVStore provides counter operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// ListStore reads transaction lists appended by scripts.
type ListStore interface {
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// Script is a server-side Lua script identified by its source.
type Script struct {
	Name string
	Src  string
}

// Scripter runs server-side scripts atomically.
type Scripter interface {
	// RunScript executes script and returns its array reply as strings.
	RunScript(ctx context.Context, script *Script, keys, args []string) ([]string, error)
}
