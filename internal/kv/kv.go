// Package kv implements the key-value persistence collaborator the event
// store writes its JSON list through.
package kv

import (
	"context"
	"fmt"

	"daycal/internal/config"
)

// KV is a string key-value store. Get reports ok=false for a missing key.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Open returns the driver selected by cfg.Driver.
func Open(cfg config.Storage) (KV, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil
	case "file", "":
		return NewFile(cfg.Path)
	case "sqlite":
		return OpenSQLite(cfg.Path)
	case "redis":
		return OpenRedis(cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
