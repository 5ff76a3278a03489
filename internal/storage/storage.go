// Package storage holds the save-slot backends. Each backend stores one
// opaque record per slot name; encoding is the caller's business.
package storage

import (
	"context"
	"errors"
	"fmt"

	"Lantern-Tales/server/internal/config"
)

// ErrSlotNotFound is returned by Load when nothing was ever saved to the slot.
var ErrSlotNotFound = errors.New("save slot not found")

// SlotStore reads and writes whole save records keyed by slot name.
type SlotStore interface {
	Load(ctx context.Context, slot string) ([]byte, error)
	Save(ctx context.Context, slot string, data []byte) error
	Close() error
}

// Open builds the backend selected by cfg.Save.Backend.
func Open(cfg *config.Config) (SlotStore, error) {
	switch cfg.Save.Backend {
	case config.BackendFile:
		return NewFileStore(cfg.Save.Dir)
	case config.BackendSQLite:
		return NewSQLiteStore(cfg.Database.SQLite)
	case config.BackendMySQL:
		return NewMySQLStore(cfg.Database.MySQL)
	case config.BackendRedis:
		return NewRedisStore(cfg.Database.Redis)
	default:
		return nil, fmt.Errorf("unknown save backend %q", cfg.Save.Backend)
	}
}
