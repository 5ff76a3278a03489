package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"Lantern-Tales/server/internal/metrics"
	"Lantern-Tales/server/internal/models"
	"Lantern-Tales/server/internal/storage"
)

// Persister writes the progress of one save slot through to a SlotStore.
//
// A failed write is retried once. If the retry fails too, the encoded record
// is kept and the persister is marked dirty until a later Save or Flush lands.
type Persister struct {
	store  storage.SlotStore
	slot   string
	logger *zap.Logger

	mu      sync.Mutex // one write in flight per slot
	pending []byte
	dirty   *atomic.Bool
	writes  *atomic.Int64
}

func NewPersister(store storage.SlotStore, slot string, logger *zap.Logger) *Persister {
	return &Persister{
		store:  store,
		slot:   slot,
		logger: logger.Named("persister").With(zap.String("slot", slot)),
		dirty:  atomic.NewBool(false),
		writes: atomic.NewInt64(0),
	}
}

// Load reads the slot. A missing slot yields a fresh state and no error; an
// unreadable or undecodable one yields a fresh state and the cause.
func (p *Persister) Load(ctx context.Context) (*models.ProgressState, error) {
	data, err := p.store.Load(ctx, p.slot)
	if errors.Is(err, storage.ErrSlotNotFound) {
		p.logger.Info("no saved progress, starting fresh")
		return models.NewProgressState(), nil
	}
	if err != nil {
		p.logger.Warn("failed to read saved progress, starting fresh", zap.Error(err))
		return models.NewProgressState(), fmt.Errorf("failed to load progress: %w", err)
	}

	state, err := Decode(data)
	if err != nil {
		p.logger.Warn("saved progress unusable, starting fresh", zap.Error(err))
		return state, err
	}
	return state, nil
}

// Save encodes state and writes it synchronously. The error is informational:
// the caller's in-memory state stays authoritative either way.
func (p *Persister) Save(ctx context.Context, state *models.ProgressState) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeLocked(ctx, data)
}

// Flush retries the last failed write, if any.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.dirty.Load() {
		return nil
	}
	p.logger.Info("flushing unsaved progress")
	return p.writeLocked(ctx, p.pending)
}

func (p *Persister) writeLocked(ctx context.Context, data []byte) error {
	err := p.store.Save(ctx, p.slot, data)
	if err == nil {
		p.markClean(metrics.WriteOK)
		return nil
	}

	p.logger.Warn("save failed, retrying", zap.Error(err))
	if err = p.store.Save(ctx, p.slot, data); err == nil {
		p.markClean(metrics.WriteRetried)
		return nil
	}

	p.pending = data
	p.dirty.Store(true)
	metrics.PersistenceWritesTotal.WithLabelValues(metrics.WriteFailed).Inc()
	metrics.PersistenceDirty.Set(1)
	p.logger.Error("save failed twice, progress kept in memory", zap.Error(err))
	return fmt.Errorf("failed to persist progress: %w", err)
}

func (p *Persister) markClean(status string) {
	p.writes.Inc()
	p.pending = nil
	if p.dirty.CompareAndSwap(true, false) {
		p.logger.Info("unsaved progress reached storage")
	}
	metrics.PersistenceWritesTotal.WithLabelValues(status).Inc()
	metrics.PersistenceDirty.Set(0)
}

// Dirty reports whether the latest progress has not reached storage.
func (p *Persister) Dirty() bool {
	return p.dirty.Load()
}

// Writes returns the number of successful writes.
func (p *Persister) Writes() int64 {
	return p.writes.Load()
}

// Slot returns the save slot name.
func (p *Persister) Slot() string {
	return p.slot
}
