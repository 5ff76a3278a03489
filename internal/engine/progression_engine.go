// Package engine is the progression state machine. It listens for content
// enter/complete signals, updates the progress store, writes the result
// through to storage, and announces what the player should see next.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"Lantern-Tales/server/internal/content"
	"Lantern-Tales/server/internal/events"
	"Lantern-Tales/server/internal/metrics"
	"Lantern-Tales/server/internal/models"
	"Lantern-Tales/server/internal/progress"
)

var (
	// ErrStaleSignal marks a Complete for content that is not the active node.
	ErrStaleSignal = errors.New("stale signal")
	// ErrUnknownIdentifier marks an id outside every range or beyond the configured content.
	ErrUnknownIdentifier = errors.New("unknown identifier")
	// ErrInvariantViolation marks a collaborator asking for an impossible transition.
	ErrInvariantViolation = errors.New("invariant violation")
)

// Saver persists a progress snapshot. *persistence.Persister satisfies it.
type Saver interface {
	Save(ctx context.Context, state *models.ProgressState) error
}

// Config bounds the content the engine accepts.
type Config struct {
	TotalLevels    int
	TotalChapters  int
	ChapterEndings []int // per-level cinematics that close a chapter
	Development    bool
	SaveTimeout    time.Duration
}

// ProgressionEngine owns the progress store. It must only be driven from one
// goroutine at a time; see events.Dispatcher.
type ProgressionEngine struct {
	bus    events.Bus
	store  *progress.Store
	saver  Saver
	cfg    Config
	logger *zap.Logger

	chapterEndings map[int]struct{}
	subs           map[events.Signal]events.Subscription
}

// NewProgressionEngine wires the engine. It does not subscribe until Start.
func NewProgressionEngine(bus events.Bus, store *progress.Store, saver Saver, cfg Config, logger *zap.Logger) *ProgressionEngine {
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 5 * time.Second
	}
	endings := make(map[int]struct{}, len(cfg.ChapterEndings))
	for _, id := range cfg.ChapterEndings {
		endings[id] = struct{}{}
	}
	return &ProgressionEngine{
		bus:            bus,
		store:          store,
		saver:          saver,
		cfg:            cfg,
		logger:         logger.Named("engine"),
		chapterEndings: endings,
		subs:           make(map[events.Signal]events.Subscription),
	}
}

// Start subscribes to every inbound signal. Calling it twice is a no-op.
func (e *ProgressionEngine) Start() {
	if len(e.subs) > 0 {
		return
	}
	handlers := map[events.Signal]func(int) error{
		events.LevelEnter:        e.onLevelEnter,
		events.LevelComplete:     e.onLevelComplete,
		events.StoryEnter:        e.onStoryEnter,
		events.StoryComplete:     e.onStoryComplete,
		events.CinematicEnter:    e.onCinematicEnter,
		events.CinematicComplete: e.onCinematicComplete,
		events.ChapterComplete:   e.onChapterComplete,
		events.LevelSelected:     e.onLevelSelected,
	}
	for signal, fn := range handlers {
		e.subs[signal] = e.bus.Subscribe(signal, e.guard(signal, fn))
	}
	e.logger.Info("progression engine started",
		zap.Int("total_levels", e.cfg.TotalLevels),
		zap.Int("total_chapters", e.cfg.TotalChapters),
		zap.Int("chapter", e.store.CurrentChapter()),
	)
}

// Stop unsubscribes from the bus.
func (e *ProgressionEngine) Stop() {
	for signal, sub := range e.subs {
		e.bus.Unsubscribe(signal, sub)
	}
	e.subs = make(map[events.Signal]events.Subscription)
}

// Progress exposes the read-only query surface.
func (e *ProgressionEngine) Progress() progress.Reader {
	return e.store
}

// Storybook summarizes the gallery for the configured content.
func (e *ProgressionEngine) Storybook() progress.Storybook {
	return progress.BuildStorybook(e.store, e.cfg.TotalLevels, e.cfg.TotalChapters)
}

// TotalLevels returns the configured level count.
func (e *ProgressionEngine) TotalLevels() int {
	return e.cfg.TotalLevels
}

// guard turns a transition into a bus handler: errors are classified and
// logged, panics are recovered, nothing unwinds into the publisher.
func (e *ProgressionEngine) guard(signal events.Signal, fn func(int) error) events.Handler {
	return func(id int) {
		defer func() {
			if r := recover(); r != nil {
				metrics.SignalsTotal.WithLabelValues(string(signal), metrics.OutcomePanic).Inc()
				e.logger.Error("transition panicked",
					zap.String("signal", string(signal)),
					zap.Int("id", id),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
			}
		}()
		e.report(signal, id, fn(id))
	}
}

func (e *ProgressionEngine) report(signal events.Signal, id int, err error) {
	fields := []zapcore.Field{zap.String("signal", string(signal)), zap.Int("id", id)}

	switch {
	case err == nil:
		metrics.SignalsTotal.WithLabelValues(string(signal), metrics.OutcomeAccepted).Inc()
		e.logger.Debug("signal handled", fields...)
	case errors.Is(err, ErrStaleSignal):
		metrics.SignalsTotal.WithLabelValues(string(signal), metrics.OutcomeStale).Inc()
		e.logger.Warn("stale signal dropped", append(fields, zap.Error(err))...)
	case errors.Is(err, ErrUnknownIdentifier):
		metrics.SignalsTotal.WithLabelValues(string(signal), metrics.OutcomeUnknown).Inc()
		e.logger.Warn("unknown identifier dropped", append(fields, zap.Error(err))...)
	case errors.Is(err, ErrInvariantViolation):
		metrics.SignalsTotal.WithLabelValues(string(signal), metrics.OutcomeViolation).Inc()
		if e.cfg.Development {
			e.logger.Error("invariant violation dropped", append(fields, zap.Error(err))...)
		} else {
			e.logger.Debug("invariant violation dropped", append(fields, zap.Error(err))...)
		}
	default:
		e.logger.Error("signal failed", append(fields, zap.Error(err))...)
	}
}

// persist writes the current state through. Failures are logged by the saver
// and never undo the in-memory transition.
func (e *ProgressionEngine) persist() {
	if e.saver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SaveTimeout)
	defer cancel()
	if err := e.saver.Save(ctx, e.store.Snapshot()); err != nil {
		e.logger.Warn("progress not persisted, will retry on next write", zap.Error(err))
	}
}

func (e *ProgressionEngine) publish(signal events.Signal, id int) {
	e.logger.Debug("publish", zap.String("signal", string(signal)), zap.Int("id", id))
	e.bus.Publish(signal, id)
}

// Validation helpers. Each returns ErrUnknownIdentifier for ids that are out
// of range and ErrInvariantViolation for valid ids of the wrong kind.

func (e *ProgressionEngine) checkLevel(n int) error {
	if !content.Valid(n) {
		return fmt.Errorf("%w: %d", ErrUnknownIdentifier, n)
	}
	if cat, _ := content.OwnerOf(n); cat != content.Level {
		return fmt.Errorf("%w: %d is a %s, not a level", ErrInvariantViolation, n, cat)
	}
	if n > e.cfg.TotalLevels {
		return fmt.Errorf("%w: level %d beyond %d levels", ErrUnknownIdentifier, n, e.cfg.TotalLevels)
	}
	return nil
}

func (e *ProgressionEngine) checkStory(id int) error {
	if !content.Valid(id) {
		return fmt.Errorf("%w: %d", ErrUnknownIdentifier, id)
	}
	cat, n := content.OwnerOf(id)
	if !content.IsStory(id) {
		return fmt.Errorf("%w: %d is a %s, not a story", ErrInvariantViolation, id, cat)
	}
	if n > e.cfg.TotalLevels {
		return fmt.Errorf("%w: %s %d beyond %d levels", ErrUnknownIdentifier, cat, id, e.cfg.TotalLevels)
	}
	return nil
}

func (e *ProgressionEngine) checkCinematic(id int) error {
	if !content.Valid(id) {
		return fmt.Errorf("%w: %d", ErrUnknownIdentifier, id)
	}
	cat, n := content.OwnerOf(id)
	switch cat {
	case content.Cinematic:
		if n > e.cfg.TotalLevels {
			return fmt.Errorf("%w: cinematic %d beyond %d levels", ErrUnknownIdentifier, id, e.cfg.TotalLevels)
		}
	case content.ChapterCinematic:
		if n > e.cfg.TotalChapters {
			return fmt.Errorf("%w: chapter cinematic %d beyond %d chapters", ErrUnknownIdentifier, id, e.cfg.TotalChapters)
		}
	default:
		return fmt.Errorf("%w: %d is a %s, not a cinematic", ErrInvariantViolation, id, cat)
	}
	return nil
}

func (e *ProgressionEngine) checkChapter(k int) error {
	if k < 1 || k > e.cfg.TotalChapters {
		return fmt.Errorf("%w: chapter %d beyond %d chapters", ErrUnknownIdentifier, k, e.cfg.TotalChapters)
	}
	return nil
}
