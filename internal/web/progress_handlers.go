package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"Lantern-Tales/server/internal/content"
	"Lantern-Tales/server/internal/events"
	"Lantern-Tales/server/internal/models"
	"Lantern-Tales/server/internal/persistence"
	"Lantern-Tales/server/internal/progress"
)

const dispatchTimeout = 10 * time.Second

// SignalRequest carries one inbound signal.
type SignalRequest struct {
	Signal events.Signal `json:"signal"`
	ID     int           `json:"id"`
}

// SignalResponse lists everything the engine published while handling the signal.
// An empty list means the signal was dropped.
type SignalResponse struct {
	Success bool              `json:"success"`
	Signal  events.Signal     `json:"signal,omitempty"`
	ID      int               `json:"id"`
	Emitted []events.Emission `json:"emitted"`
	Error   string            `json:"error,omitempty"`
}

// ProgressResponse is the persisted record plus save status.
type ProgressResponse struct {
	persistence.Record
	Slot  string `json:"slot,omitempty"`
	Dirty bool   `json:"dirty"`
}

// LevelResponse describes one level as the hub shows it.
type LevelResponse struct {
	Level             int  `json:"level"`
	Unlocked          bool `json:"unlocked"`
	Completed         bool `json:"completed"`
	FullyCompleted    bool `json:"fully_completed"`
	PreStoryUnlocked  bool `json:"pre_story_unlocked"`
	PreStoryCompleted bool `json:"pre_story_completed"`
	PostStoryUnlocked bool `json:"post_story_unlocked"`
	PostStoryDone     bool `json:"post_story_completed"`
	CinematicWatched  bool `json:"cinematic_watched"`
}

// PostSignal publishes an inbound signal on the dispatch goroutine and
// reports the outbound signals it caused.
func (h *Handlers) PostSignal(w http.ResponseWriter, r *http.Request) {
	var req SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, SignalResponse{Error: "Invalid request body"})
		return
	}
	if !events.IsInbound(req.Signal) {
		writeJSON(w, http.StatusBadRequest, SignalResponse{Signal: req.Signal, ID: req.ID, Error: "unknown inbound signal"})
		return
	}
	h.publish(w, r, req.Signal, req.ID)
}

// SelectLevel is the hub's level button.
func (h *Handlers) SelectLevel(w http.ResponseWriter, r *http.Request) {
	n, ok := levelParam(w, r)
	if !ok {
		return
	}
	h.publish(w, r, events.LevelSelected, n)
}

func (h *Handlers) publish(w http.ResponseWriter, r *http.Request, signal events.Signal, id int) {
	var emitted []events.Emission
	err := h.do(r.Context(), func() {
		rec := events.Record(h.bus, emittedBy(signal)...)
		defer rec.Stop()
		h.bus.Publish(signal, id)
		emitted = rec.Emissions()
	})
	if err != nil {
		writeJSON(w, dispatchStatus(err), SignalResponse{Signal: signal, ID: id, Error: err.Error()})
		return
	}
	if emitted == nil {
		emitted = []events.Emission{}
	}
	writeJSON(w, http.StatusOK, SignalResponse{Success: true, Signal: signal, ID: id, Emitted: emitted})
}

// emittedBy lists the outbound signals to report for an inbound one. The
// posted signal is left out: no transition raises its own inbound signal.
func emittedBy(signal events.Signal) []events.Signal {
	var out []events.Signal
	for _, s := range events.Outbound() {
		if s != signal {
			out = append(out, s)
		}
	}
	return out
}

func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	var snap *models.ProgressState
	if err := h.do(r.Context(), func() { snap = h.engine.Progress().Snapshot() }); err != nil {
		writeError(w, dispatchStatus(err), err.Error())
		return
	}

	resp := ProgressResponse{Record: persistence.ToRecord(snap)}
	if h.persister != nil {
		resp.Slot = h.persister.Slot()
		resp.Dirty = h.persister.Dirty()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) GetLevel(w http.ResponseWriter, r *http.Request) {
	n, ok := levelParam(w, r)
	if !ok {
		return
	}
	if n > h.engine.TotalLevels() {
		writeError(w, http.StatusNotFound, "level not found")
		return
	}

	var resp LevelResponse
	err := h.do(r.Context(), func() {
		resp = levelStatus(h.engine.Progress(), n)
	})
	if err != nil {
		writeError(w, dispatchStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func levelStatus(p progress.Reader, n int) LevelResponse {
	pre, post := content.PreStoryID(n), content.PostStoryID(n)
	return LevelResponse{
		Level:             n,
		Unlocked:          p.IsLevelUnlocked(n),
		Completed:         p.IsLevelCompleted(n),
		FullyCompleted:    p.IsLevelFullyCompleted(n),
		PreStoryUnlocked:  p.IsStoryUnlocked(pre),
		PreStoryCompleted: p.IsStoryCompleted(pre),
		PostStoryUnlocked: p.IsStoryUnlocked(post),
		PostStoryDone:     p.IsStoryCompleted(post),
		CinematicWatched:  p.IsCinematicCompleted(content.CinematicID(n)),
	}
}

func (h *Handlers) GetStorybook(w http.ResponseWriter, r *http.Request) {
	var book progress.Storybook
	if err := h.do(r.Context(), func() { book = h.engine.Storybook() }); err != nil {
		writeError(w, dispatchStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *Handlers) GetScene(w http.ResponseWriter, r *http.Request) {
	t, ok := h.director.Current()
	if !ok {
		writeError(w, http.StatusNotFound, "no scene transition yet")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) do(ctx context.Context, fn func()) error {
	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := h.dispatcher.Do(ctx, fn); err != nil {
		h.logger.Warn("dispatch failed", zap.Error(err))
		return err
	}
	return nil
}

func dispatchStatus(err error) int {
	switch {
	case errors.Is(err, events.ErrQueueFull), errors.Is(err, events.ErrDispatcherStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func levelParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "level_id"))
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "level_id must be a positive integer")
		return 0, false
	}
	return n, true
}
