// Package persistence turns the progress aggregate into a durable save record
// and writes it through to a save-slot backend after every mutation.
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	"Lantern-Tales/server/internal/models"
)

var (
	ErrEmptyRecord     = errors.New("empty save record")
	ErrCorruptRecord   = errors.New("corrupt save record")
	ErrVersionMismatch = errors.New("save record version mismatch")
)

// Record is the on-disk shape of a save slot: four pointers followed by five
// flat integer lists. A set member is present iff it is listed.
type Record struct {
	Version int `json:"version"`

	CurrentLevel     int `json:"current_level"`
	CurrentStory     int `json:"current_story"`
	CurrentCinematic int `json:"current_cinematic"`
	CurrentChapter   int `json:"current_chapter"`

	UnlockedLevels      []int `json:"unlocked_levels"`
	CompletedLevels     []int `json:"completed_levels"`
	UnlockedStories     []int `json:"unlocked_stories"`
	CompletedStories    []int `json:"completed_stories"`
	CompletedCinematics []int `json:"completed_cinematics"`
}

// ToRecord flattens every set into its sorted member list.
func ToRecord(state *models.ProgressState) Record {
	return Record{
		Version:             models.SaveVersion,
		CurrentLevel:        state.CurrentLevel,
		CurrentStory:        state.CurrentStory,
		CurrentCinematic:    state.CurrentCinematic,
		CurrentChapter:      state.CurrentChapter,
		UnlockedLevels:      state.UnlockedLevels.Sorted(),
		CompletedLevels:     state.CompletedLevels.Sorted(),
		UnlockedStories:     state.UnlockedStories.Sorted(),
		CompletedStories:    state.CompletedStories.Sorted(),
		CompletedCinematics: state.CompletedCinematics.Sorted(),
	}
}

// State rebuilds the sets; duplicates in a list collapse.
func (r Record) State() *models.ProgressState {
	return &models.ProgressState{
		UnlockedLevels:      models.NewIntSet(r.UnlockedLevels...),
		CompletedLevels:     models.NewIntSet(r.CompletedLevels...),
		UnlockedStories:     models.NewIntSet(r.UnlockedStories...),
		CompletedStories:    models.NewIntSet(r.CompletedStories...),
		CompletedCinematics: models.NewIntSet(r.CompletedCinematics...),
		CurrentLevel:        r.CurrentLevel,
		CurrentStory:        r.CurrentStory,
		CurrentCinematic:    r.CurrentCinematic,
		CurrentChapter:      r.CurrentChapter,
	}
}

// Encode serializes state as a JSON Record.
func Encode(state *models.ProgressState) ([]byte, error) {
	if state == nil {
		return nil, errors.New("nil progress state")
	}
	data, err := json.Marshal(ToRecord(state))
	if err != nil {
		return nil, fmt.Errorf("failed to encode progress: %w", err)
	}
	return data, nil
}

// Decode parses a save record. Whenever the record cannot be used it returns
// a fresh default state together with the reason, never a nil state.
func Decode(data []byte) (*models.ProgressState, error) {
	if len(data) == 0 {
		return models.NewProgressState(), ErrEmptyRecord
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.NewProgressState(), fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if rec.Version != models.SaveVersion {
		return models.NewProgressState(), fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, rec.Version, models.SaveVersion)
	}

	state := rec.State()
	state.Normalize()
	return state, nil
}
