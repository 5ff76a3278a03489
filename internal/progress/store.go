// Package progress owns the authoritative in-memory progression state.
//
// The Store is not safe for concurrent use. Every call happens on the
// dispatcher goroutine; readers on other goroutines go through
// events.Dispatcher.Do.
package progress

import (
	"Lantern-Tales/server/internal/content"
	"Lantern-Tales/server/internal/models"
)

// Store wraps a ProgressState with idempotent mutations and a read-only query surface.
type Store struct {
	state *models.ProgressState
}

// NewStore takes ownership of state. A nil state starts a fresh game.
func NewStore(state *models.ProgressState) *Store {
	if state == nil {
		state = models.NewProgressState()
	}
	state.Normalize()
	return &Store{state: state}
}

// Snapshot returns a deep copy safe to hand to other goroutines.
func (s *Store) Snapshot() *models.ProgressState {
	return s.state.Clone()
}

// Replace swaps in a new state, e.g. after a slot reload.
func (s *Store) Replace(state *models.ProgressState) {
	if state == nil {
		state = models.NewProgressState()
	}
	state.Normalize()
	s.state = state
}

// Mutations. Each reports whether the state changed.

func (s *Store) UnlockLevel(n int) bool {
	return s.state.UnlockedLevels.Add(n)
}

// CompleteLevel marks n completed, unlocking it first if it somehow wasn't.
func (s *Store) CompleteLevel(n int) bool {
	unlocked := s.state.UnlockedLevels.Add(n)
	return s.state.CompletedLevels.Add(n) || unlocked
}

func (s *Store) UnlockStory(id int) bool {
	return s.state.UnlockedStories.Add(id)
}

func (s *Store) CompleteStory(id int) bool {
	unlocked := s.state.UnlockedStories.Add(id)
	return s.state.CompletedStories.Add(id) || unlocked
}

func (s *Store) CompleteCinematic(id int) bool {
	return s.state.CompletedCinematics.Add(id)
}

// SetCurrentLevel points the player at level n and clears the other two slots.
func (s *Store) SetCurrentLevel(n int) bool {
	return s.setCurrent(n, 0, 0)
}

// SetCurrentStory points the player at story id and clears the other two slots.
func (s *Store) SetCurrentStory(id int) bool {
	return s.setCurrent(0, id, 0)
}

// SetCurrentCinematic points the player at cinematic id and clears the other two slots.
func (s *Store) SetCurrentCinematic(id int) bool {
	return s.setCurrent(0, 0, id)
}

// ClearCurrent puts the player back at the hub.
func (s *Store) ClearCurrent() bool {
	return s.setCurrent(0, 0, 0)
}

func (s *Store) setCurrent(level, story, cinematic int) bool {
	st := s.state
	if st.CurrentLevel == level && st.CurrentStory == story && st.CurrentCinematic == cinematic {
		return false
	}
	st.CurrentLevel, st.CurrentStory, st.CurrentCinematic = level, story, cinematic
	return true
}

// AdvanceChapter increments the chapter counter and returns the new value.
func (s *Store) AdvanceChapter() int {
	s.state.CurrentChapter++
	return s.state.CurrentChapter
}

// Queries.

func (s *Store) IsLevelUnlocked(n int) bool       { return s.state.UnlockedLevels.Has(n) }
func (s *Store) IsLevelCompleted(n int) bool      { return s.state.CompletedLevels.Has(n) }
func (s *Store) IsStoryUnlocked(id int) bool      { return s.state.UnlockedStories.Has(id) }
func (s *Store) IsStoryCompleted(id int) bool     { return s.state.CompletedStories.Has(id) }
func (s *Store) IsCinematicCompleted(id int) bool { return s.state.CompletedCinematics.Has(id) }

func (s *Store) CurrentLevel() int     { return s.state.CurrentLevel }
func (s *Store) CurrentStory() int     { return s.state.CurrentStory }
func (s *Store) CurrentCinematic() int { return s.state.CurrentCinematic }
func (s *Store) CurrentChapter() int   { return s.state.CurrentChapter }

// IsLevelFullyCompleted reports whether level n and its post-story are both done.
func (s *Store) IsLevelFullyCompleted(n int) bool {
	return s.IsLevelCompleted(n) && s.IsStoryCompleted(content.PostStoryID(n))
}

// AtHub reports whether no content slot is active.
func (s *Store) AtHub() bool {
	st := s.state
	return st.CurrentLevel == 0 && st.CurrentStory == 0 && st.CurrentCinematic == 0
}

// Reader is the read-only query surface handed to collaborators.
type Reader interface {
	IsLevelUnlocked(n int) bool
	IsLevelCompleted(n int) bool
	IsStoryUnlocked(id int) bool
	IsStoryCompleted(id int) bool
	IsCinematicCompleted(id int) bool
	IsLevelFullyCompleted(n int) bool
	CurrentLevel() int
	CurrentStory() int
	CurrentCinematic() int
	CurrentChapter() int
	Snapshot() *models.ProgressState
}

var _ Reader = (*Store)(nil)
