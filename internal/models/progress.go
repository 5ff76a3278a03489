package models

import (
	"sort"

	"Lantern-Tales/server/internal/content"
)

// IntSet is a set of content identifiers.
type IntSet map[int]struct{}

// NewIntSet builds a set from the given members.
func NewIntSet(members ...int) IntSet {
	s := make(IntSet, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// Add inserts id and reports whether it was absent before.
func (s IntSet) Add(id int) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Has reports membership.
func (s IntSet) Has(id int) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order. Never nil.
func (s IntSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Clone returns an independent copy.
func (s IntSet) Clone() IntSet {
	out := make(IntSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Equal reports set equality.
func (s IntSet) Equal(other IntSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// ProgressState is the persisted progression aggregate for one save slot.
type ProgressState struct {
	UnlockedLevels      IntSet
	CompletedLevels     IntSet
	UnlockedStories     IntSet
	CompletedStories    IntSet
	CompletedCinematics IntSet

	CurrentLevel     int
	CurrentStory     int
	CurrentCinematic int
	CurrentChapter   int
}

// First content a new player can reach.
const (
	FirstLevel    = 1
	FirstPreStory = 1001
	FirstChapter  = 1
)

// NewProgressState returns the state of a brand new save: level 1 and its
// pre-story unlocked, nothing completed, pointing at level 1 in chapter 1.
func NewProgressState() *ProgressState {
	return &ProgressState{
		UnlockedLevels:      NewIntSet(FirstLevel),
		CompletedLevels:     NewIntSet(),
		UnlockedStories:     NewIntSet(FirstPreStory),
		CompletedStories:    NewIntSet(),
		CompletedCinematics: NewIntSet(),
		CurrentLevel:        FirstLevel,
		CurrentChapter:      FirstChapter,
	}
}

// Clone returns a deep copy.
func (p *ProgressState) Clone() *ProgressState {
	c := *p
	c.UnlockedLevels = p.UnlockedLevels.Clone()
	c.CompletedLevels = p.CompletedLevels.Clone()
	c.UnlockedStories = p.UnlockedStories.Clone()
	c.CompletedStories = p.CompletedStories.Clone()
	c.CompletedCinematics = p.CompletedCinematics.Clone()
	return &c
}

// Equal compares pointers and sets; list order never matters.
func (p *ProgressState) Equal(other *ProgressState) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.CurrentLevel == other.CurrentLevel &&
		p.CurrentStory == other.CurrentStory &&
		p.CurrentCinematic == other.CurrentCinematic &&
		p.CurrentChapter == other.CurrentChapter &&
		p.UnlockedLevels.Equal(other.UnlockedLevels) &&
		p.CompletedLevels.Equal(other.CompletedLevels) &&
		p.UnlockedStories.Equal(other.UnlockedStories) &&
		p.CompletedStories.Equal(other.CompletedStories) &&
		p.CompletedCinematics.Equal(other.CompletedCinematics)
}

// Normalize repairs a loaded state so the structural invariants hold:
// nil sets become empty, level 1 and its pre-story are unlocked, every
// completed level or story is also unlocked, the chapter counter starts at 1,
// post-stories of levels that are not completed are dropped, and at most one
// current pointer is set (cinematic, then story, then level wins).
// It returns true when anything had to change.
func (p *ProgressState) Normalize() bool {
	changed := false
	for _, set := range []*IntSet{&p.UnlockedLevels, &p.CompletedLevels, &p.UnlockedStories, &p.CompletedStories, &p.CompletedCinematics} {
		if *set == nil {
			*set = NewIntSet()
			changed = true
		}
	}

	if p.UnlockedLevels.Add(FirstLevel) {
		changed = true
	}
	if p.UnlockedStories.Add(FirstPreStory) {
		changed = true
	}
	for _, set := range []IntSet{p.UnlockedStories, p.CompletedStories} {
		for id := range set {
			if cat, n := content.OwnerOf(id); cat == content.PostStory && !p.CompletedLevels.Has(n) {
				delete(set, id)
				changed = true
			}
		}
	}
	if cat, n := content.OwnerOf(p.CurrentStory); cat == content.PostStory && !p.CompletedLevels.Has(n) {
		p.CurrentStory = 0
		changed = true
	}

	for id := range p.CompletedLevels {
		if p.UnlockedLevels.Add(id) {
			changed = true
		}
	}
	for id := range p.CompletedStories {
		if p.UnlockedStories.Add(id) {
			changed = true
		}
	}

	if p.CurrentChapter < FirstChapter {
		p.CurrentChapter = FirstChapter
		changed = true
	}

	switch {
	case p.CurrentCinematic != 0 && (p.CurrentStory != 0 || p.CurrentLevel != 0):
		p.CurrentStory, p.CurrentLevel = 0, 0
		changed = true
	case p.CurrentStory != 0 && p.CurrentLevel != 0:
		p.CurrentLevel = 0
		changed = true
	}
	return changed
}
