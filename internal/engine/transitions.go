package engine

import (
	"fmt"

	"Lantern-Tales/server/internal/content"
	"Lantern-Tales/server/internal/events"
	"Lantern-Tales/server/internal/metrics"
)

// unlocks collects what a transition unlocked so it can be announced after
// the state is persisted.
type unlocks struct {
	levels  []int
	stories []int
}

func (u *unlocks) announce(e *ProgressionEngine) {
	for _, n := range u.levels {
		e.publish(events.LevelUnlocked, n)
	}
	for _, id := range u.stories {
		e.publish(events.StoryUnlocked, id)
	}
}

func (e *ProgressionEngine) onLevelComplete(n int) error {
	if err := e.checkLevel(n); err != nil {
		return err
	}
	if current := e.store.CurrentLevel(); n != current {
		return fmt.Errorf("%w: level %d completed while current level is %d", ErrStaleSignal, n, current)
	}

	var u unlocks
	post := content.PostStoryID(n)
	if e.store.CompleteLevel(n) {
		if next := n + 1; next <= e.cfg.TotalLevels {
			if e.store.UnlockLevel(next) {
				u.levels = append(u.levels, next)
			}
			if e.store.UnlockStory(content.PreStoryID(next)) {
				u.stories = append(u.stories, content.PreStoryID(next))
			}
		}
		if e.store.UnlockStory(post) {
			u.stories = append(u.stories, post)
		}
	}
	e.store.ClearCurrent()
	e.persist()
	u.announce(e)

	if e.store.IsStoryUnlocked(post) && !e.store.IsStoryCompleted(post) {
		e.publish(events.StoryEnter, post)
		return nil
	}
	e.returnToHub()
	return nil
}

func (e *ProgressionEngine) onStoryComplete(id int) error {
	if err := e.checkStory(id); err != nil {
		return err
	}
	if current := e.store.CurrentStory(); id != current {
		return fmt.Errorf("%w: story %d completed while current story is %d", ErrStaleSignal, id, current)
	}

	// Cleared before anything is published so a re-entrant StoryComplete(id) is stale.
	e.store.ClearCurrent()
	e.store.CompleteStory(id)
	e.persist()

	cat, n := content.OwnerOf(id)
	switch {
	case cat == content.PostStory && !e.store.IsCinematicCompleted(content.CinematicID(n)):
		e.publish(events.CinematicEnter, content.CinematicID(n))
	case cat == content.PreStory && !e.store.IsLevelCompleted(n):
		e.publish(events.LevelEnter, n)
	default:
		e.returnToHub()
	}
	return nil
}

func (e *ProgressionEngine) onCinematicComplete(id int) error {
	if err := e.checkCinematic(id); err != nil {
		return err
	}
	if current := e.store.CurrentCinematic(); id != current {
		return fmt.Errorf("%w: cinematic %d completed while current cinematic is %d", ErrStaleSignal, id, current)
	}

	e.store.ClearCurrent()
	e.store.CompleteCinematic(id)

	if cat, _ := content.OwnerOf(id); cat == content.Cinematic && e.isChapterEnding(id) {
		chapter := e.store.CurrentChapter()
		if chapter <= e.cfg.TotalChapters && !e.store.IsCinematicCompleted(content.ChapterCinematicID(chapter)) {
			e.enterChapterCinematic(chapter)
			return nil
		}
	}
	e.persist()
	e.returnToHub()
	return nil
}

// isChapterEnding reports whether a per-level cinematic closes the current chapter.
func (e *ProgressionEngine) isChapterEnding(id int) bool {
	_, ok := e.chapterEndings[id]
	return ok
}

func (e *ProgressionEngine) onChapterComplete(k int) error {
	if err := e.checkChapter(k); err != nil {
		return err
	}
	if current := e.store.CurrentChapter(); k != current {
		return fmt.Errorf("%w: chapter %d completed while current chapter is %d", ErrStaleSignal, k, current)
	}
	e.enterChapterCinematic(k)
	return nil
}

// enterChapterCinematic points the player at the closing cinematic of chapter
// k and moves the chapter counter on.
func (e *ProgressionEngine) enterChapterCinematic(k int) {
	id := content.ChapterCinematicID(k)
	e.store.SetCurrentCinematic(id)
	e.store.AdvanceChapter()
	e.persist()
	e.publish(events.CinematicEnter, id)
}

func (e *ProgressionEngine) onLevelEnter(n int) error {
	if err := e.checkLevel(n); err != nil {
		return err
	}

	var u unlocks
	changed := e.store.SetCurrentLevel(n)
	if e.store.UnlockLevel(n) {
		u.levels = append(u.levels, n)
		changed = true
	}
	e.enter(changed, u, n)
	return nil
}

func (e *ProgressionEngine) onStoryEnter(id int) error {
	if err := e.checkStory(id); err != nil {
		return err
	}
	if cat, n := content.OwnerOf(id); cat == content.PostStory && !e.store.IsLevelCompleted(n) {
		return fmt.Errorf("%w: post-story %d entered before level %d is completed", ErrInvariantViolation, id, n)
	}

	var u unlocks
	changed := e.store.SetCurrentStory(id)
	if e.store.UnlockStory(id) {
		u.stories = append(u.stories, id)
		changed = true
	}
	e.enter(changed, u, id)
	return nil
}

func (e *ProgressionEngine) onCinematicEnter(id int) error {
	if err := e.checkCinematic(id); err != nil {
		return err
	}
	e.enter(e.store.SetCurrentCinematic(id), unlocks{}, id)
	return nil
}

// enter finishes every Enter transition: persist if anything moved, announce
// unlocks, then ask the presentation layer to load the node.
func (e *ProgressionEngine) enter(changed bool, u unlocks, id int) {
	if changed {
		e.persist()
	}
	u.announce(e)

	cat, _ := content.OwnerOf(id)
	metrics.TransitionsTotal.WithLabelValues(cat.String()).Inc()
	e.publish(events.LoadContent, id)
}

func (e *ProgressionEngine) returnToHub() {
	metrics.TransitionsTotal.WithLabelValues("hub").Inc()
	e.publish(events.ReturnToHub, 0)
}

// onLevelSelected resolves a hub pick to the first thing the player has not
// seen yet: the pre-story, a pending post-story, or the level itself.
func (e *ProgressionEngine) onLevelSelected(n int) error {
	if err := e.checkLevel(n); err != nil {
		return err
	}
	if !e.store.IsLevelUnlocked(n) {
		return fmt.Errorf("%w: level %d selected while locked", ErrInvariantViolation, n)
	}

	pre, post := content.PreStoryID(n), content.PostStoryID(n)
	switch {
	case !e.store.IsStoryCompleted(pre):
		e.publish(events.StoryEnter, pre)
	case e.store.IsLevelCompleted(n) && e.store.IsStoryUnlocked(post) && !e.store.IsStoryCompleted(post):
		e.publish(events.StoryEnter, post)
	default:
		e.publish(events.LevelEnter, n)
	}
	return nil
}
