package progress

import "Lantern-Tales/server/internal/content"

// StorybookEntry is one page of the gallery.
type StorybookEntry struct {
	Level            int  `json:"level"`
	Unlocked         bool `json:"unlocked"`
	Completed        bool `json:"completed"`
	PreStorySeen     bool `json:"pre_story_seen"`
	PostStorySeen    bool `json:"post_story_seen"`
	CinematicWatched bool `json:"cinematic_watched"`
	FullyCompleted   bool `json:"fully_completed"`
}

// Storybook summarizes what the player has unlocked and watched so far.
type Storybook struct {
	Entries            []StorybookEntry `json:"entries"`
	CinematicsWatched  int              `json:"cinematics_watched"`
	ChaptersWatched    int              `json:"chapters_watched"`
	LevelsFullyCleared int              `json:"levels_fully_cleared"`
}

// BuildStorybook pages through levels 1..totalLevels and chapters 1..totalChapters.
func BuildStorybook(r Reader, totalLevels, totalChapters int) Storybook {
	book := Storybook{Entries: make([]StorybookEntry, 0, totalLevels)}
	for n := 1; n <= totalLevels; n++ {
		entry := StorybookEntry{
			Level:            n,
			Unlocked:         r.IsLevelUnlocked(n),
			Completed:        r.IsLevelCompleted(n),
			PreStorySeen:     r.IsStoryCompleted(content.PreStoryID(n)),
			PostStorySeen:    r.IsStoryCompleted(content.PostStoryID(n)),
			CinematicWatched: r.IsCinematicCompleted(content.CinematicID(n)),
			FullyCompleted:   r.IsLevelFullyCompleted(n),
		}
		if entry.CinematicWatched {
			book.CinematicsWatched++
		}
		if entry.FullyCompleted {
			book.LevelsFullyCleared++
		}
		book.Entries = append(book.Entries, entry)
	}
	for c := 1; c <= totalChapters; c++ {
		if r.IsCinematicCompleted(content.ChapterCinematicID(c)) {
			book.ChaptersWatched++
		}
	}
	return book
}
