package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildStorybook(t *testing.T) {
	s := NewStore(nil)
	s.CompleteStory(1001)
	s.CompleteLevel(1)
	s.CompleteStory(2001)
	s.CompleteCinematic(10001)
	s.UnlockLevel(2)
	s.CompleteCinematic(20001)

	book := BuildStorybook(s, 3, 2)
	require.Len(t, book.Entries, 3)

	assert.Equal(t, StorybookEntry{
		Level:            1,
		Unlocked:         true,
		Completed:        true,
		PreStorySeen:     true,
		PostStorySeen:    true,
		CinematicWatched: true,
		FullyCompleted:   true,
	}, book.Entries[0])
	assert.Equal(t, StorybookEntry{Level: 2, Unlocked: true}, book.Entries[1])
	assert.Equal(t, StorybookEntry{Level: 3}, book.Entries[2])

	assert.Equal(t, 1, book.CinematicsWatched)
	assert.Equal(t, 1, book.ChaptersWatched)
	assert.Equal(t, 1, book.LevelsFullyCleared)
}
