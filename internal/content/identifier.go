// Package content defines the identifier namespace shared by every piece of
// progression content: levels, dialog sequences, and cinematics.
//
// An identifier is category offset + base number. The base number is the
// owning level (or chapter) and is always recoverable with id mod 1000.
package content

import "fmt"

// Category classifies a content identifier by the range it falls in.
type Category int

const (
	Level Category = iota
	PreStory
	PostStory
	MapStory
	Cinematic
	ChapterCinematic
)

// Category offsets. Ranges never overlap.
const (
	LevelOffset            = 0
	PreStoryOffset         = 1000
	PostStoryOffset        = 2000
	MapStoryOffset         = 3000
	CinematicOffset        = 10000
	ChapterCinematicOffset = 20000

	baseModulus = 1000
)

var categoryNames = map[Category]string{
	Level:            "level",
	PreStory:         "pre_story",
	PostStory:        "post_story",
	MapStory:         "map_story",
	Cinematic:        "cinematic",
	ChapterCinematic: "chapter_cinematic",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Offset returns the identifier offset of the category.
func (c Category) Offset() int {
	switch c {
	case PreStory:
		return PreStoryOffset
	case PostStory:
		return PostStoryOffset
	case MapStory:
		return MapStoryOffset
	case Cinematic:
		return CinematicOffset
	case ChapterCinematic:
		return ChapterCinematicOffset
	default:
		return LevelOffset
	}
}

func PreStoryID(level int) int           { return PreStoryOffset + level }
func PostStoryID(level int) int          { return PostStoryOffset + level }
func MapStoryID(level int) int           { return MapStoryOffset + level }
func CinematicID(level int) int          { return CinematicOffset + level }
func ChapterCinematicID(chapter int) int { return ChapterCinematicOffset + chapter }

// OwnerOf splits an identifier into its category and base number by range.
// Anything below 1000 is a level. Ids between 4000 and 9999 have no category
// of their own; they fall back to MapStory so the function stays total, and
// callers validate the range with Valid.
func OwnerOf(id int) (Category, int) {
	switch {
	case id >= ChapterCinematicOffset:
		return ChapterCinematic, id % baseModulus
	case id >= CinematicOffset:
		return Cinematic, id % baseModulus
	case id >= MapStoryOffset:
		return MapStory, id % baseModulus
	case id >= PostStoryOffset:
		return PostStory, id % baseModulus
	case id >= PreStoryOffset:
		return PreStory, id % baseModulus
	default:
		return Level, id
	}
}

// Valid reports whether id sits inside one of the category ranges with a
// non-zero base number.
func Valid(id int) bool {
	if id <= 0 {
		return false
	}
	cat, base := OwnerOf(id)
	if base == 0 {
		return false
	}
	return id-cat.Offset() < baseModulus
}

// IsStory reports whether id is a pre-, post-, or map story.
func IsStory(id int) bool {
	cat, _ := OwnerOf(id)
	return cat == PreStory || cat == PostStory || cat == MapStory
}

// IsCinematic reports whether id is a per-level or chapter cinematic.
func IsCinematic(id int) bool {
	cat, _ := OwnerOf(id)
	return cat == Cinematic || cat == ChapterCinematic
}
