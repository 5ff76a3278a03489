package events

// Signal names a channel on the bus. Every payload is a content identifier.
type Signal string

// Inbound signals, raised by minigames, dialog screens, cinematic players and the hub.
const (
	LevelEnter        Signal = "LevelEnter"
	LevelComplete     Signal = "LevelComplete"
	StoryEnter        Signal = "StoryEnter"
	StoryComplete     Signal = "StoryComplete"
	CinematicEnter    Signal = "CinematicEnter"
	CinematicComplete Signal = "CinematicComplete"
	ChapterComplete   Signal = "ChapterComplete"
	LevelSelected     Signal = "LevelSelected"
)

// Outbound signals, raised by the progression engine for the presentation layer.
const (
	LevelUnlocked Signal = "LevelUnlocked"
	StoryUnlocked Signal = "StoryUnlocked"
	LoadContent   Signal = "LoadContent"
	ReturnToHub   Signal = "ReturnToHub"
)

var inbound = map[Signal]struct{}{
	LevelEnter:        {},
	LevelComplete:     {},
	StoryEnter:        {},
	StoryComplete:     {},
	CinematicEnter:    {},
	CinematicComplete: {},
	ChapterComplete:   {},
	LevelSelected:     {},
}

// IsInbound reports whether collaborators are allowed to raise the signal.
func IsInbound(s Signal) bool {
	_, ok := inbound[s]
	return ok
}

// Outbound lists every signal the engine may raise, in a stable order.
func Outbound() []Signal {
	return []Signal{LevelUnlocked, StoryUnlocked, LevelEnter, StoryEnter, CinematicEnter, LoadContent, ReturnToHub}
}
