// Package scenes maps content identifiers to presentation scenes and fans
// scene transitions out to whoever renders them.
package scenes

import (
	"fmt"

	"Lantern-Tales/server/internal/config"
	"Lantern-Tales/server/internal/content"
)

// Catalog names the scene that shows each kind of content.
type Catalog struct {
	Start     string
	Hub       string
	Dialog    string
	Cinematic string
	Loading   string
	Levels    map[int]string
}

func NewCatalog(cfg config.ScenesConfig) *Catalog {
	levels := make(map[int]string, len(cfg.Levels))
	for n, name := range cfg.Levels {
		levels[n] = name
	}
	return &Catalog{
		Start:     cfg.Start,
		Hub:       cfg.Hub,
		Dialog:    cfg.Dialog,
		Cinematic: cfg.Cinematic,
		Loading:   cfg.Loading,
		Levels:    levels,
	}
}

// SceneFor returns the scene that presents id. Every story shares the dialog
// scene and every cinematic shares the cinematic player.
func (c *Catalog) SceneFor(id int) (string, error) {
	if !content.Valid(id) {
		return "", fmt.Errorf("no scene for invalid id %d", id)
	}
	cat, n := content.OwnerOf(id)
	switch cat {
	case content.Level:
		if name, ok := c.Levels[n]; ok && name != "" {
			return name, nil
		}
		return "", fmt.Errorf("no scene configured for level %d", n)
	case content.PreStory, content.PostStory, content.MapStory:
		return c.Dialog, nil
	default:
		return c.Cinematic, nil
	}
}
