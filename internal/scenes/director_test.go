package scenes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"Lantern-Tales/server/internal/config"
	"Lantern-Tales/server/internal/events"
)

type sliceSink struct {
	got []Transition
}

func (s *sliceSink) Send(t Transition) { s.got = append(s.got, t) }

func TestCatalogSceneFor(t *testing.T) {
	c := NewCatalog(config.Default().Scenes)

	cases := map[int]string{
		1:     "Level_1",
		3:     "Level_Boss",
		1002:  "DialogScene",
		2003:  "DialogScene",
		3001:  "DialogScene",
		10002: "CinematicScene",
		20001: "CinematicScene",
	}
	for id, want := range cases {
		got, err := c.SceneFor(id)
		require.NoError(t, err, "id %d", id)
		assert.Equal(t, want, got, "id %d", id)
	}

	_, err := c.SceneFor(4)
	assert.Error(t, err)
	_, err = c.SceneFor(1000)
	assert.Error(t, err)
}

func TestDirectorForwardsTransitions(t *testing.T) {
	bus := events.NewEventBus()
	d := NewDirector(bus, NewCatalog(config.Default().Scenes), zap.NewNop())
	sink := &sliceSink{}
	d.AddSink(sink)
	d.Start()
	defer d.Stop()

	_, ok := d.Current()
	assert.False(t, ok)

	bus.Publish(events.LoadContent, 2001)
	bus.Publish(events.LoadContent, 42) // no scene: dropped
	bus.Publish(events.ReturnToHub, 0)

	require.Len(t, sink.got, 2)
	assert.Equal(t, KindLoad, sink.got[0].Kind)
	assert.Equal(t, 2001, sink.got[0].ContentID)
	assert.Equal(t, "post_story", sink.got[0].Category)
	assert.Equal(t, "DialogScene", sink.got[0].Scene)
	assert.Equal(t, "LoadingScene", sink.got[0].Via)
	assert.Equal(t, uint64(1), sink.got[0].Seq)

	assert.Equal(t, KindHub, sink.got[1].Kind)
	assert.Equal(t, "LevelSelect", sink.got[1].Scene)
	assert.Equal(t, uint64(2), sink.got[1].Seq)

	current, ok := d.Current()
	require.True(t, ok)
	assert.Equal(t, sink.got[1], current)

	d.Stop()
	bus.Publish(events.ReturnToHub, 0)
	assert.Len(t, sink.got, 2)
}
