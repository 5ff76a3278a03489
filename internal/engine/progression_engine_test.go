package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"Lantern-Tales/server/internal/events"
	"Lantern-Tales/server/internal/models"
	"Lantern-Tales/server/internal/persistence"
	"Lantern-Tales/server/internal/progress"
)

type memorySaver struct {
	saves []*models.ProgressState
	err   error
}

func (s *memorySaver) Save(ctx context.Context, state *models.ProgressState) error {
	if s.err != nil {
		return s.err
	}
	s.saves = append(s.saves, state.Clone())
	return nil
}

func (s *memorySaver) last() *models.ProgressState {
	if len(s.saves) == 0 {
		return nil
	}
	return s.saves[len(s.saves)-1]
}

type fixture struct {
	bus    *events.EventBus
	store  *progress.Store
	saver  *memorySaver
	engine *ProgressionEngine
	nav    *events.Recorder
	all    *events.Recorder
	logs   *observer.ObservedLogs
}

func testConfig() Config {
	return Config{
		TotalLevels:    5,
		TotalChapters:  2,
		ChapterEndings: []int{10001},
		Development:    true,
	}
}

func newFixture(t *testing.T, state *models.ProgressState, cfg Config) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	bus := events.NewEventBus()
	store := progress.NewStore(state)
	saver := &memorySaver{}
	e := NewProgressionEngine(bus, store, saver, cfg, zap.New(core))
	e.Start()
	t.Cleanup(e.Stop)

	return &fixture{
		bus:    bus,
		store:  store,
		saver:  saver,
		engine: e,
		nav:    events.Record(bus, events.LevelEnter, events.StoryEnter, events.CinematicEnter, events.ReturnToHub),
		all:    events.Record(bus, events.Outbound()...),
		logs:   logs,
	}
}

func (f *fixture) firstNav(t *testing.T) events.Emission {
	t.Helper()
	got := f.nav.Emissions()
	require.NotEmpty(t, got, "no navigation signal published")
	return got[0]
}

func assertExclusive(t *testing.T, r progress.Reader) {
	t.Helper()
	active := 0
	for _, v := range []int{r.CurrentLevel(), r.CurrentStory(), r.CurrentCinematic()} {
		if v != 0 {
			active++
		}
	}
	assert.LessOrEqual(t, active, 1, "more than one current pointer set")
}

func TestScenarioA_FirstLevelComplete(t *testing.T) {
	f := newFixture(t, nil, testConfig())

	f.bus.Publish(events.LevelComplete, 1)

	r := f.engine.Progress()
	assert.True(t, r.IsLevelCompleted(1))
	assert.True(t, r.IsLevelUnlocked(2))
	assert.True(t, r.IsStoryUnlocked(1002))
	assert.True(t, r.IsStoryUnlocked(2001))
	assert.Equal(t, events.Emission{Signal: events.StoryEnter, Payload: 2001}, f.firstNav(t))

	assert.Equal(t, []int{2}, f.all.Of(events.LevelUnlocked))
	assert.Equal(t, []int{1002, 2001}, f.all.Of(events.StoryUnlocked))
	assert.Equal(t, []int{2001}, f.all.Of(events.LoadContent))

	assert.Zero(t, r.CurrentLevel())
	assert.Equal(t, 2001, r.CurrentStory())
	assert.True(t, f.saver.last().Equal(f.store.Snapshot()))
}

func TestScenarioB_PostStoryLeadsToCinematic(t *testing.T) {
	st := models.NewProgressState()
	st.CompletedLevels.Add(1)
	st.UnlockedStories.Add(2001)
	st.CurrentLevel, st.CurrentStory = 0, 2001
	f := newFixture(t, st, testConfig())

	f.bus.Publish(events.StoryComplete, 2001)

	assert.Equal(t, events.Emission{Signal: events.CinematicEnter, Payload: 10001}, f.firstNav(t))
	assert.True(t, f.store.IsStoryCompleted(2001))
	assert.Equal(t, 10001, f.store.CurrentCinematic())
	assert.Zero(t, f.store.CurrentStory())
}

func TestScenarioC_ChapterEndingCinematic(t *testing.T) {
	st := models.NewProgressState()
	st.CurrentLevel, st.CurrentCinematic = 0, 10001
	f := newFixture(t, st, testConfig())

	f.bus.Publish(events.CinematicComplete, 10001)

	assert.Equal(t, events.Emission{Signal: events.CinematicEnter, Payload: 20001}, f.firstNav(t))
	assert.True(t, f.store.IsCinematicCompleted(10001))
	assert.Equal(t, 20001, f.store.CurrentCinematic())
	assert.Equal(t, 2, f.store.CurrentChapter())
	assert.Equal(t, []int{20001}, f.all.Of(events.LoadContent))
}

func TestScenarioD_ChapterCinematicReturnsToHub(t *testing.T) {
	st := models.NewProgressState()
	st.CurrentLevel, st.CurrentCinematic, st.CurrentChapter = 0, 20001, 2
	f := newFixture(t, st, testConfig())

	f.bus.Publish(events.CinematicComplete, 20001)

	assert.Equal(t, events.Emission{Signal: events.ReturnToHub, Payload: 0}, f.firstNav(t))
	assert.Len(t, f.nav.Emissions(), 1)
	assert.True(t, f.store.IsCinematicCompleted(20001))
	assert.Zero(t, f.store.CurrentCinematic())
	assert.Equal(t, 2, f.store.CurrentChapter())
}

func TestChapterEndingAlreadyWatchedReturnsToHub(t *testing.T) {
	st := models.NewProgressState()
	st.CompletedCinematics.Add(20001)
	st.CurrentLevel, st.CurrentCinematic = 0, 10001
	f := newFixture(t, st, testConfig())

	f.bus.Publish(events.CinematicComplete, 10001)

	assert.Equal(t, events.ReturnToHub, f.firstNav(t).Signal)
	assert.Equal(t, 1, f.store.CurrentChapter())
}

func TestNonChapterCinematicReturnsToHub(t *testing.T) {
	st := models.NewProgressState()
	st.CurrentLevel, st.CurrentCinematic = 0, 10002
	f := newFixture(t, st, testConfig())

	f.bus.Publish(events.CinematicComplete, 10002)

	assert.Equal(t, events.ReturnToHub, f.firstNav(t).Signal)
	assert.True(t, f.store.IsCinematicCompleted(10002))
}

func TestOnlyLevelCinematicsEndChapters(t *testing.T) {
	cfg := testConfig()
	cfg.ChapterEndings = []int{10001, 20001}
	st := models.NewProgressState()
	st.CurrentLevel, st.CurrentCinematic, st.CurrentChapter = 0, 20001, 2
	f := newFixture(t, st, cfg)

	f.bus.Publish(events.CinematicComplete, 20001)

	assert.Equal(t, events.Emission{Signal: events.ReturnToHub, Payload: 0}, f.firstNav(t))
	assert.Zero(t, f.store.CurrentCinematic())
	assert.Equal(t, 2, f.store.CurrentChapter())
	assert.False(t, f.store.IsCinematicCompleted(20002))
}

func TestChapterComplete(t *testing.T) {
	st := models.NewProgressState()
	st.CurrentLevel = 0
	f := newFixture(t, st, testConfig())

	f.bus.Publish(events.ChapterComplete, 1)

	assert.Equal(t, events.Emission{Signal: events.CinematicEnter, Payload: 20001}, f.firstNav(t))
	assert.Equal(t, 20001, f.store.CurrentCinematic())
	assert.Equal(t, 2, f.store.CurrentChapter())

	// The chapter already moved on: a duplicate is stale.
	f.nav.Reset()
	f.bus.Publish(events.ChapterComplete, 1)
	assert.Empty(t, f.nav.Emissions())
	assert.Equal(t, 2, f.store.CurrentChapter())

	f.bus.Publish(events.ChapterComplete, 3)
	assert.Empty(t, f.nav.Emissions())
}

func TestPreStoryLeadsToLevel(t *testing.T) {
	st := models.NewProgressState()
	st.CurrentLevel, st.CurrentStory = 0, 1001
	f := newFixture(t, st, testConfig())

	f.bus.Publish(events.StoryComplete, 1001)

	assert.Equal(t, events.Emission{Signal: events.LevelEnter, Payload: 1}, f.firstNav(t))
	assert.Equal(t, 1, f.store.CurrentLevel())
	assert.True(t, f.store.IsStoryCompleted(1001))
}

func TestPreStoryOfCompletedLevelReturnsToHub(t *testing.T) {
	st := models.NewProgressState()
	st.CompletedLevels.Add(1)
	st.CurrentLevel, st.CurrentStory = 0, 1001
	f := newFixture(t, st, testConfig())

	f.bus.Publish(events.StoryComplete, 1001)

	assert.Equal(t, events.ReturnToHub, f.firstNav(t).Signal)
}

func TestMapStoryReturnsToHub(t *testing.T) {
	st := models.NewProgressState()
	st.CurrentLevel = 0
	f := newFixture(t, st, testConfig())

	f.bus.Publish(events.StoryEnter, 3002)
	require.Equal(t, 3002, f.store.CurrentStory())
	assert.True(t, f.store.IsStoryUnlocked(3002))

	f.nav.Reset()
	f.bus.Publish(events.StoryComplete, 3002)
	assert.Equal(t, events.ReturnToHub, f.firstNav(t).Signal)
	assert.True(t, f.store.IsStoryCompleted(3002))
}

func TestLevelCompleteWithWatchedPostStoryReturnsToHub(t *testing.T) {
	st := models.NewProgressState()
	st.CompletedLevels.Add(1)
	st.UnlockedLevels.Add(2)
	st.UnlockedStories.Add(1002)
	st.UnlockedStories.Add(2001)
	st.CompletedStories.Add(2001)
	f := newFixture(t, st, testConfig())

	f.bus.Publish(events.LevelComplete, 1)

	assert.Equal(t, events.ReturnToHub, f.firstNav(t).Signal)
	assert.Empty(t, f.all.Of(events.LevelUnlocked))
	assert.Empty(t, f.all.Of(events.StoryUnlocked))
	assert.Zero(t, f.store.CurrentLevel())
}

func TestLastLevelUnlocksNothingBeyond(t *testing.T) {
	cfg := testConfig()
	cfg.TotalLevels = 1
	f := newFixture(t, nil, cfg)

	f.bus.Publish(events.LevelComplete, 1)

	assert.False(t, f.store.IsLevelUnlocked(2))
	assert.False(t, f.store.IsStoryUnlocked(1002))
	assert.Equal(t, []int{2001}, f.all.Of(events.StoryUnlocked))
	assert.Equal(t, events.StoryEnter, f.firstNav(t).Signal)
}

func TestIdempotentLevelComplete(t *testing.T) {
	once := newFixture(t, nil, testConfig())
	once.bus.Publish(events.LevelComplete, 1)

	twice := newFixture(t, nil, testConfig())
	twice.bus.Publish(events.LevelComplete, 1)
	twice.bus.Publish(events.LevelComplete, 1)

	assert.True(t, once.store.Snapshot().Equal(twice.store.Snapshot()))
	assert.Len(t, twice.nav.Of(events.StoryEnter), 1)
}

func TestStaleRejection(t *testing.T) {
	st := models.NewProgressState()
	st.CompletedLevels.Add(1)
	st.UnlockedStories.Add(2001)
	st.CurrentLevel, st.CurrentStory = 0, 2001
	f := newFixture(t, st, testConfig())
	before := f.store.Snapshot()

	f.bus.Publish(events.StoryComplete, 2005)
	f.bus.Publish(events.LevelComplete, 2)
	f.bus.Publish(events.CinematicComplete, 10001)

	assert.True(t, before.Equal(f.store.Snapshot()))
	assert.Empty(t, f.all.Emissions())
	assert.Empty(t, f.saver.saves)
	assert.Equal(t, 3, f.logs.FilterMessage("stale signal dropped").Len())
}

func TestUnknownIdentifiersAreDropped(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	before := f.store.Snapshot()

	for _, tc := range []struct {
		signal events.Signal
		id     int
	}{
		{events.LevelComplete, 0},
		{events.LevelComplete, -4},
		{events.LevelComplete, 6},
		{events.LevelEnter, 999},
		{events.StoryComplete, 1000},
		{events.StoryEnter, 1006},
		{events.StoryEnter, 5001},
		{events.CinematicEnter, 10006},
		{events.CinematicEnter, 20003},
		{events.CinematicComplete, 99999},
		{events.ChapterComplete, 0},
	} {
		assert.NotPanics(t, func() { f.bus.Publish(tc.signal, tc.id) }, "%s(%d)", tc.signal, tc.id)
	}

	assert.True(t, before.Equal(f.store.Snapshot()))
	assert.Empty(t, f.all.Emissions())
	assert.Equal(t, 11, f.logs.FilterMessage("unknown identifier dropped").Len())
}

func TestInvariantViolations(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	before := f.store.Snapshot()

	f.bus.Publish(events.StoryEnter, 2001)  // level 1 not completed
	f.bus.Publish(events.LevelEnter, 1002)  // a story on the level channel
	f.bus.Publish(events.CinematicEnter, 2) // a level on the cinematic channel
	f.bus.Publish(events.LevelSelected, 3)  // locked

	assert.True(t, before.Equal(f.store.Snapshot()))
	assert.False(t, f.store.IsStoryUnlocked(2001))
	assert.Empty(t, f.all.Emissions())

	violations := f.logs.FilterMessage("invariant violation dropped")
	assert.Equal(t, 4, violations.Len())
	for _, entry := range violations.All() {
		assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	}
}

func TestInvariantViolationsAreQuietInRelease(t *testing.T) {
	cfg := testConfig()
	cfg.Development = false
	f := newFixture(t, nil, cfg)

	f.bus.Publish(events.StoryEnter, 2001)

	violations := f.logs.FilterMessage("invariant violation dropped")
	require.Equal(t, 1, violations.Len())
	assert.Equal(t, zapcore.DebugLevel, violations.All()[0].Level)
}

func TestEnterSetsExclusivePointerAndLoadsContent(t *testing.T) {
	f := newFixture(t, nil, testConfig())

	f.bus.Publish(events.StoryEnter, 1001)
	assert.Equal(t, 1001, f.store.CurrentStory())
	assert.Zero(t, f.store.CurrentLevel())

	f.bus.Publish(events.CinematicEnter, 10002)
	assert.Equal(t, 10002, f.store.CurrentCinematic())
	assert.Zero(t, f.store.CurrentStory())

	f.bus.Publish(events.LevelEnter, 3)
	assert.Equal(t, 3, f.store.CurrentLevel())
	assert.True(t, f.store.IsLevelUnlocked(3))
	assert.Equal(t, []int{3}, f.all.Of(events.LevelUnlocked))

	assert.Equal(t, []int{1001, 10002, 3}, f.all.Of(events.LoadContent))
	assert.Len(t, f.saver.saves, 3)
	assertExclusive(t, f.store)
}

func TestReenteringCurrentNodeDoesNotPersist(t *testing.T) {
	f := newFixture(t, nil, testConfig())

	f.bus.Publish(events.LevelEnter, 1)

	assert.Empty(t, f.saver.saves)
	assert.Equal(t, []int{1}, f.all.Of(events.LoadContent))
}

func TestLevelSelected(t *testing.T) {
	t.Run("unseen pre-story", func(t *testing.T) {
		f := newFixture(t, nil, testConfig())
		f.bus.Publish(events.LevelSelected, 1)
		assert.Equal(t, events.Emission{Signal: events.StoryEnter, Payload: 1001}, f.firstNav(t))
		assert.Equal(t, 1001, f.store.CurrentStory())
	})

	t.Run("pending post-story", func(t *testing.T) {
		st := models.NewProgressState()
		st.CompletedStories.Add(1001)
		st.CompletedLevels.Add(1)
		st.UnlockedStories.Add(2001)
		f := newFixture(t, st, testConfig())
		f.bus.Publish(events.LevelSelected, 1)
		assert.Equal(t, events.Emission{Signal: events.StoryEnter, Payload: 2001}, f.firstNav(t))
	})

	t.Run("replay level", func(t *testing.T) {
		st := models.NewProgressState()
		st.CompletedStories.Add(1001)
		st.CompletedStories.Add(2001)
		st.CompletedLevels.Add(1)
		st.UnlockedStories.Add(2001)
		st.CurrentLevel = 0
		f := newFixture(t, st, testConfig())
		f.bus.Publish(events.LevelSelected, 1)
		assert.Equal(t, events.Emission{Signal: events.LevelEnter, Payload: 1}, f.firstNav(t))
		assert.Equal(t, 1, f.store.CurrentLevel())
	})
}

func TestFullPlaythroughOfFirstLevel(t *testing.T) {
	st := models.NewProgressState()
	st.CurrentLevel = 0
	f := newFixture(t, st, testConfig())
	var unlockedLevels []int

	steps := []struct {
		signal events.Signal
		id     int
		next   events.Emission
	}{
		{events.LevelSelected, 1, events.Emission{Signal: events.StoryEnter, Payload: 1001}},
		{events.StoryComplete, 1001, events.Emission{Signal: events.LevelEnter, Payload: 1}},
		{events.LevelComplete, 1, events.Emission{Signal: events.StoryEnter, Payload: 2001}},
		{events.StoryComplete, 2001, events.Emission{Signal: events.CinematicEnter, Payload: 10001}},
		{events.CinematicComplete, 10001, events.Emission{Signal: events.CinematicEnter, Payload: 20001}},
		{events.CinematicComplete, 20001, events.Emission{Signal: events.ReturnToHub, Payload: 0}},
	}
	for _, step := range steps {
		f.nav.Reset()
		f.bus.Publish(step.signal, step.id)
		assert.Equal(t, step.next, f.firstNav(t), "after %s(%d)", step.signal, step.id)
		assertExclusive(t, f.store)

		snap := f.store.Snapshot()
		for _, n := range unlockedLevels {
			assert.True(t, snap.UnlockedLevels.Has(n), "level %d re-locked", n)
		}
		unlockedLevels = snap.UnlockedLevels.Sorted()
	}

	assert.True(t, f.store.IsLevelFullyCompleted(1))
	assert.Equal(t, 2, f.store.CurrentChapter())
	assert.True(t, f.saver.last().Equal(f.store.Snapshot()))

	book := f.engine.Storybook()
	assert.Equal(t, 1, book.CinematicsWatched)
	assert.Equal(t, 1, book.ChaptersWatched)
}

func assertSuperset(t *testing.T, before, after models.IntSet, what string, step int) {
	t.Helper()
	for id := range before {
		assert.True(t, after.Has(id), "step %d: %s lost %d", step, what, id)
	}
}

func TestUnlocksAreMonotonic(t *testing.T) {
	f := newFixture(t, nil, testConfig())

	steps := []struct {
		signal events.Signal
		id     int
	}{
		{events.LevelComplete, 1},         // enters post-story 2001
		{events.LevelComplete, 1},         // stale
		{events.LevelEnter, 99},           // unknown
		{events.StoryEnter, 2003},         // post-story of an open level
		{events.StoryComplete, 2001},      // enters cinematic 10001
		{events.ChapterComplete, 2},       // stale, chapter is still 1
		{events.CinematicComplete, 10001}, // chapter ending, enters 20001
		{events.ChapterComplete, 1},       // stale now
		{events.CinematicComplete, 20001},
		{events.LevelSelected, 4},    // locked
		{events.LevelSelected, 2},    // enters pre-story 1002
		{events.StoryComplete, 1002}, // enters level 2
		{events.LevelComplete, 2},    // enters post-story 2002
		{events.CinematicEnter, 10002},
		{events.CinematicComplete, 10002},
		{events.LevelSelected, 1}, // pre-story 1001 was skipped
		{events.LevelComplete, 1}, // stale
		{events.ChapterComplete, 2},
		{events.StoryEnter, 3001},
	}

	prev := f.store.Snapshot()
	for i, step := range steps {
		f.bus.Publish(step.signal, step.id)
		snap := f.store.Snapshot()

		assertSuperset(t, prev.UnlockedLevels, snap.UnlockedLevels, "unlocked levels", i)
		assertSuperset(t, prev.UnlockedStories, snap.UnlockedStories, "unlocked stories", i)
		assertSuperset(t, prev.CompletedLevels, snap.CompletedLevels, "completed levels", i)
		assertSuperset(t, prev.CompletedStories, snap.CompletedStories, "completed stories", i)
		assertSuperset(t, prev.CompletedCinematics, snap.CompletedCinematics, "completed cinematics", i)
		assert.GreaterOrEqual(t, snap.CurrentChapter, prev.CurrentChapter, "step %d", i)
		assertExclusive(t, f.store)

		data, err := persistence.Encode(snap)
		require.NoError(t, err)
		decoded, err := persistence.Decode(data)
		require.NoError(t, err)
		assert.True(t, decoded.Equal(snap), "step %d: %s(%d) does not survive a round trip", i, step.signal, step.id)

		prev = snap
	}

	assert.Equal(t, []int{1, 2, 3}, prev.UnlockedLevels.Sorted())
	assert.Equal(t, []int{1, 2}, prev.CompletedLevels.Sorted())
	assert.Equal(t, 3, prev.CurrentChapter)
}

func TestPersistenceFailureKeepsProgress(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	f.saver.err = errors.New("disk full")

	f.bus.Publish(events.LevelComplete, 1)

	assert.True(t, f.store.IsLevelCompleted(1))
	assert.Equal(t, events.StoryEnter, f.firstNav(t).Signal)
	assert.Positive(t, f.logs.FilterMessage("progress not persisted, will retry on next write").Len())
}

func TestPanickingSubscriberDoesNotEscape(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	f.bus.Subscribe(events.LoadContent, func(int) { panic("scene loader exploded") })

	assert.NotPanics(t, func() { f.bus.Publish(events.LevelComplete, 1) })
	assert.True(t, f.store.IsLevelCompleted(1))
	assert.Equal(t, 1, f.logs.FilterMessage("transition panicked").Len())
}

func TestStopUnsubscribes(t *testing.T) {
	f := newFixture(t, nil, testConfig())
	f.engine.Stop()

	f.bus.Publish(events.LevelComplete, 1)
	assert.False(t, f.store.IsLevelCompleted(1))

	f.engine.Start()
	f.engine.Start()
	assert.Equal(t, 1, f.bus.SubscriberCount(events.LevelComplete))
}
