package scenes

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"Lantern-Tales/server/internal/content"
	"Lantern-Tales/server/internal/events"
)

type Kind string

const (
	KindLoad Kind = "load"
	KindHub  Kind = "hub"
)

// Transition asks the presentation layer to switch scenes.
type Transition struct {
	Seq       uint64    `json:"seq"`
	Kind      Kind      `json:"kind"`
	ContentID int       `json:"content_id,omitempty"`
	Category  string    `json:"category,omitempty"`
	Scene     string    `json:"scene"`
	Via       string    `json:"via,omitempty"` // loading scene shown in between
	At        time.Time `json:"at"`
}

// Sink receives transitions. Send must not block.
type Sink interface {
	Send(t Transition)
}

// Director turns LoadContent and ReturnToHub into scene transitions.
type Director struct {
	bus     events.Bus
	catalog *Catalog
	logger  *zap.Logger
	subs    map[events.Signal]events.Subscription

	mu      sync.RWMutex
	sinks   []Sink
	seq     uint64
	current *Transition
}

func NewDirector(bus events.Bus, catalog *Catalog, logger *zap.Logger) *Director {
	return &Director{
		bus:     bus,
		catalog: catalog,
		logger:  logger.Named("director"),
		subs:    make(map[events.Signal]events.Subscription),
	}
}

// AddSink registers a transition consumer.
func (d *Director) AddSink(s Sink) {
	d.mu.Lock()
	d.sinks = append(d.sinks, s)
	d.mu.Unlock()
}

func (d *Director) Start() {
	if len(d.subs) > 0 {
		return
	}
	d.subs[events.LoadContent] = d.bus.Subscribe(events.LoadContent, d.onLoadContent)
	d.subs[events.ReturnToHub] = d.bus.Subscribe(events.ReturnToHub, d.onReturnToHub)
}

func (d *Director) Stop() {
	for signal, sub := range d.subs {
		d.bus.Unsubscribe(signal, sub)
	}
	d.subs = make(map[events.Signal]events.Subscription)
}

// Current returns the last transition, so late joiners know what to show.
func (d *Director) Current() (Transition, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.current == nil {
		return Transition{}, false
	}
	return *d.current, true
}

func (d *Director) onLoadContent(id int) {
	scene, err := d.catalog.SceneFor(id)
	if err != nil {
		d.logger.Warn("cannot resolve scene", zap.Int("id", id), zap.Error(err))
		return
	}
	cat, _ := content.OwnerOf(id)
	d.emit(Transition{
		Kind:      KindLoad,
		ContentID: id,
		Category:  cat.String(),
		Scene:     scene,
	})
}

func (d *Director) onReturnToHub(int) {
	d.emit(Transition{Kind: KindHub, Scene: d.catalog.Hub})
}

func (d *Director) emit(t Transition) {
	d.mu.Lock()
	d.seq++
	t.Seq = d.seq
	t.Via = d.catalog.Loading
	t.At = time.Now()
	d.current = &t
	sinks := make([]Sink, len(d.sinks))
	copy(sinks, d.sinks)
	d.mu.Unlock()

	d.logger.Info("scene transition",
		zap.Uint64("seq", t.Seq),
		zap.String("kind", string(t.Kind)),
		zap.Int("content_id", t.ContentID),
		zap.String("scene", t.Scene),
	)
	for _, s := range sinks {
		s.Send(t)
	}
}
