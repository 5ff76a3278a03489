package events

import "sync"

// Emission is one observed Publish call.
type Emission struct {
	Signal  Signal `json:"signal"`
	Payload int    `json:"id"`
}

// Recorder captures publications of a set of signals in order.
type Recorder struct {
	bus  Bus
	subs map[Signal]Subscription

	mu        sync.Mutex
	emissions []Emission
}

// Record starts capturing the given signals on bus until Stop is called.
func Record(bus Bus, signals ...Signal) *Recorder {
	r := &Recorder{
		bus:  bus,
		subs: make(map[Signal]Subscription, len(signals)),
	}
	for _, s := range signals {
		signal := s
		r.subs[signal] = bus.Subscribe(signal, func(payload int) {
			r.mu.Lock()
			r.emissions = append(r.emissions, Emission{Signal: signal, Payload: payload})
			r.mu.Unlock()
		})
	}
	return r
}

// Stop unsubscribes the recorder. Captured emissions stay readable.
func (r *Recorder) Stop() {
	for signal, sub := range r.subs {
		r.bus.Unsubscribe(signal, sub)
	}
	r.subs = map[Signal]Subscription{}
}

// Emissions returns a copy of everything captured so far.
func (r *Recorder) Emissions() []Emission {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Emission, len(r.emissions))
	copy(out, r.emissions)
	return out
}

// Of returns the payloads captured for one signal.
func (r *Recorder) Of(signal Signal) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, e := range r.emissions {
		if e.Signal == signal {
			out = append(out, e.Payload)
		}
	}
	return out
}

// Last returns the most recent emission.
func (r *Recorder) Last() (Emission, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.emissions) == 0 {
		return Emission{}, false
	}
	return r.emissions[len(r.emissions)-1], true
}

// Reset discards captured emissions.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.emissions = nil
	r.mu.Unlock()
}
