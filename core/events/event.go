package events

import "sync"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
	// Attributes flattens the payload into string pairs for journals and
	// streaming subscribers.
	Attributes() map[string]string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Fanout forwards every event to each registered emitter in registration
// order.
type Fanout struct {
	mu       sync.RWMutex
	emitters []Emitter
}

// NewFanout returns a Fanout seeded with the non-nil emitters supplied.
func NewFanout(emitters ...Emitter) *Fanout {
	f := &Fanout{}
	for _, e := range emitters {
		f.Add(e)
	}
	return f
}

// Add registers an additional downstream emitter. Nil values are ignored.
func (f *Fanout) Add(e Emitter) {
	if f == nil || e == nil {
		return
	}
	f.mu.Lock()
	f.emitters = append(f.emitters, e)
	f.mu.Unlock()
}

// Emit implements the Emitter interface.
func (f *Fanout) Emit(evt Event) {
	if f == nil || evt == nil {
		return
	}
	f.mu.RLock()
	targets := append([]Emitter(nil), f.emitters...)
	f.mu.RUnlock()
	for _, e := range targets {
		e.Emit(evt)
	}
}
