package fsevent

import "sync"

type subscription struct {
	id uint64
	fn func(Event)
}

// Emitter dispatches events to registered listeners. The zero value is not
// usable; create one with NewEmitter. Emit calls listeners synchronously on
// the emitting goroutine, in registration order, named listeners before
// catch-all listeners.
type Emitter struct {
	mu     sync.Mutex
	nextID uint64
	named  map[string][]subscription
	any    []subscription
}

// NewEmitter returns an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{named: make(map[string][]subscription)}
}

// On registers fn for events whose EventName equals name. The returned
// function removes the registration; calling it more than once is harmless.
func (e *Emitter) On(name string, fn func(Event)) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.named[name] = append(e.named[name], subscription{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		subs := e.named[name]
		for i, s := range subs {
			if s.id == id {
				e.named[name] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// OnAny registers fn for every event regardless of name. The returned
// function removes the registration.
func (e *Emitter) OnAny(fn func(Event)) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.any = append(e.any, subscription{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.any {
			if s.id == id {
				e.any = append(e.any[:i:i], e.any[i+1:]...)
				return
			}
		}
	}
}

// Emit dispatches ev to all matching listeners. The listener set is
// snapshotted under the lock, so a listener may unsubscribe itself (or
// register new listeners) without deadlocking; registrations made during
// dispatch only see later events.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	named := append([]subscription(nil), e.named[ev.EventName()]...)
	any := append([]subscription(nil), e.any...)
	e.mu.Unlock()

	for _, s := range named {
		s.fn(ev)
	}
	for _, s := range any {
		s.fn(ev)
	}
}
