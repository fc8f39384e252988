// Package eventbus implements the two dispatch primitives spec §4.H
// describes: Event (insertion-order broadcast; AddWithHandle hands out
// sequential handles, not derived from the callback, so adding the same
// function twice binds it twice under two handles) and
// Processor/EventProcessor (numeric handle, RAII-style unbind). Both are
// single-threaded and not re-entrant during broadcast: a bind that happens
// while a broadcast is in flight takes effect starting with the next
// broadcast, never the current one.
package eventbus

import "sync"

// Handle identifies a bound callback. Zero is never a valid handle.
type Handle uint64

// Callback is the signature every bound listener has. args is a loosely
// typed payload because the core's listeners span several unrelated event
// shapes (variable changes, peer status, scheduled-procedure firing).
type Callback func(args ...any)

// Event is an insertion-ordered multi-listener dispatcher. Listeners are
// bound with AddWithHandle, whose returned Handle is what Remove takes.
type Event struct {
	mu        sync.Mutex
	listeners []boundCallback
	nextID    Handle
	pending   []boundCallback // binds requested during an in-flight Broadcast
	inBroadcast bool
}

type boundCallback struct {
	id Handle
	fn Callback
}

// AddWithHandle registers fn and returns a Handle that can later be passed
// to Remove. If called while a Broadcast is in progress, the new listener
// is not invoked by that broadcast.
func (e *Event) AddWithHandle(fn Callback) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	bc := boundCallback{id: e.nextID, fn: fn}
	if e.inBroadcast {
		e.pending = append(e.pending, bc)
	} else {
		e.listeners = append(e.listeners, bc)
	}
	return bc.id
}

// Remove unbinds the listener registered under handle, if any.
func (e *Event) Remove(handle Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = removeByID(e.listeners, handle)
	e.pending = removeByID(e.pending, handle)
}

// Clear unbinds every listener.
func (e *Event) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = nil
	e.pending = nil
}

// Broadcast invokes every currently-bound listener, in insertion order,
// with args. Listeners bound during this call run on the next Broadcast.
func (e *Event) Broadcast(args ...any) {
	e.mu.Lock()
	e.inBroadcast = true
	snapshot := append([]boundCallback(nil), e.listeners...)
	e.mu.Unlock()

	for _, bc := range snapshot {
		bc.fn(args...)
	}

	e.mu.Lock()
	e.listeners = append(e.listeners, e.pending...)
	e.pending = nil
	e.inBroadcast = false
	e.mu.Unlock()
}

func removeByID(list []boundCallback, id Handle) []boundCallback {
	out := list[:0:0]
	for _, bc := range list {
		if bc.id != id {
			out = append(out, bc)
		}
	}
	return out
}

// Processor is a numeric-handle dispatcher whose Bind returns an
// EventProcessor: an owning handle that unbinds when the caller calls
// Unbind. Go has no destructors, so unlike the original's RAII handle this
// is a convention, not a guarantee — callers must call Unbind explicitly;
// Clear invalidates every outstanding handle regardless.
type Processor struct {
	mu      sync.Mutex
	entries map[Handle]Callback
	nextID  Handle
}

// NewProcessor returns a ready-to-use Processor.
func NewProcessor() *Processor {
	return &Processor{entries: make(map[Handle]Callback)}
}

// Bind registers fn and returns an EventProcessor handle bound to this
// Processor. Calling EventProcessor.Unbind removes it.
func (p *Processor) Bind(fn Callback) EventProcessor {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.entries[id] = fn
	return EventProcessor{id: id, owner: p}
}

// unbind removes the entry for id, if the Processor has not been cleared.
func (p *Processor) unbind(id Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, id)
}

// Clear invalidates every bound EventProcessor handle.
func (p *Processor) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = make(map[Handle]Callback)
}

// Broadcast invokes every currently-bound callback. Order is unspecified
// (map iteration), matching the original's non-ordered processor semantics
// (only Event guarantees insertion order).
func (p *Processor) Broadcast(args ...any) {
	p.mu.Lock()
	snapshot := make([]Callback, 0, len(p.entries))
	for _, fn := range p.entries {
		snapshot = append(snapshot, fn)
	}
	p.mu.Unlock()

	for _, fn := range snapshot {
		fn(args...)
	}
}

// Len reports how many callbacks are currently bound.
func (p *Processor) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// EventProcessor is the owning handle returned by Processor.Bind.
type EventProcessor struct {
	id    Handle
	owner *Processor
}

// Unbind removes this handle's callback from its owning Processor. Safe to
// call multiple times, and safe on the zero value.
func (h EventProcessor) Unbind() {
	if h.owner == nil {
		return
	}
	h.owner.unbind(h.id)
}

// Valid reports whether this handle still refers to a live Processor.
func (h EventProcessor) Valid() bool { return h.owner != nil }
