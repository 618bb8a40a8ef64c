// Package events keeps the callbacks external code registers against a
// document. Each registration gets an opaque Handle; removing a handle is
// idempotent and never fails.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const (
	TextChange      = "text-change"
	SelectionChange = "selection-change"
	// EditorChange fires after both of the above, with the original event name
	// prepended to the arguments.
	EditorChange = "editor-change"
)

type Handle uuid.UUID

func (h Handle) String() string { return uuid.UUID(h).String() }

// Handler receives the positional arguments of one dispatch.
type Handler func(args ...any)

type entry struct {
	handle  Handle
	event   string
	fn      Handler
	once    bool
	removed atomic.Bool
}

// Registry is safe for concurrent use. Dispatch works on a snapshot of the
// event's entries, so handlers may register or unregister from inside a call.
type Registry struct {
	mu      sync.RWMutex
	entries map[Handle]*entry
	// per event, in registration order; replaced (never edited in place) on removal
	byEvent map[string][]*entry
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[Handle]*entry),
		byEvent: make(map[string][]*entry),
	}
}

// Register stores fn under a fresh handle. A nil fn is not stored and gets
// the zero Handle, which Unregister ignores.
func (r *Registry) Register(event string, fn Handler) Handle {
	return r.add(event, fn, false)
}

// RegisterOnce stores fn so that the first dispatch removes it before calling
// it. Concurrent dispatches still call it at most once.
func (r *Registry) RegisterOnce(event string, fn Handler) Handle {
	return r.add(event, fn, true)
}

func (r *Registry) add(event string, fn Handler, once bool) Handle {
	if fn == nil {
		return Handle{}
	}
	e := &entry{handle: Handle(uuid.New()), event: event, fn: fn, once: once}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.handle] = e
	r.byEvent[event] = append(r.byEvent[event], e)
	return e.handle
}

// Unregister removes h. Unknown or already removed handles are ignored. Once
// it returns, no new dispatch reaches the callback; a call already running
// may finish.
func (r *Registry) Unregister(h Handle) {
	r.mu.Lock()
	e, ok := r.entries[h]
	if ok {
		r.detach(e)
	}
	r.mu.Unlock()
}

// detach must run under r.mu.
func (r *Registry) detach(e *entry) {
	e.removed.Store(true)
	delete(r.entries, e.handle)
	list := r.byEvent[e.event]
	kept := make([]*entry, 0, len(list))
	for _, x := range list {
		if x != e {
			kept = append(kept, x)
		}
	}
	if len(kept) == 0 {
		delete(r.byEvent, e.event)
		return
	}
	r.byEvent[e.event] = kept
}

// Emit calls every live callback registered for event, in registration order,
// and returns how many ran.
func (r *Registry) Emit(event string, args ...any) int {
	r.mu.RLock()
	snapshot := r.byEvent[event]
	r.mu.RUnlock()

	called := 0
	for _, e := range snapshot {
		if e.once {
			// the winner of the swap owns the single call
			if !e.removed.CompareAndSwap(false, true) {
				continue
			}
			r.mu.Lock()
			if _, ok := r.entries[e.handle]; ok {
				r.detach(e)
			}
			r.mu.Unlock()
		} else if e.removed.Load() {
			continue
		}
		e.fn(args...)
		called++
	}
	return called
}

// Len is the number of live registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Count is the number of live registrations for one event.
func (r *Registry) Count(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byEvent[event])
}
