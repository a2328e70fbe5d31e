package dylib

import "sync"

// Handle is an integer token standing for a host value handed to foreign code.
// Foreign code never sees Go pointers: it receives a Handle and passes it back
// to host callbacks, which resolve it with Handles.Value.
type Handle uintptr

// Handles maps handles to host values.
// It is safe for concurrent use: foreign code may resolve handles from pipeline threads.
type Handles struct {
	mu     sync.RWMutex
	next   uintptr
	values map[Handle]any
}

// Global is the process-wide handle table used by host callbacks.
var Global = NewHandles()

// NewHandles creates an empty handle table
func NewHandles() *Handles {
	return &Handles{values: make(map[Handle]any)}
}

// New publishes v and returns its handle. Handles are never zero, so that a
// zero argument on the foreign side always means "no value".
func (h *Handles) New(v any) Handle {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	id := Handle(h.next)
	h.values[id] = v
	return id
}

// Value resolves a handle
func (h *Handles) Value(id Handle) (any, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	v, ok := h.values[id]
	return v, ok
}

// Delete invalidates a handle. Deleting an unknown handle is a no-op.
func (h *Handles) Delete(id Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.values, id)
}

// Len returns the number of live handles
func (h *Handles) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.values)
}
