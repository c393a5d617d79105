// Package listener provides a small registry of typed callbacks with
// removable handles.
package listener

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handle identifies a registered listener.
type Handle uint64

// Registry holds listeners of type T. It is safe for concurrent use. Listeners
// are invoked in registration order.
type Registry[T any] struct {
	mu        sync.RWMutex
	next      Handle
	listeners map[Handle]T
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{listeners: make(map[Handle]T)}
}

// Add registers l and returns its handle.
func (r *Registry[T]) Add(l T) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.listeners[r.next] = l
	return r.next
}

// Remove unregisters the listener with handle h. It reports whether it existed.
func (r *Registry[T]) Remove(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.listeners[h]; !ok {
		return false
	}
	delete(r.listeners, h)
	return true
}

// Len returns the number of registered listeners.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// Snapshot returns the registered listeners in registration order.
func (r *Registry[T]) Snapshot() []T {
	r.mu.RLock()
	handles := make([]Handle, 0, len(r.listeners))
	for h := range r.listeners {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	out := make([]T, 0, len(handles))
	for _, h := range handles {
		out = append(out, r.listeners[h])
	}
	r.mu.RUnlock()
	return out
}

// Each calls fn for every listener in registration order. A panicking listener
// is logged and does not prevent the remaining listeners from being called.
func (r *Registry[T]) Each(fn func(T)) {
	for _, l := range r.Snapshot() {
		invoke(l, fn)
	}
}

func invoke[T any](l T, fn func(T)) {
	defer func() {
		if rec := recover(); rec != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Each",
				"panic":    rec,
			}).Error("Listener panicked")
		}
	}()
	fn(l)
}
