package transfer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/opd-ai/xotalk/listener"
	"github.com/sirupsen/logrus"
)

// Listener observes transfer state changes.
type Listener func(t Transfer)

// Registry tracks the state of every transfer. It is safe for concurrent use.
type Registry struct {
	clock clock.Clock

	mu        sync.Mutex
	transfers map[string]*Transfer

	listeners *listener.Registry[Listener]
}

// NewRegistry creates an empty registry. A nil clock uses wall time.
func NewRegistry(clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	return &Registry{
		clock:     clk,
		transfers: make(map[string]*Transfer),
		listeners: listener.NewRegistry[Listener](),
	}
}

// AddListener registers l for state changes.
func (r *Registry) AddListener(l Listener) listener.Handle {
	return r.listeners.Add(l)
}

// RemoveListener unregisters a listener.
func (r *Registry) RemoveListener(h listener.Handle) bool {
	return r.listeners.Remove(h)
}

func (r *Registry) add(t *Transfer) error {
	r.mu.Lock()
	if _, ok := r.transfers[t.ID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicate, t.ID)
	}
	t.State = StatePending
	t.Created = r.clock.Now()
	r.transfers[t.ID] = t
	snapshot := *t
	r.mu.Unlock()

	r.publish(snapshot)
	return nil
}

// Get returns a snapshot of the transfer with id.
func (r *Registry) Get(id string) (Transfer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[id]
	if !ok {
		return Transfer{}, false
	}
	return *t, true
}

// List returns snapshots of all transfers ordered by creation.
func (r *Registry) List() []Transfer {
	r.mu.Lock()
	out := make([]Transfer, 0, len(r.transfers))
	for _, t := range r.transfers {
		out = append(out, *t)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

var transitions = map[State][]State{
	StatePending: {StateRunning, StateCancelled},
	StateRunning: {StateComplete, StateFailed, StateCancelled},
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transition moves transfer id to state. It reports false when the transfer
// is unknown or the transition is not allowed.
func (r *Registry) transition(id string, to State, err error) (Transfer, bool) {
	r.mu.Lock()
	t, ok := r.transfers[id]
	if !ok || !allowed(t.State, to) {
		r.mu.Unlock()
		return Transfer{}, false
	}
	from := t.State
	t.State = to
	t.Err = err
	switch {
	case to == StateRunning:
		t.Started = r.clock.Now()
	case to.Terminal():
		t.Finished = r.clock.Now()
	}
	snapshot := *t
	r.mu.Unlock()

	fields := logrus.Fields{
		"function":    "transition",
		"transfer_id": id,
		"direction":   snapshot.Direction.String(),
		"from":        from.String(),
		"to":          to.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Warn("Transfer state changed")
	} else {
		logrus.WithFields(fields).Debug("Transfer state changed")
	}
	r.publish(snapshot)
	return snapshot, true
}

func (r *Registry) progress(id string, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.transfers[id]; ok && t.State == StateRunning {
		t.Transferred = n
	}
}

func (r *Registry) publish(t Transfer) {
	r.listeners.Each(func(l Listener) { l(t) })
}
