package executor

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Manual is a step-driven executor with virtual time.
type Manual struct {
	clock *clock.Mock

	mu     sync.Mutex
	queue  []func()
	timers []*manualTimer
	seq    uint64
}

type manualTimer struct {
	owner    *Manual
	deadline time.Time
	seq      uint64
	fn       func()
	stopped  bool
}

// NewManual creates a Manual executor whose clock starts at the Unix epoch.
func NewManual() *Manual {
	return &Manual{clock: clock.NewMock()}
}

// Clock implements Executor.
func (m *Manual) Clock() clock.Clock {
	return m.clock
}

// Now returns the current virtual time.
func (m *Manual) Now() time.Time {
	return m.clock.Now()
}

// Execute implements Executor.
func (m *Manual) Execute(fn func()) {
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
}

// Schedule implements Executor.
func (m *Manual) Schedule(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{
		owner:    m,
		deadline: m.clock.Now().Add(d),
		seq:      m.seq,
		fn:       fn,
	}
	m.timers = append(m.timers, t)
	return t
}

// Stop implements Timer.
func (t *manualTimer) Stop() bool {
	m := t.owner
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	m.removeTimer(t)
	return true
}

func (m *Manual) removeTimer(t *manualTimer) {
	for i, other := range m.timers {
		if other == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

// Pending returns the number of queued work items.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Scheduled returns the number of timers that have not fired or been stopped.
func (m *Manual) Scheduled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// NextDeadline returns the delay until the earliest pending timer.
func (m *Manual) NextDeadline() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.timers) == 0 {
		return 0, false
	}
	m.sortTimers()
	return m.timers[0].deadline.Sub(m.clock.Now()), true
}

// RunPending runs queued work, including work queued while running, until the
// queue is empty. Timers due at the current virtual time are fired first.
func (m *Manual) RunPending() int {
	m.fireDue(m.clock.Now())
	ran := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return ran
		}
		fn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		fn()
		ran++
		m.fireDue(m.clock.Now())
	}
}

// Advance moves virtual time forward by d, firing each due timer in deadline
// order and running the queue after each one.
func (m *Manual) Advance(d time.Duration) {
	target := m.clock.Now().Add(d)
	m.RunPending()
	for {
		m.mu.Lock()
		m.sortTimers()
		if len(m.timers) == 0 || m.timers[0].deadline.After(target) {
			m.mu.Unlock()
			break
		}
		next := m.timers[0].deadline
		m.mu.Unlock()

		if next.After(m.clock.Now()) {
			m.clock.Set(next)
		}
		m.RunPending()
	}
	if target.After(m.clock.Now()) {
		m.clock.Set(target)
	}
	m.RunPending()
}

func (m *Manual) fireDue(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sortTimers()
	for len(m.timers) > 0 && !m.timers[0].deadline.After(now) {
		t := m.timers[0]
		m.timers = m.timers[1:]
		t.stopped = true
		m.queue = append(m.queue, t.fn)
	}
}

func (m *Manual) sortTimers() {
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].deadline.Equal(m.timers[j].deadline) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].deadline.Before(m.timers[j].deadline)
	})
}
