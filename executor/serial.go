package executor

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// Serial runs work on a single background goroutine.
type Serial struct {
	clock clock.Clock
	name  string

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// NewSerial starts a serial executor. A nil clock selects the wall clock.
func NewSerial(name string, clk clock.Clock) *Serial {
	if clk == nil {
		clk = clock.New()
	}
	s := &Serial{
		clock: clk,
		name:  name,
		done:  make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

// Clock implements Executor.
func (s *Serial) Clock() clock.Clock {
	return s.clock
}

// Execute implements Executor. Work submitted after Close is dropped.
func (s *Serial) Execute(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		logrus.WithFields(logrus.Fields{
			"function": "Execute",
			"executor": s.name,
		}).Debug("Dropping work submitted after close")
		return
	}
	s.queue = append(s.queue, fn)
	s.cond.Signal()
}

// Schedule implements Executor.
func (s *Serial) Schedule(d time.Duration, fn func()) Timer {
	return s.clock.AfterFunc(d, func() { s.Execute(fn) })
}

// Close stops accepting work and waits for the queue to drain.
func (s *Serial) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
	<-s.done
}

func (s *Serial) loop() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.run(fn)
	}
}

func (s *Serial) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "run",
				"executor": s.name,
				"panic":    r,
			}).Error("Recovered panic in queued work")
		}
	}()
	fn()
}
