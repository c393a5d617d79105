package testing

import (
	"context"
	"sync"

	"github.com/opd-ai/xotalk/interfaces"
	"github.com/opd-ai/xotalk/rpc"
	"github.com/sirupsen/logrus"
)

// SimulatedConnector implements interfaces.IConnector on a SimulatedRelay.
type SimulatedConnector struct {
	relay *SimulatedRelay

	mu      sync.Mutex
	current *session
	dials   int
}

var _ interfaces.IConnector = (*SimulatedConnector)(nil)

// Connect implements interfaces.IConnector.
func (c *SimulatedConnector) Connect(ctx context.Context, handler rpc.NotificationHandler, closed func(error)) (rpc.Server, error) {
	c.mu.Lock()
	c.dials++
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := c.relay
	r.mu.Lock()
	if len(r.connectFails) > 0 {
		err := r.connectFails[0]
		r.connectFails = r.connectFails[1:]
		r.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "SimulatedConnector.Connect",
			"error":    err.Error(),
		}).Info("Simulating connect failure")
		return nil, err
	}
	s := &session{relay: r, handler: handler, onClose: closed}
	r.sessions[s] = struct{}{}
	r.mu.Unlock()

	c.mu.Lock()
	c.current = s
	c.mu.Unlock()
	return s, nil
}

// Disconnect implements interfaces.IConnector.
func (c *SimulatedConnector) Disconnect() error {
	c.mu.Lock()
	s := c.current
	c.current = nil
	c.mu.Unlock()
	if s != nil {
		s.close(nil)
	}
	return nil
}

// IsSimulation implements interfaces.IConnector.
func (c *SimulatedConnector) IsSimulation() bool {
	return true
}

// Dials returns the number of Connect calls made.
func (c *SimulatedConnector) Dials() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials
}
