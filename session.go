package xotalk

import (
	"context"
	"errors"
	"time"

	"github.com/opd-ai/xotalk/rpc"

	"github.com/sirupsen/logrus"
)

var errConnectionClosed = errors.New("xotalk: connection closed by relay")

// Activate leaves StateInactive. The client goes to StateIdle when the idle
// timeout already elapsed since the last activity and connects otherwise.
func (c *Client) Activate() {
	c.post(func() {
		if c.State() != StateInactive {
			return
		}
		if c.idleFor() >= c.opts.IdleTimeout {
			c.enter(StateIdle)
			return
		}
		c.enter(StateConnecting)
	})
}

// Wake records user activity. An idle or deactivated client starts
// connecting and a connected client restarts its idle timer.
func (c *Client) Wake() {
	c.touch()
	c.post(func() {
		switch s := c.State(); {
		case s < StateConnecting:
			c.enter(StateConnecting)
		case s > StateConnecting:
			c.armIdle()
		}
	})
}

// Deactivate cancels all timers and closes the connection.
func (c *Client) Deactivate() {
	c.post(func() { c.enter(StateInactive) })
}

// Reconnect closes the current connection and connects again at once. The
// failure count is reset.
func (c *Client) Reconnect(reason string) {
	c.post(func() {
		if c.State() <= StateIdle {
			return
		}
		logrus.WithFields(logrus.Fields{
			"function": "Reconnect",
			"reason":   reason,
			"state":    c.State().String(),
		}).Info("Reconnect requested")
		c.failures = 0
		c.dropConnection()
		c.enter(StateReconnecting)
	})
}

func (c *Client) post(fn func()) {
	if c.closed.Load() {
		return
	}
	c.exec.Execute(fn)
}

func (c *Client) touch() {
	c.lastActivity.Store(c.exec.Clock().Now().UnixNano())
}

func (c *Client) idleFor() time.Duration {
	return c.exec.Clock().Now().Sub(time.Unix(0, c.lastActivity.Load()))
}

// enter moves to state s and re-arms the timer slots for it. Listeners are
// only told about actual changes.
func (c *Client) enter(s State) {
	old := State(c.state.Swap(int32(s)))
	c.applyTimers(s)
	if old == s {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "enter",
		"from":     old.String(),
		"to":       s.String(),
		"failures": c.failures,
	}).Info("Session state changed")
	c.stateListeners.Each(func(l StateListener) { l(s) })
}

func (c *Client) applyTimers(s State) {
	if s > StateConnecting {
		if !c.timers.isArmed(slotIdle) {
			c.armIdle()
		}
	} else {
		c.timers.cancel(slotIdle)
	}

	if s >= StateSyncing {
		if !c.timers.isArmed(slotKeepAlive) {
			c.timers.arm(slotKeepAlive, c.opts.KeepAlive, c.keepAlive)
		}
	} else {
		c.timers.cancel(slotKeepAlive)
	}

	if s == StateConnecting || s == StateReconnecting {
		c.timers.arm(slotConnect, c.connectDelay(), c.connect)
	} else {
		c.timers.cancel(slotConnect)
	}

	if s <= StateIdle {
		c.timers.arm(slotDisconnect, 0, c.dropConnection)
	} else {
		c.timers.cancel(slotDisconnect)
	}
}

func (c *Client) connectDelay() time.Duration {
	if c.failures == 0 {
		return 0
	}
	return c.opts.Backoff.Delay(c.failures, c.opts.Rand())
}

func (c *Client) armIdle() {
	remaining := c.opts.IdleTimeout - c.idleFor()
	c.timers.arm(slotIdle, remaining, func() {
		if c.State() <= StateConnecting {
			return
		}
		if c.idleFor() < c.opts.IdleTimeout {
			c.armIdle()
			return
		}
		c.enter(StateIdle)
	})
}

// connect opens a connection and starts registration or login on it.
func (c *Client) connect() {
	if s := c.State(); s != StateConnecting && s != StateReconnecting {
		return
	}
	c.dropConnection()
	c.generation++
	gen := c.generation

	ctx, cancel := context.WithTimeout(c.ctx, c.opts.ConnectTimeout)
	defer cancel()
	srv, err := c.connector.Connect(ctx, &pushHandler{client: c, gen: gen}, func(err error) {
		c.post(func() { c.onClosed(gen, err) })
	})
	if err != nil {
		c.fail(gen, "connect", err)
		return
	}

	c.mu.Lock()
	c.server = srv
	c.mu.Unlock()

	self, err := c.store.LoadSelf(c.ctx)
	if err != nil {
		c.fail(gen, "load identity", err)
		return
	}
	if self.MustSelf().Registered {
		c.enter(StateLogin)
		c.post(func() { c.login(gen) })
		return
	}
	c.enter(StateRegistering)
	c.post(func() { c.register(gen) })
}

func (c *Client) current(gen uint64, want State) bool {
	return gen == c.generation && c.State() == want
}

func (c *Client) register(gen uint64) {
	if !c.current(gen, StateRegistering) {
		return
	}
	self, err := c.store.LoadSelf(c.ctx)
	if err == nil {
		err = c.auth.Register(c.ctx, c.conn(), self)
	}
	if err != nil {
		c.fail(gen, "register", err)
		return
	}
	c.enter(StateLogin)
	c.post(func() { c.login(gen) })
}

func (c *Client) login(gen uint64) {
	if !c.current(gen, StateLogin) {
		return
	}
	self, err := c.store.LoadSelf(c.ctx)
	if err == nil {
		err = c.auth.Login(c.ctx, c.conn(), self)
	}
	if err != nil {
		c.fail(gen, "login", err)
		return
	}
	c.loginGen = gen
	c.enter(StateSyncing)
	c.post(func() { c.sync(gen) })
}

// sync reconciles contacts and then activates unconditionally. Only a
// connection that passed login can become active.
func (c *Client) sync(gen uint64) {
	if !c.current(gen, StateSyncing) || c.loginGen != gen {
		return
	}
	if err := c.contacts.Sync(c.ctx); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "sync",
			"error":    err.Error(),
		}).Warn("Sync finished with failures")
	}
	if !c.current(gen, StateSyncing) {
		return
	}
	if err := c.conn().Ready(c.ctx); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "sync",
			"error":    err.Error(),
		}).Warn("Relay did not accept ready")
	}
	c.failures = 0
	c.enter(StateActive)
	c.flush()
}

func (c *Client) flush() {
	if c.State() != StateActive {
		return
	}
	n, err := c.messages.RequestDelivery(c.ctx)
	fields := logrus.Fields{
		"function":  "flush",
		"delivered": n,
	}
	if err != nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Warn("Delivery pass incomplete")
		return
	}
	if n > 0 {
		logrus.WithFields(fields).Debug("Delivery pass finished")
	}
}

func (c *Client) keepAlive() {
	if c.State() < StateSyncing {
		return
	}
	gen := c.generation
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.RequestTimeout)
	err := c.conn().Ping(ctx)
	cancel()
	if err != nil {
		c.fail(gen, "keepalive", err)
		return
	}
	if gen == c.generation && c.State() >= StateSyncing {
		c.timers.arm(slotKeepAlive, c.opts.KeepAlive, c.keepAlive)
	}
}

// conn returns the open connection. Callers check the generation first, so a
// connection exists whenever they run.
func (c *Client) conn() rpc.Server {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

// fail handles an involuntary loss of connection gen: the connection is
// dropped and a new attempt is scheduled with backoff.
func (c *Client) fail(gen uint64, phase string, err error) {
	if gen != c.generation {
		return
	}
	s := c.State()
	c.dropConnection()
	if s <= StateIdle {
		return
	}
	c.failures++
	logrus.WithFields(logrus.Fields{
		"function": "fail",
		"phase":    phase,
		"state":    s.String(),
		"failures": c.failures,
		"error":    err.Error(),
	}).Warn("Connection attempt failed")
	c.enter(StateConnecting)
}

func (c *Client) onClosed(gen uint64, err error) {
	if gen != c.generation {
		return
	}
	if err == nil {
		err = errConnectionClosed
	}
	c.fail(gen, "transport", err)
}

// dropConnection forgets and closes the current connection. Callbacks of the
// dropped connection are ignored afterwards.
func (c *Client) dropConnection() {
	c.generation++
	c.loginGen = 0
	c.mu.Lock()
	open := c.server != nil
	c.server = nil
	c.mu.Unlock()
	if !open {
		return
	}
	if err := c.connector.Disconnect(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "dropConnection",
			"error":    err.Error(),
		}).Debug("Disconnect failed")
	}
}
