package xotalk

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/xotalk/auth"
	"github.com/opd-ai/xotalk/contactsync"
	"github.com/opd-ai/xotalk/executor"
	"github.com/opd-ai/xotalk/group"
	"github.com/opd-ai/xotalk/interfaces"
	"github.com/opd-ai/xotalk/listener"
	"github.com/opd-ai/xotalk/messaging"
	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/rpc"
	"github.com/opd-ai/xotalk/store"
	"github.com/opd-ai/xotalk/transfer"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by operations on a closed Client.
var ErrClosed = errors.New("xotalk: client closed")

// Client is one identity's session with a relay. All protocol work runs on
// the client's executor; exported methods may be called from any goroutine.
// Methods taking a context wait for their work to finish and must not be
// called from listeners, which run on the executor.
type Client struct {
	opts      *Options
	exec      executor.Executor
	ownExec   *executor.Serial
	ownXfer   *executor.Serial
	store     store.Store
	connector interfaces.IConnector

	auth      *auth.Engine
	keys      *group.KeyManager
	codec     *messaging.Codec
	messages  *messaging.Coordinator
	contacts  *contactsync.Coordinator
	transfers *transfer.Agent

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	state        atomic.Int32
	lastActivity atomic.Int64

	// owned by the executor
	timers     *timerArena
	failures   int
	generation uint64
	loginGen   uint64

	mu     sync.RWMutex
	server rpc.Server

	stateListeners *listener.Registry[StateListener]
	alertListeners *listener.Registry[AlertListener]
}

var _ rpc.Source = (*Client)(nil)

// New creates a client in StateInactive. A local identity is created in the
// store on first use.
func New(options *Options) (*Client, error) {
	if options == nil {
		options = NewOptions()
	}
	if err := options.validate(); err != nil {
		return nil, err
	}
	opts := *options
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.Mover == nil {
		opts.Mover = &transfer.HTTPMover{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		opts:           &opts,
		store:          opts.Store,
		connector:      opts.Connector,
		ctx:            ctx,
		cancel:         cancel,
		stateListeners: listener.NewRegistry[StateListener](),
		alertListeners: listener.NewRegistry[AlertListener](),
	}
	if err := c.ensureSelf(ctx); err != nil {
		cancel()
		return nil, err
	}

	c.exec = opts.Executor
	if c.exec == nil {
		c.ownExec = executor.NewSerial("xotalk", nil)
		c.exec = c.ownExec
	}
	xfer := opts.TransferExecutor
	if xfer == nil {
		c.ownXfer = executor.NewSerial("transfers", c.exec.Clock())
		xfer = c.ownXfer
	}
	c.timers = newTimerArena(c.exec)
	c.lastActivity.Store(c.exec.Clock().Now().UnixNano())

	c.auth = auth.NewEngine(c.store)
	c.keys = group.NewKeyManager(c.store, c, c.exec)
	c.keys.Timeout = opts.RequestTimeout
	c.keys.OnRenewed = c.onRenewed
	c.codec = messaging.NewCodec(c.keys.Keyring())
	c.transfers = transfer.NewAgent(opts.Mover, xfer, opts.DownloadDir)
	c.messages = messaging.NewCoordinator(c.store, c, c.exec, c.codec, c.transfers)
	c.messages.Timeout = opts.RequestTimeout
	c.contacts = contactsync.NewCoordinator(c.store, c, c.keys)
	if opts.RSABits > 0 {
		c.contacts.RSABits = opts.RSABits
	}

	logrus.WithFields(logrus.Fields{
		"function":        "New",
		"simulation":      c.connector.IsSimulation(),
		"connect_timeout": opts.ConnectTimeout.String(),
		"idle_timeout":    opts.IdleTimeout.String(),
		"keep_alive":      opts.KeepAlive.String(),
	}).Info("Created client")
	return c, nil
}

func (c *Client) ensureSelf(ctx context.Context) error {
	_, err := c.store.LoadSelf(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return c.store.SaveContact(ctx, model.NewSelf())
}

// Close deactivates the client and releases its executors and transfers.
// The store stays open.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	done := make(chan struct{})
	c.exec.Execute(func() {
		c.enter(StateInactive)
		c.timers.cancelAll()
		c.dropConnection()
		close(done)
	})
	if c.ownExec != nil {
		<-done
		c.ownExec.Close()
	}
	c.cancel()
	c.transfers.Close()
	if c.ownXfer != nil {
		c.ownXfer.Close()
	}
	logrus.WithField("function", "Close").Info("Client closed")
	return nil
}

// State returns the current state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Server implements rpc.Source. The connection is only handed out once the
// identity is logged in.
func (c *Client) Server() (rpc.Server, error) {
	if c.State() < StateSyncing {
		return nil, rpc.ErrNotConnected
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.server == nil {
		return nil, rpc.ErrNotConnected
	}
	return c.server, nil
}

// AddStateListener registers l for state changes.
func (c *Client) AddStateListener(l StateListener) listener.Handle {
	return c.stateListeners.Add(l)
}

// RemoveStateListener unregisters a state listener.
func (c *Client) RemoveStateListener(h listener.Handle) bool {
	return c.stateListeners.Remove(h)
}

// AddAlertListener registers l for relay alerts.
func (c *Client) AddAlertListener(l AlertListener) listener.Handle {
	return c.alertListeners.Add(l)
}

// RemoveAlertListener unregisters an alert listener.
func (c *Client) RemoveAlertListener(h listener.Handle) bool {
	return c.alertListeners.Remove(h)
}

// AddContactListener registers l for contact changes.
func (c *Client) AddContactListener(l contactsync.ContactListener) listener.Handle {
	return c.contacts.AddContactListener(l)
}

// RemoveContactListener unregisters a contact listener.
func (c *Client) RemoveContactListener(h listener.Handle) bool {
	return c.contacts.RemoveContactListener(h)
}

// AddMessageListener registers l for new and changed messages.
func (c *Client) AddMessageListener(l messaging.MessageListener) listener.Handle {
	return c.messages.AddMessageListener(l)
}

// RemoveMessageListener unregisters a message listener.
func (c *Client) RemoveMessageListener(h listener.Handle) bool {
	return c.messages.RemoveMessageListener(h)
}

// AddUnseenListener registers l for changes of the unseen message set.
func (c *Client) AddUnseenListener(l messaging.UnseenListener) listener.Handle {
	return c.messages.AddUnseenListener(l)
}

// RemoveUnseenListener unregisters an unseen listener.
func (c *Client) RemoveUnseenListener(h listener.Handle) bool {
	return c.messages.RemoveUnseenListener(h)
}

// AddTransferListener registers l for attachment transfer changes. It is
// called on the transfer executor.
func (c *Client) AddTransferListener(l transfer.Listener) listener.Handle {
	return c.transfers.Registry().AddListener(l)
}

// RemoveTransferListener unregisters a transfer listener.
func (c *Client) RemoveTransferListener(h listener.Handle) bool {
	return c.transfers.Registry().RemoveListener(h)
}

func (c *Client) onRenewed(groupID string, n int, err error) {
	fields := logrus.Fields{
		"function": "onRenewed",
		"group_id": groupID,
		"members":  n,
	}
	if err != nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Warn("Group key renewal failed")
		return
	}
	logrus.WithFields(fields).Info("Group key renewed")
}
