package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/xotalk"
	"github.com/opd-ai/xotalk/interfaces"
	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/store"
	"github.com/sirupsen/logrus"
)

// TestClient wraps a xotalk client with channels the workflow can wait on.
type TestClient struct {
	client  *xotalk.Client
	store   *store.Memory
	name    string
	logger  *logrus.Entry
	metrics *ClientMetrics

	mu       sync.RWMutex
	clientID string

	messageCh chan Message
	activeCh  chan struct{}
}

// Message represents a received message.
type Message struct {
	From      string
	Content   string
	Timestamp time.Time
}

// ClientMetrics tracks client activity.
type ClientMetrics struct {
	StartTime        time.Time
	MessagesSent     int64
	MessagesReceived int64
	StateChanges     int64
	mu               sync.RWMutex
}

// ClientConfig holds configuration for a test client.
type ClientConfig struct {
	Name      string
	Connector interfaces.IConnector
	// RSABits is the identity key size; zero keeps the client default.
	RSABits int
	Logger  *logrus.Entry
}

// DefaultClientConfig returns a configuration for a client called name.
// The connector still has to be set.
func DefaultClientConfig(name string) *ClientConfig {
	return &ClientConfig{
		Name:   name,
		Logger: logrus.WithField("component", "client"),
	}
}

// NewTestClient creates a client with an in-memory store.
func NewTestClient(config *ClientConfig) (*TestClient, error) {
	if config == nil || config.Connector == nil {
		return nil, fmt.Errorf("test client needs a connector")
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	st := store.NewMemory()
	opts := xotalk.NewOptions()
	opts.Store = st
	opts.Connector = config.Connector
	if config.RSABits > 0 {
		opts.RSABits = config.RSABits
	}
	c, err := xotalk.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	tc := &TestClient{
		client:    c,
		store:     st,
		name:      config.Name,
		logger:    logger.WithField("client", config.Name),
		metrics:   &ClientMetrics{StartTime: time.Now()},
		messageCh: make(chan Message, 16),
		activeCh:  make(chan struct{}, 1),
	}
	tc.setupCallbacks()
	return tc, nil
}

func (tc *TestClient) setupCallbacks() {
	tc.client.AddStateListener(func(s xotalk.State) {
		tc.metrics.mu.Lock()
		tc.metrics.StateChanges++
		tc.metrics.mu.Unlock()
		tc.logger.WithField("state", s.String()).Debug("State changed")
		if s == xotalk.StateActive {
			select {
			case tc.activeCh <- struct{}{}:
			default:
			}
		}
	})
	tc.client.AddMessageListener(func(msg *model.ClientMessage, isNew bool) {
		if !isNew || !msg.Incoming {
			return
		}
		tc.metrics.mu.Lock()
		tc.metrics.MessagesReceived++
		tc.metrics.mu.Unlock()
		select {
		case tc.messageCh <- Message{From: msg.SenderKey, Content: msg.Text, Timestamp: time.Now()}:
		default:
			tc.logger.Warn("Message channel full, dropping message")
		}
	})
}

// Start activates the client.
func (tc *TestClient) Start(ctx context.Context) error {
	tc.logger.Info("Starting client")
	tc.client.Activate()
	return nil
}

// Stop closes the client.
func (tc *TestClient) Stop() error {
	tc.logger.Info("Stopping client")
	return tc.client.Close()
}

// WaitForActive blocks until the session is active and records the client id.
func (tc *TestClient) WaitForActive(timeout time.Duration) error {
	if tc.client.State() != xotalk.StateActive {
		select {
		case <-tc.activeCh:
		case <-time.After(timeout):
			return fmt.Errorf("%s not active after %v (state %s)", tc.name, timeout, tc.client.State())
		}
	}
	self, err := tc.client.Self(context.Background())
	if err != nil {
		return err
	}
	tc.mu.Lock()
	tc.clientID = self.Key()
	tc.mu.Unlock()
	return nil
}

// GenerateToken issues a pairing token.
func (tc *TestClient) GenerateToken(ctx context.Context, lifetime time.Duration) (string, error) {
	return tc.client.GenerateToken(ctx, "pairing", lifetime)
}

// PairByToken pairs with the issuer of token.
func (tc *TestClient) PairByToken(ctx context.Context, token string) error {
	ok, err := tc.client.PairByToken(ctx, token)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("token rejected")
	}
	return nil
}

// WaitForPeer blocks until clientID is a related peer with a known public key.
func (tc *TestClient) WaitForPeer(ctx context.Context, clientID string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if tc.isRelated(ctx, clientID) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s does not know peer %s after %v", tc.name, clientID, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (tc *TestClient) isRelated(ctx context.Context, clientID string) bool {
	contact, err := tc.store.FindContact(ctx, model.KindPeer, clientID)
	if err != nil {
		return false
	}
	peer := contact.MustPeer()
	return peer.PublicKey != nil && peer.Relationship != nil &&
		peer.Relationship.State == model.RelationshipRelated
}

// SendMessage sends text to the peer clientID.
func (tc *TestClient) SendMessage(ctx context.Context, clientID, text string) error {
	if _, err := tc.client.SendMessage(ctx, clientID, text, nil); err != nil {
		return err
	}
	tc.metrics.mu.Lock()
	tc.metrics.MessagesSent++
	tc.metrics.mu.Unlock()
	return nil
}

// WaitForMessage waits for the next incoming message.
func (tc *TestClient) WaitForMessage(timeout time.Duration) (*Message, error) {
	select {
	case msg := <-tc.messageCh:
		return &msg, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no message for %s within %v", tc.name, timeout)
	}
}

// GetName returns the client's display name.
func (tc *TestClient) GetName() string {
	return tc.name
}

// GetClientID returns the relay-assigned id once the client was active.
func (tc *TestClient) GetClientID() string {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.clientID
}

// GetStatus returns the client's state and counters.
func (tc *TestClient) GetStatus() map[string]interface{} {
	tc.metrics.mu.RLock()
	defer tc.metrics.mu.RUnlock()
	return map[string]interface{}{
		"name":              tc.name,
		"client_id":         tc.GetClientID(),
		"state":             tc.client.State().String(),
		"messages_sent":     tc.metrics.MessagesSent,
		"messages_received": tc.metrics.MessagesReceived,
		"state_changes":     tc.metrics.StateChanges,
		"uptime":            time.Since(tc.metrics.StartTime),
	}
}
