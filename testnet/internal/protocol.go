package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/opd-ai/xotalk/interfaces"
	"github.com/opd-ai/xotalk/rpc"
	testsim "github.com/opd-ai/xotalk/testing"
	"github.com/opd-ai/xotalk/transport"
	"github.com/sirupsen/logrus"
)

// ProtocolTestSuite runs the pairing and messaging workflow between two
// clients.
type ProtocolTestSuite struct {
	relay   *testsim.SimulatedRelay
	clientA *TestClient
	clientB *TestClient
	logger  *logrus.Entry
	config  *ProtocolConfig
}

// ProtocolConfig holds configuration for protocol testing.
type ProtocolConfig struct {
	// RelayURL selects a real relay. Empty runs against an in-process relay.
	RelayURL string
	Protocol string

	ConnectionTimeout time.Duration
	PairingTimeout    time.Duration
	MessageTimeout    time.Duration
	RequestTimeout    time.Duration
	RetryAttempts     int
	RetryBackoff      time.Duration
	RSABits           int
	Logger            *logrus.Entry
}

// DefaultProtocolConfig returns a configuration against the in-process relay.
func DefaultProtocolConfig() *ProtocolConfig {
	return &ProtocolConfig{
		Protocol:          rpc.ProtocolCBOR,
		ConnectionTimeout: 30 * time.Second,
		PairingTimeout:    15 * time.Second,
		MessageTimeout:    10 * time.Second,
		RequestTimeout:    60 * time.Second,
		RetryAttempts:     3,
		RetryBackoff:      time.Second,
		Logger:            logrus.WithField("component", "protocol"),
	}
}

// NewProtocolTestSuite creates a new protocol test suite.
func NewProtocolTestSuite(config *ProtocolConfig) *ProtocolTestSuite {
	if config == nil {
		config = DefaultProtocolConfig()
	}
	return &ProtocolTestSuite{
		config: config,
		logger: config.Logger,
	}
}

// ExecuteTest runs the complete workflow.
func (pts *ProtocolTestSuite) ExecuteTest(ctx context.Context) error {
	pts.logger.Info("Starting xotalk network integration test")

	if err := pts.setupClients(ctx); err != nil {
		return fmt.Errorf("client setup failed: %w", err)
	}
	if err := pts.establishPairing(ctx); err != nil {
		return fmt.Errorf("pairing failed: %w", err)
	}
	if err := pts.testMessageExchange(ctx); err != nil {
		return fmt.Errorf("message exchange failed: %w", err)
	}

	pts.logger.Info("All steps completed successfully")
	return nil
}

// newConnector returns a connector to the configured relay.
func (pts *ProtocolTestSuite) newConnector() (interfaces.IConnector, error) {
	if pts.config.RelayURL == "" {
		if pts.relay == nil {
			pts.relay = testsim.NewSimulatedRelay()
		}
		return pts.relay.Connector(), nil
	}
	protocols := []string{pts.config.Protocol}
	for _, p := range rpc.Protocols {
		if p != pts.config.Protocol {
			protocols = append(protocols, p)
		}
	}
	return transport.NewWebSocketConnector(&interfaces.ConnectorConfig{
		URL:            pts.config.RelayURL,
		Protocols:      protocols,
		ConnectTimeout: pts.config.ConnectionTimeout,
		RequestTimeout: pts.config.RequestTimeout,
	})
}

func (pts *ProtocolTestSuite) newClient(name string) (*TestClient, error) {
	conn, err := pts.newConnector()
	if err != nil {
		return nil, err
	}
	cfg := DefaultClientConfig(name)
	cfg.Connector = conn
	cfg.RSABits = pts.config.RSABits
	cfg.Logger = pts.logger
	return NewTestClient(cfg)
}

// setupClients creates both clients and waits until their sessions are
// active.
func (pts *ProtocolTestSuite) setupClients(ctx context.Context) error {
	pts.logger.WithField("relay", pts.relayName()).Info("Step 1: Client setup")

	clientA, err := pts.newClient("Alice")
	if err != nil {
		return fmt.Errorf("failed to create Client A: %w", err)
	}
	pts.clientA = clientA
	clientB, err := pts.newClient("Bob")
	if err != nil {
		return fmt.Errorf("failed to create Client B: %w", err)
	}
	pts.clientB = clientB

	for _, c := range []*TestClient{pts.clientA, pts.clientB} {
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s: %w", c.GetName(), err)
		}
	}
	for _, c := range []*TestClient{pts.clientA, pts.clientB} {
		if err := c.WaitForActive(pts.config.ConnectionTimeout); err != nil {
			return err
		}
	}

	pts.logger.WithFields(logrus.Fields{
		"alice": pts.clientA.GetClientID(),
		"bob":   pts.clientB.GetClientID(),
	}).Info("Both clients active")
	return nil
}

func (pts *ProtocolTestSuite) relayName() string {
	if pts.config.RelayURL == "" {
		return "in-process"
	}
	return pts.config.RelayURL
}

// establishPairing pairs Bob with Alice through a token of Alice.
func (pts *ProtocolTestSuite) establishPairing(ctx context.Context) error {
	pts.logger.Info("Step 2: Pairing")

	var token string
	err := pts.retryOperation(ctx, func() error {
		var err error
		token, err = pts.clientA.GenerateToken(ctx, pts.config.PairingTimeout)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	if err := pts.retryOperation(ctx, func() error {
		return pts.clientB.PairByToken(ctx, token)
	}); err != nil {
		return fmt.Errorf("failed to pair: %w", err)
	}

	if err := pts.clientA.WaitForPeer(ctx, pts.clientB.GetClientID(), pts.config.PairingTimeout); err != nil {
		return err
	}
	if err := pts.clientB.WaitForPeer(ctx, pts.clientA.GetClientID(), pts.config.PairingTimeout); err != nil {
		return err
	}
	pts.logger.Info("Clients paired")
	return nil
}

// testMessageExchange sends one message in each direction.
func (pts *ProtocolTestSuite) testMessageExchange(ctx context.Context) error {
	pts.logger.Info("Step 3: Message exchange")

	if err := pts.exchange(ctx, pts.clientB, pts.clientA, "Hello Alice! This is Bob's first message."); err != nil {
		return err
	}
	if err := pts.exchange(ctx, pts.clientA, pts.clientB, "Hi Bob! This is Alice's reply message."); err != nil {
		return err
	}
	pts.logFinalMetrics()
	return nil
}

func (pts *ProtocolTestSuite) exchange(ctx context.Context, from, to *TestClient, text string) error {
	pts.logger.WithFields(logrus.Fields{
		"from": from.GetName(),
		"to":   to.GetName(),
	}).Info("Sending message")
	if err := from.SendMessage(ctx, to.GetClientID(), text); err != nil {
		return fmt.Errorf("%s failed to send: %w", from.GetName(), err)
	}
	received, err := to.WaitForMessage(pts.config.MessageTimeout)
	if err != nil {
		return err
	}
	if received.Content != text {
		return fmt.Errorf("message content mismatch: expected %q, got %q", text, received.Content)
	}
	if received.From != from.GetClientID() {
		return fmt.Errorf("message from %s, expected %s", received.From, from.GetClientID())
	}
	pts.logger.WithField("client", to.GetName()).Info("Message received")
	return nil
}

func (pts *ProtocolTestSuite) logFinalMetrics() {
	for _, c := range []*TestClient{pts.clientA, pts.clientB} {
		status := c.GetStatus()
		pts.logger.WithFields(logrus.Fields{
			"client":            status["name"],
			"messages_sent":     status["messages_sent"],
			"messages_received": status["messages_received"],
			"state_changes":     status["state_changes"],
		}).Info("Client metrics")
	}
	if pts.relay != nil {
		pts.logger.WithField("deliveries", len(pts.relay.GetDeliveryLog())).Info("Relay metrics")
	}
}

// retryOperation runs operation up to RetryAttempts times with doubling
// backoff.
func (pts *ProtocolTestSuite) retryOperation(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := pts.config.RetryBackoff
	attempts := pts.config.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			pts.logger.WithFields(logrus.Fields{
				"attempt":      attempt + 1,
				"max_attempts": attempts,
				"backoff":      backoff,
			}).Info("Retrying operation")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err
		pts.logger.WithFields(logrus.Fields{
			"attempt":      attempt + 1,
			"max_attempts": attempts,
			"error":        err,
		}).Warn("Operation failed")
	}
	return fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}

// Cleanup stops both clients.
func (pts *ProtocolTestSuite) Cleanup() error {
	pts.logger.Info("Cleaning up test resources")
	var errs []error
	for _, c := range []*TestClient{pts.clientA, pts.clientB} {
		if c == nil {
			continue
		}
		if err := c.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop %s: %w", c.GetName(), err))
		}
	}
	if len(errs) > 0 {
		for _, err := range errs {
			pts.logger.WithError(err).Warn("Cleanup error")
		}
		return fmt.Errorf("cleanup completed with %d errors", len(errs))
	}
	return nil
}
