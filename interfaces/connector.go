package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/opd-ai/xotalk/rpc"
)

// Configuration validation errors.
var (
	ErrInvalidTimeout = errors.New("interfaces: timeout must be positive")
	ErrMissingURL     = errors.New("interfaces: relay url is required")
)

// IConnector opens connections to the relay.
type IConnector interface {
	// Connect opens a connection. handler receives relay pushes; closed is
	// called once when the connection ends, with nil after Disconnect.
	Connect(ctx context.Context, handler rpc.NotificationHandler, closed func(error)) (rpc.Server, error)

	// Disconnect closes the current connection, if any.
	Disconnect() error

	// IsSimulation returns true if the relay is simulated in memory.
	IsSimulation() bool
}

// ConnectorConfig holds configuration for connector implementations.
type ConnectorConfig struct {
	// UseSimulation selects the in-memory relay.
	UseSimulation bool

	// URL is the relay WebSocket endpoint.
	URL string

	// Protocols lists the wire subprotocols to offer, in order of preference.
	Protocols []string

	// ConnectTimeout bounds the transport handshake.
	ConnectTimeout time.Duration

	// RequestTimeout bounds every RPC call.
	RequestTimeout time.Duration
}

// Validate checks the configuration.
func (c *ConnectorConfig) Validate() error {
	if c.ConnectTimeout <= 0 || c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if !c.UseSimulation && c.URL == "" {
		return ErrMissingURL
	}
	return nil
}
