// Package interfaces defines the abstractions that let the client switch
// between a real relay connection and an in-memory simulated relay.
//
// # Core Interfaces
//
// [IConnector] opens one connection to the relay at a time. The session
// controller calls Connect from its serial queue when it enters CONNECTING or
// RECONNECTING and Disconnect when it drops to IDLE or INACTIVE:
//
//	srv, err := connector.Connect(ctx, handler, func(err error) {
//	    // runs exactly once when this connection ends
//	})
//	if err != nil {
//	    // transport error, retried with backoff
//	}
//	id, err := srv.GenerateID(ctx)
//
// Implementations exist in the transport package (WebSocket) and the testing
// package (simulated relay). The factory package picks one from a
// [ConnectorConfig].
//
// # Configuration
//
// [ConnectorConfig] holds the parameters shared by every implementation.
// Validate rejects non-positive timeouts and a missing URL for real
// connections:
//
//	cfg := &interfaces.ConnectorConfig{
//	    URL:            "wss://relay.example.org/",
//	    ConnectTimeout: 15 * time.Second,
//	    RequestTimeout: 60 * time.Second,
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// Implementations must tolerate Disconnect racing with a connection that is
// closing on its own; the closed callback still runs only once.
package interfaces
