// Package testing provides an in-memory simulated relay for deterministic
// testing of xotalk clients.
//
// # Overview
//
// SimulatedRelay implements the server side of the relay protocol entirely in
// memory: SRP registration and login against real verifiers, presence and key
// publication, token pairing, groups with per-member key distribution, and
// message delivery with the delivering, delivered and confirmed round trip.
// Several clients can share one relay and exchange messages.
//
// # Simulation vs Real Implementation
//
//   - Simulation (this package): SimulatedConnector hands out sessions on a
//     SimulatedRelay. Pushes are delivered by calling the client's
//     rpc.NotificationHandler directly.
//
//   - Real (transport package): WebSocketConnector dials a relay and speaks
//     JSON-RPC over the negotiated codec.
//
// Both implement interfaces.IConnector, and the factory package selects one
// from an interfaces.ConnectorConfig.
//
// # Usage
//
//	relay := testing.NewSimulatedRelay()
//	client, _ := xotalk.New(&xotalk.Options{Connector: relay.Connector(), ...})
//	client.Activate()
//
//	// inject a failure for the next call of a method
//	relay.FailNext(rpc.MethodSRPRegister, errors.New("rejected"))
//
//	// drop every open connection as a server restart would
//	relay.DropConnections(errors.New("restart"))
//
// # Delivery Logs
//
// Every accepted delivery is recorded. Each DeliveryRecord contains:
//
//   - MessageID: The relay-assigned message id
//   - SenderID / ReceiverID / GroupID: The routing of the delivery
//   - Size: Length of the encrypted body
//   - Pushed: Whether the receiver was online when the delivery was accepted
//
// Use GetDeliveryLog to retrieve the log, CallCount to count RPC invocations,
// and ClearDeliveryLog to reset between test cases.
//
// # Thread Safety
//
// All methods on SimulatedRelay are safe for concurrent use. Pushes are made
// after the relay's lock is released.
package testing
