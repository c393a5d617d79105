// Package factory creates relay connectors for xotalk clients.
//
// The factory hides the choice between the WebSocket connector used in
// production and the in-memory simulated relay used by tests and demos.
// Consumers depend only on interfaces.IConnector.
//
// # Configuration
//
// NewConnectorFactory starts from config.Default with XOTALK_* environment
// overrides applied (see package config), so XOTALK_USE_SIMULATION=true
// selects the simulated relay without code changes.
//
// # Usage
//
//	f := factory.NewConnectorFactory(nil)
//	connector, err := f.CreateConnector()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// For tests, CreateSimulationForTesting returns a connector attached to the
// factory's shared SimulatedRelay so that several clients can talk to each
// other:
//
//	f := factory.NewConnectorFactory(nil)
//	alice := f.CreateSimulationForTesting()
//	bob := f.CreateSimulationForTesting()
//	relay := f.Relay()
package factory
