// Package internal provides the components of the xotalk network integration
// test suite.
//
// # Architecture Overview
//
//   - TestOrchestrator: runs the workflow with an overall timeout, tracks
//     steps and logs the final report
//   - ProtocolTestSuite: creates two clients, pairs them and exchanges
//     messages in both directions
//   - TestClient: wraps a xotalk.Client with an in-memory store and channels
//     the workflow waits on
//
// Without a relay URL both clients share an in-process relay from the
// testing package. With a URL they dial it through the WebSocket connector
// and register fresh identities.
//
// Example orchestrator usage:
//
//	config := internal.DefaultTestConfig()
//	config.RelayURL = "wss://relay.example.org/ws"
//
//	orchestrator, err := internal.NewTestOrchestrator(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	results, err := orchestrator.RunTests(ctx)
package internal
