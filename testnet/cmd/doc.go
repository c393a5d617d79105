// Command testnet runs the xotalk network integration test: two fresh
// identities connect to a relay, pair through a token and exchange one
// message in each direction.
//
// # Usage
//
// Against the in-process relay:
//
//	go run ./testnet/cmd
//
// Against a relay server:
//
//	go run ./testnet/cmd --relay wss://relay.example.org/ws --protocol xo.talk.v1.json
//
// # Exit Codes
//
//   - 0: all steps passed
//   - 1: configuration error or test failure
//
// SIGINT cancels the run; both clients are closed before exiting.
package main
