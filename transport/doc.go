// Package transport connects the client to a real relay.
//
// [WebSocketConnector] implements interfaces.IConnector over a single
// WebSocket. The handshake offers every protocol in rpc.Protocols (or the
// configured subset) as a WebSocket subprotocol and the relay's choice picks
// the wire codec:
//
//	conn, err := transport.NewWebSocketConnector(&interfaces.ConnectorConfig{
//	    URL:            "wss://relay.example.org/ws",
//	    ConnectTimeout: 15 * time.Second,
//	    RequestTimeout: 60 * time.Second,
//	})
//	srv, err := conn.Connect(ctx, handler, func(err error) {
//	    // connection ended
//	})
//
// Each connection runs a read pump and a write pump under an errgroup. The
// write pump owns every write to the socket, including pings; the read pump
// hands frames to an rpc.Proxy, which resolves pending calls and dispatches
// pushes to the handler. Whichever pump fails first ends both, and the closed
// callback runs exactly once afterwards.
//
// Connect closes any previous connection first, so at most one connection is
// open per connector.
package transport
