// Package rpc defines the relay RPC surface and implements it over JSON-RPC 2.0
// frames.
//
// Server lists every call the client makes on the relay. NotificationHandler
// receives the pushes the relay sends back on the same connection. Proxy is a
// Server that encodes calls with a Codec and hands the frames to a transport,
// matching responses by id.
//
// Two codecs exist and are selected by the WebSocket subprotocol negotiated at
// connect time:
//
//	xo.talk.v1.json   text frames, encoding/json
//	xo.talk.v1.cbor   binary frames, CBOR with the same field names
//
// Use CodecForProtocol to look one up:
//
//	codec, err := rpc.CodecForProtocol(conn.Subprotocol())
//	proxy := rpc.NewProxy(codec, send, handler, 60*time.Second)
//	id, err := proxy.GenerateID(ctx)
package rpc
