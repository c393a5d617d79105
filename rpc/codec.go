package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Subprotocols offered during the WebSocket handshake, in order of preference.
const (
	ProtocolCBOR = "xo.talk.v1.cbor"
	ProtocolJSON = "xo.talk.v1.json"
)

// Protocols lists the supported subprotocols in order of preference.
var Protocols = []string{ProtocolCBOR, ProtocolJSON}

// Value is a still-encoded parameter or result.
type Value interface {
	Decode(v any) error
}

// Frame is one decoded JSON-RPC message. A frame with a Method is a request
// (or a notification when ID is nil); otherwise it is a response.
type Frame struct {
	ID     *uint64
	Method string
	Params []Value
	Result Value
	Error  *Error
}

// IsRequest reports whether the frame carries a method call.
func (f *Frame) IsRequest() bool {
	return f.Method != ""
}

// Codec serializes frames for one subprotocol.
type Codec interface {
	Protocol() string
	// Binary reports whether frames are sent as binary messages.
	Binary() bool
	EncodeRequest(id *uint64, method string, params []any) ([]byte, error)
	EncodeResponse(id uint64, result any, rpcErr *Error) ([]byte, error)
	Decode(data []byte) (*Frame, error)
}

// CodecForProtocol returns the codec for a negotiated subprotocol. An empty
// protocol selects JSON.
func CodecForProtocol(protocol string) (Codec, error) {
	switch protocol {
	case ProtocolJSON, "":
		return JSONCodec{}, nil
	case ProtocolCBOR:
		return NewCBORCodec()
	default:
		return nil, fmt.Errorf("rpc: unsupported protocol %q", protocol)
	}
}

const jsonrpcVersion = "2.0"

type outEnvelope struct {
	JSONRPC string  `json:"jsonrpc"`
	ID      *uint64 `json:"id,omitempty"`
	Method  string  `json:"method,omitempty"`
	Params  []any   `json:"params,omitempty"`
	Result  any     `json:"result,omitempty"`
	Error   *Error  `json:"error,omitempty"`
}

func request(id *uint64, method string, params []any) *outEnvelope {
	if params == nil {
		params = []any{}
	}
	return &outEnvelope{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}
}

func response(id uint64, result any, rpcErr *Error) *outEnvelope {
	return &outEnvelope{JSONRPC: jsonrpcVersion, ID: &id, Result: result, Error: rpcErr}
}

// JSONCodec encodes frames as JSON text.
type JSONCodec struct{}

type jsonEnvelope struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      *uint64           `json:"id,omitempty"`
	Method  string            `json:"method,omitempty"`
	Params  []json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage   `json:"result,omitempty"`
	Error   *Error            `json:"error,omitempty"`
}

type jsonValue json.RawMessage

func (v jsonValue) Decode(out any) error {
	if len(v) == 0 {
		return nil
	}
	return json.Unmarshal(v, out)
}

// Protocol implements Codec.
func (JSONCodec) Protocol() string { return ProtocolJSON }

// Binary implements Codec.
func (JSONCodec) Binary() bool { return false }

// EncodeRequest implements Codec.
func (JSONCodec) EncodeRequest(id *uint64, method string, params []any) ([]byte, error) {
	return json.Marshal(request(id, method, params))
}

// EncodeResponse implements Codec.
func (JSONCodec) EncodeResponse(id uint64, result any, rpcErr *Error) ([]byte, error) {
	return json.Marshal(response(id, result, rpcErr))
}

// Decode implements Codec.
func (JSONCodec) Decode(data []byte) (*Frame, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("rpc: malformed json frame: %w", err)
	}
	f := &Frame{ID: env.ID, Method: env.Method, Error: env.Error}
	for _, p := range env.Params {
		f.Params = append(f.Params, jsonValue(p))
	}
	if len(env.Result) > 0 {
		f.Result = jsonValue(env.Result)
	}
	return f, nil
}

// CBORCodec encodes frames as CBOR using the same field names as JSON.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

type cborEnvelope struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      *uint64           `json:"id,omitempty"`
	Method  string            `json:"method,omitempty"`
	Params  []cbor.RawMessage `json:"params,omitempty"`
	Result  cbor.RawMessage   `json:"result,omitempty"`
	Error   *Error            `json:"error,omitempty"`
}

type cborValue struct {
	raw cbor.RawMessage
	dec cbor.DecMode
}

func (v cborValue) Decode(out any) error {
	if len(v.raw) == 0 {
		return nil
	}
	return v.dec.Unmarshal(v.raw, out)
}

// NewCBORCodec creates a CBOR codec. Times are encoded as RFC 3339 strings
// with nanoseconds.
func NewCBORCodec() (*CBORCodec, error) {
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("rpc: cbor encoder: %w", err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("rpc: cbor decoder: %w", err)
	}
	return &CBORCodec{enc: enc, dec: dec}, nil
}

// Protocol implements Codec.
func (*CBORCodec) Protocol() string { return ProtocolCBOR }

// Binary implements Codec.
func (*CBORCodec) Binary() bool { return true }

// EncodeRequest implements Codec.
func (c *CBORCodec) EncodeRequest(id *uint64, method string, params []any) ([]byte, error) {
	return c.enc.Marshal(request(id, method, params))
}

// EncodeResponse implements Codec.
func (c *CBORCodec) EncodeResponse(id uint64, result any, rpcErr *Error) ([]byte, error) {
	return c.enc.Marshal(response(id, result, rpcErr))
}

// Decode implements Codec.
func (c *CBORCodec) Decode(data []byte) (*Frame, error) {
	var env cborEnvelope
	if err := c.dec.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("rpc: malformed cbor frame: %w", err)
	}
	f := &Frame{ID: env.ID, Method: env.Method, Error: env.Error}
	for _, p := range env.Params {
		f.Params = append(f.Params, cborValue{raw: p, dec: c.dec})
	}
	if len(env.Result) > 0 {
		f.Result = cborValue{raw: env.Result, dec: c.dec}
	}
	return f, nil
}
