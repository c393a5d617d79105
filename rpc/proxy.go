package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrClosed is returned for calls pending or issued after the proxy closed.
var ErrClosed = errors.New("rpc: connection closed")

// SendFunc writes one encoded frame to the transport.
type SendFunc func(ctx context.Context, frame []byte) error

// Proxy implements Server over a frame transport. Responses and pushes are fed
// to it with HandleFrame.
type Proxy struct {
	codec   Codec
	send    SendFunc
	handler NotificationHandler
	timeout time.Duration

	mu       sync.Mutex
	nextID   uint64
	pending  map[uint64]chan *Frame
	closeErr error
}

// NewProxy creates a proxy. A positive timeout bounds every call.
func NewProxy(codec Codec, send SendFunc, handler NotificationHandler, timeout time.Duration) *Proxy {
	return &Proxy{
		codec:   codec,
		send:    send,
		handler: handler,
		timeout: timeout,
		pending: make(map[uint64]chan *Frame),
	}
}

// Codec returns the codec frames are encoded with.
func (p *Proxy) Codec() Codec {
	return p.codec
}

// Call invokes method with positional params and decodes the result into
// result, which may be nil.
func (p *Proxy) Call(ctx context.Context, method string, result any, params ...any) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	p.mu.Lock()
	if p.closeErr != nil {
		err := p.closeErr
		p.mu.Unlock()
		return err
	}
	p.nextID++
	id := p.nextID
	ch := make(chan *Frame, 1)
	p.pending[id] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	data, err := p.codec.EncodeRequest(&id, method, params)
	if err != nil {
		return fmt.Errorf("rpc: encode %s: %w", method, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Call",
		"method":   method,
		"id":       id,
	}).Debug("Sending request")

	if err := p.send(ctx, data); err != nil {
		return fmt.Errorf("rpc: send %s: %w", method, err)
	}

	select {
	case f := <-ch:
		if f == nil {
			p.mu.Lock()
			err := p.closeErr
			p.mu.Unlock()
			return fmt.Errorf("rpc: %s: %w", method, err)
		}
		if f.Error != nil {
			return fmt.Errorf("rpc: %s: %w", method, f.Error)
		}
		if result != nil && f.Result != nil {
			if err := f.Result.Decode(result); err != nil {
				return fmt.Errorf("rpc: decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("rpc: %s: %w", method, ctx.Err())
	}
}

// HandleFrame processes one frame received from the transport.
func (p *Proxy) HandleFrame(data []byte) {
	f, err := p.codec.Decode(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleFrame",
			"size":     len(data),
			"error":    err.Error(),
		}).Warn("Dropping undecodable frame")
		return
	}

	if !f.IsRequest() {
		p.resolve(f)
		return
	}

	rpcErr := p.dispatch(f)
	if f.ID == nil {
		return
	}
	resp, err := p.codec.EncodeResponse(*f.ID, nil, rpcErr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleFrame",
			"method":   f.Method,
			"error":    err.Error(),
		}).Error("Failed to encode response")
		return
	}
	if err := p.send(context.Background(), resp); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleFrame",
			"method":   f.Method,
			"error":    err.Error(),
		}).Debug("Failed to send response")
	}
}

func (p *Proxy) resolve(f *Frame) {
	if f.ID == nil {
		logrus.WithField("function", "resolve").Warn("Dropping response without id")
		return
	}
	p.mu.Lock()
	ch, ok := p.pending[*f.ID]
	if ok {
		delete(p.pending, *f.ID)
	}
	p.mu.Unlock()
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "resolve",
			"id":       *f.ID,
		}).Debug("Dropping response for unknown request")
		return
	}
	ch <- f
}

// Close fails every pending call with err and rejects later calls.
func (p *Proxy) Close(err error) {
	if err == nil {
		err = ErrClosed
	} else if !errors.Is(err, ErrClosed) {
		err = fmt.Errorf("%w: %v", ErrClosed, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closeErr != nil {
		return
	}
	p.closeErr = err
	for id, ch := range p.pending {
		ch <- nil
		delete(p.pending, id)
	}
}

func decodeParams(f *Frame, out ...any) *Error {
	if len(f.Params) < len(out) {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("%s expects %d params", f.Method, len(out))}
	}
	for i, o := range out {
		if err := f.Params[i].Decode(o); err != nil {
			return &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
	}
	return nil
}
