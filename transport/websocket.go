package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/opd-ai/xotalk/interfaces"
	"github.com/opd-ai/xotalk/limits"
	"github.com/opd-ai/xotalk/rpc"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a frame to the relay.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the relay.
	pongWait = 60 * time.Second

	// Pings are sent with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Outbound frames buffered per connection.
	sendBuffer = 64
)

// WebSocketConnector implements interfaces.IConnector over a WebSocket to the
// relay. The wire codec follows the negotiated subprotocol.
type WebSocketConnector struct {
	config interfaces.ConnectorConfig

	// Dialer is used for the handshake; nil uses websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// Header is sent with the handshake request.
	Header http.Header

	mu      sync.Mutex
	current *wsConn
}

var _ interfaces.IConnector = (*WebSocketConnector)(nil)

// NewWebSocketConnector creates a connector for cfg.
func NewWebSocketConnector(cfg *interfaces.ConnectorConfig) (*WebSocketConnector, error) {
	if cfg == nil {
		return nil, errors.New("transport: connector config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := *cfg
	if len(c.Protocols) == 0 {
		c.Protocols = append([]string(nil), rpc.Protocols...)
	}
	return &WebSocketConnector{config: c}, nil
}

// Connect implements interfaces.IConnector. An open connection is closed
// first.
func (c *WebSocketConnector) Connect(ctx context.Context, handler rpc.NotificationHandler, closed func(error)) (rpc.Server, error) {
	_ = c.Disconnect()

	dialer := websocket.DefaultDialer
	if c.Dialer != nil {
		dialer = c.Dialer
	}
	d := *dialer
	d.HandshakeTimeout = c.config.ConnectTimeout
	d.Subprotocols = c.config.Protocols

	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()
	ws, resp, err := d.DialContext(dialCtx, c.config.URL, c.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "WebSocketConnector.Connect",
			"url":      c.config.URL,
			"error":    err.Error(),
		}).Warn("Relay handshake failed")
		return nil, fmt.Errorf("transport: dial %s: %w", c.config.URL, err)
	}

	codec, err := rpc.CodecForProtocol(ws.Subprotocol())
	if err != nil {
		ws.Close()
		return nil, err
	}

	conn := newWSConn(ws, codec, handler, closed, c.config.RequestTimeout)
	c.mu.Lock()
	c.current = conn
	c.mu.Unlock()
	conn.start(func() {
		c.mu.Lock()
		if c.current == conn {
			c.current = nil
		}
		c.mu.Unlock()
	})

	logrus.WithFields(logrus.Fields{
		"function": "WebSocketConnector.Connect",
		"url":      c.config.URL,
		"protocol": codec.Protocol(),
	}).Info("Connected to relay")
	return conn.proxy, nil
}

// Disconnect implements interfaces.IConnector.
func (c *WebSocketConnector) Disconnect() error {
	c.mu.Lock()
	conn := c.current
	c.current = nil
	c.mu.Unlock()
	if conn != nil {
		conn.shutdown()
	}
	return nil
}

// IsSimulation implements interfaces.IConnector.
func (c *WebSocketConnector) IsSimulation() bool {
	return false
}

type outFrame struct {
	data   []byte
	binary bool
}

// wsConn owns one WebSocket. A read pump feeds frames to the proxy and a
// write pump serializes outbound frames and pings.
type wsConn struct {
	ws     *websocket.Conn
	codec  rpc.Codec
	proxy  *rpc.Proxy
	closed func(error)

	out      chan outFrame
	done     chan struct{}
	stopOnce sync.Once
}

func newWSConn(ws *websocket.Conn, codec rpc.Codec, handler rpc.NotificationHandler, closed func(error), timeout time.Duration) *wsConn {
	conn := &wsConn{
		ws:     ws,
		codec:  codec,
		closed: closed,
		out:    make(chan outFrame, sendBuffer),
		done:   make(chan struct{}),
	}
	conn.proxy = rpc.NewProxy(codec, conn.send, handler, timeout)
	return conn
}

func (c *wsConn) send(ctx context.Context, frame []byte) error {
	select {
	case c.out <- outFrame{data: frame, binary: c.codec.Binary()}:
		return nil
	case <-c.done:
		return rpc.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *wsConn) start(finished func()) {
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(c.readPump)
	g.Go(func() error { return c.writePump(ctx) })
	go func() {
		err := g.Wait()
		finished()
		c.proxy.Close(err)
		if c.closed != nil {
			c.closed(err)
		}
		fields := logrus.Fields{"function": "wsConn.start"}
		if err != nil {
			fields["error"] = err.Error()
			logrus.WithFields(fields).Warn("Relay connection lost")
		} else {
			logrus.WithFields(fields).Info("Relay connection closed")
		}
	}()
}

func (c *wsConn) shutdown() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *wsConn) stopping() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readPump delivers inbound frames until the socket fails. Errors after a
// local shutdown are not reported.
func (c *wsConn) readPump() error {
	c.ws.SetReadLimit(limits.MaxFrameSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.stopping() {
				return nil
			}
			return fmt.Errorf("transport: read: %w", err)
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.proxy.HandleFrame(data)
	}
}

// writePump writes queued frames and periodic pings. It closes the socket on
// return, which also ends the read pump.
func (c *wsConn) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case f := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			kind := websocket.TextMessage
			if f.binary {
				kind = websocket.BinaryMessage
			}
			if err := c.ws.WriteMessage(kind, f.data); err != nil {
				return fmt.Errorf("transport: write: %w", err)
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("transport: ping: %w", err)
			}
		case <-c.done:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return nil
		case <-ctx.Done():
			// the read pump failed
			return nil
		}
	}
}
