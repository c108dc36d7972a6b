package dash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ReconnectDelay is the fixed wait between a close and the next dial.
const ReconnectDelay = 1500 * time.Millisecond

const (
	writeTimeout = 3 * time.Second
	// Map frames carry a full gray grid as JSON numbers.
	readLimit = 64 << 20
)

// Conn is the subset of *websocket.Conn the channel uses.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// DialFunc opens a connection to url.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// Sink receives connection lifecycle changes and raw inbound frames.
type Sink interface {
	ConnectionChanged(state ConnectionState)
	FrameReceived(frame []byte)
}

// WebsocketDial is the production DialFunc.
func WebsocketDial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c.SetReadLimit(readLimit)
	return c, nil
}

// Channel keeps one duplex connection to the control server alive.
// A single Run loop owns the socket, so at most one connection or pending
// reconnect exists at any time.
type Channel struct {
	url   string
	dial  DialFunc
	clock Clock
	delay time.Duration
	sink  Sink

	mu    sync.RWMutex
	conn  Conn
	state ConnectionState
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithDialer replaces the websocket dialer.
func WithDialer(d DialFunc) ChannelOption {
	return func(c *Channel) { c.dial = d }
}

// WithClock replaces the clock that times the reconnect delay.
func WithClock(clk Clock) ChannelOption {
	return func(c *Channel) { c.clock = clk }
}

// WithReconnectDelay overrides ReconnectDelay.
func WithReconnectDelay(d time.Duration) ChannelOption {
	return func(c *Channel) {
		if d > 0 {
			c.delay = d
		}
	}
}

// NewChannel creates a channel to url that reports to sink.
func NewChannel(url string, sink Sink, opts ...ChannelOption) *Channel {
	c := &Channel{
		url:   url,
		dial:  WebsocketDial,
		clock: RealClock{},
		delay: ReconnectDelay,
		sink:  sink,
		state: StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint the channel dials.
func (c *Channel) URL() string { return c.url }

// State returns the current connection state.
func (c *Channel) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether sends are currently possible.
func (c *Channel) IsConnected() bool {
	return c.State() == StateConnected
}

// Run dials, reads until the connection drops, waits the reconnect delay
// and dials again. It returns only when ctx is cancelled.
func (c *Channel) Run(ctx context.Context) error {
	for {
		c.setState(StateConnecting)
		Logf("[WS] Connecting to %s", c.url)

		conn, err := c.dial(ctx, c.url)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateDisconnected)
				return ctx.Err()
			}
			Logf("[WS] Connect failed: %v", err)
			c.setState(StateError)
		} else {
			c.attach(conn)
			Logf("[WS] Connected to %s", c.url)
			err = c.readLoop(ctx, conn)
			c.detach()
			_ = conn.Close(websocket.StatusNormalClosure, "")
			if ctx.Err() != nil {
				c.setState(StateDisconnected)
				return ctx.Err()
			}
			if !isCleanClose(err) {
				Logf("[WS] Connection error: %v", err)
				c.setState(StateError)
			}
		}

		c.setState(StateDisconnected)
		Logf("[WS] Disconnected, reconnecting in %v", c.delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(c.delay):
		}
	}
}

func (c *Channel) readLoop(ctx context.Context, conn Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if c.sink != nil {
			c.sink.FrameReceived(data)
		}
	}
}

func isCleanClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

// Send encodes v as JSON and writes it if the channel is connected.
// When not connected the message is dropped; it is never queued.
// It reports whether the frame was written.
func (c *Channel) Send(v any) bool {
	c.mu.RLock()
	conn, state := c.conn, c.state
	c.mu.RUnlock()
	if conn == nil || state != StateConnected {
		return false
	}

	payload, err := json.Marshal(v)
	if err != nil {
		Logf("[WS] Encoding outbound message: %v", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		Logf("[WS] Write failed: %v", err)
		return false
	}
	return true
}

func (c *Channel) attach(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnected)
}

func (c *Channel) detach() {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
}

func (c *Channel) setState(s ConnectionState) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.sink != nil {
		c.sink.ConnectionChanged(s)
	}
}

// ErrNotConnected is returned by operations that need a live connection.
var ErrNotConnected = errors.New("not connected to control server")

// BuildURL assembles ws://host:port/path.
func BuildURL(host string, port int, path string) string {
	if path == "" {
		path = "/"
	}
	if path[0] != '/' {
		path = "/" + path
	}
	return fmt.Sprintf("ws://%s:%d%s", host, port, path)
}
