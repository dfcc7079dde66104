// Package client is an event-driven chat client. It notifies callers of
// connection state changes, server responses and errors through registered
// handlers.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cyberinferno/go-chatcore/codec"
	"github.com/cyberinferno/go-chatcore/protocol"
	"github.com/cyberinferno/go-chatcore/transport"
)

// ConnectionState represents the current state of the client connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // Not connected yet
	Connecting                          // Dial in progress
	Connected                           // Ready to send commands
	Closed                              // Closed by the caller or the server; terminal
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

var (
	// ErrNotConnected is returned when sending before Connect or after Close.
	ErrNotConnected = errors.New("client: not connected")
	// ErrClosed is returned by Connect on a closed client.
	ErrClosed = errors.New("client: closed")
)

// StateEvent is emitted when the connection state changes.
type StateEvent struct {
	State     ConnectionState
	Address   string
	Timestamp time.Time
	Error     error // Non-nil if the change was caused by an error
}

// ResponseEvent is emitted for every frame received from the server.
type ResponseEvent struct {
	Response  protocol.Response
	Raw       []byte
	Timestamp time.Time
}

// ErrorEvent is emitted when a read, write, dial or decode error occurs.
type ErrorEvent struct {
	Error     error
	Timestamp time.Time
}

// StateHandler is called on state changes.
type StateHandler func(event StateEvent)

// ResponseHandler is called for each server response. Calls come from the
// read goroutine one at a time, in arrival order.
type ResponseHandler func(event ResponseEvent)

// ErrorHandler is called on errors.
type ErrorHandler func(event ErrorEvent)

// Config holds client settings.
type Config struct {
	// Address is the "host:port" of the chat server.
	Address string
	// ConnectionTimeout bounds name resolution plus connect.
	ConnectionTimeout time.Duration
	// WriteTimeout bounds each command; 0 uses the transport default.
	WriteTimeout time.Duration
	// MaxFrameSize bounds responses from the server.
	MaxFrameSize uint32
}

// DefaultConfig returns a Config with default values for address.
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		ConnectionTimeout: 10 * time.Second,
		WriteTimeout:      transport.DefaultWriteTimeout,
		MaxFrameSize:      codec.DefaultMaxFrameSize,
	}
}

// Client is a chat client. Register handlers, then call Connect. It is safe
// for concurrent use.
type Client struct {
	config Config

	mu     sync.RWMutex
	conn   *transport.Conn
	state  ConnectionState
	closed bool

	onState    StateHandler
	onResponse ResponseHandler
	onError    ErrorHandler

	wg sync.WaitGroup
}

// New returns a client in Disconnected state.
func New(config Config) *Client {
	return &Client{config: config, state: Disconnected}
}

// OnState registers the state handler, replacing any previous one.
func (c *Client) OnState(handler StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = handler
}

// OnResponse registers the response handler, replacing any previous one.
func (c *Client) OnResponse(handler ResponseHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResponse = handler
}

// OnError registers the error handler, replacing any previous one.
func (c *Client) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connect dials the server and starts the read goroutine.
//
// Returns:
//   - ErrClosed after Close, an error when already connected, or the
//     *transport.DialError of a failed dial
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != Disconnected {
		c.mu.Unlock()
		return fmt.Errorf("client: already %s", c.state)
	}
	c.mu.Unlock()

	c.setState(Connecting, nil)

	conn, err := transport.Dial(ctx, c.config.Address,
		transport.WithDialTimeout(c.config.ConnectionTimeout),
		transport.WithMaxFrameSize(c.config.MaxFrameSize))
	if err != nil {
		c.emitError(err)
		c.setState(Disconnected, err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(Connected, nil)

	c.wg.Add(1)
	go c.readLoop(conn)

	return nil
}

// Send writes one request frame.
func (c *Client) Send(req protocol.Request) error {
	c.mu.RLock()
	conn := c.conn
	state := c.state
	c.mu.RUnlock()

	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	if err := conn.WriteFrame(req.Encode(), c.config.WriteTimeout); err != nil {
		c.emitError(err)
		return err
	}

	return nil
}

// Register asks the server to create a user. The outcome arrives as a
// response with CodeRegisterOK or CodeRegisterFailed.
func (c *Client) Register(name, secret string) error {
	return c.Send(protocol.Request{Cmd: protocol.CmdRegister, Message: protocol.Credentials(name, secret)})
}

// Login authenticates. The outcome arrives as CodeLoginOK or CodeLoginFailed.
func (c *Client) Login(name, secret string) error {
	return c.Send(protocol.Request{Cmd: protocol.CmdLogin, Message: protocol.Credentials(name, secret)})
}

// Say broadcasts a chat line to every other logged in user.
func (c *Client) Say(name string, color int, message string) error {
	return c.Send(protocol.Request{Cmd: protocol.CmdChat, Name: name, Color: color, Message: message})
}

// Logout leaves the chat room. The server sends no reply.
func (c *Client) Logout() error {
	return c.Send(protocol.Request{Cmd: protocol.CmdLogout})
}

// Close closes the connection and waits for the read goroutine. It is
// idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.wg.Wait()

	c.setState(Closed, nil)
	return err
}

func (c *Client) readLoop(conn *transport.Conn) {
	defer c.wg.Done()

	fail := func(err error) {
		if !c.isClosed() {
			c.emitError(err)
			_ = conn.Close()
			c.setState(Closed, err)
		}
	}

	for {
		body, err := conn.ReadFrame(0)
		if err != nil {
			fail(err)
			return
		}

		// A malformed frame leaves the stream in an unknown state; treat it
		// like a lost connection.
		resp, err := protocol.ParseResponse(body)
		if err != nil {
			fail(err)
			return
		}

		c.emitResponse(ResponseEvent{Response: resp, Raw: body, Timestamp: time.Now()})
	}
}

// setState records state and notifies the handler when it changed. Closed
// is terminal.
func (c *Client) setState(state ConnectionState, err error) {
	c.mu.Lock()
	if c.state == state || c.state == Closed {
		c.mu.Unlock()
		return
	}
	c.state = state
	handler := c.onState
	c.mu.Unlock()

	if handler != nil {
		handler(StateEvent{State: state, Address: c.config.Address, Timestamp: time.Now(), Error: err})
	}
}

func (c *Client) emitResponse(event ResponseEvent) {
	c.mu.RLock()
	handler := c.onResponse
	c.mu.RUnlock()

	if handler != nil {
		handler(event)
	}
}

func (c *Client) emitError(err error) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()

	if handler != nil {
		handler(ErrorEvent{Error: err, Timestamp: time.Now()})
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
