// Package eventdriventcpclient provides a framed TCP client that reports
// connection state changes, received messages and errors to registered
// handlers.
//
// Messages are exchanged as protocol frames. Handlers for received data and
// remote closure run on the client's single read goroutine, in arrival
// order; they must not call Close.
package eventdriventcpclient

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/JaroslawMajcherczyk/PUS/protocol"
)

var (
	// ErrNotConnected is returned by Send when there is no live connection.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("client is closed")
)

// ConnectionState represents the current state of the TCP connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // Not connected
	Connecting                          // Dial in progress
	Connected                           // Connection established
	Closed                              // Client closed; it will not connect again
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

// ConnectionStateEvent is emitted when the connection state changes.
type ConnectionStateEvent struct {
	State     ConnectionState // The new connection state
	Address   string          // The remote address (e.g. "host:port")
	Timestamp time.Time       // When the state change occurred
	Error     error           // Why the connection was lost; io.EOF when the peer closed it
}

// DataReceivedEvent carries one received message.
type DataReceivedEvent struct {
	Data      []byte    // The message payload; owned by the handler
	Timestamp time.Time // When the message was received
}

// ErrorEvent is emitted when a read, write, or dial error occurs.
type ErrorEvent struct {
	Error     error
	Timestamp time.Time
}

// ConnectionStateHandler is called when the connection state changes.
type ConnectionStateHandler func(event ConnectionStateEvent)

// DataReceivedHandler is called for every received message.
type DataReceivedHandler func(event DataReceivedEvent)

// ErrorHandler is called when a read, write, or dial error occurs.
type ErrorHandler func(event ErrorEvent)

// Config holds configuration for the client.
type Config struct {
	// Address is the "host:port" to connect to.
	Address string
	// ConnectionTimeout bounds the dial; 0 means no timeout.
	ConnectionTimeout time.Duration
	// WriteTimeout bounds a single Send; 0 means no timeout.
	WriteTimeout time.Duration
	// MaxFrameSize bounds a received message.
	MaxFrameSize int
}

// DefaultEventDrivenTCPClientConfig returns a Config for address with no
// timeouts and the default frame limit.
//
// Parameters:
//   - address: The "host:port" to connect to
//
// Returns:
//   - A Config ready to pass to NewEventDrivenTCPClient
func DefaultEventDrivenTCPClientConfig(address string) Config {
	return Config{
		Address:      address,
		MaxFrameSize: protocol.DefaultMaxFrameSize,
	}
}

// EventDrivenTCPClient is a framed TCP client driven by events. Register
// handlers, then call Connect. Methods are safe for concurrent use.
type EventDrivenTCPClient struct {
	config Config

	mu    sync.RWMutex
	conn  net.Conn
	state ConnectionState

	onConnectionState ConnectionStateHandler
	onDataReceived    DataReceivedHandler
	onError           ErrorHandler

	wg     sync.WaitGroup
	closed bool
}

// NewEventDrivenTCPClient creates a client in the Disconnected state.
//
// Parameters:
//   - config: Connection settings (e.g. from DefaultEventDrivenTCPClientConfig)
//
// Returns:
//   - A new *EventDrivenTCPClient; call Close when done
func NewEventDrivenTCPClient(config Config) *EventDrivenTCPClient {
	return &EventDrivenTCPClient{
		config: config,
		state:  Disconnected,
	}
}

// OnConnectionState registers the handler for connection state changes,
// replacing any previous one. Pass nil to clear it.
func (c *EventDrivenTCPClient) OnConnectionState(handler ConnectionStateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnectionState = handler
}

// OnDataReceived registers the handler for received messages, replacing any
// previous one. Pass nil to clear it.
func (c *EventDrivenTCPClient) OnDataReceived(handler DataReceivedHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDataReceived = handler
}

// OnError registers the handler for errors, replacing any previous one.
// Pass nil to clear it.
func (c *EventDrivenTCPClient) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// Connect dials the configured address once and starts the read goroutine.
// There is no automatic reconnection.
//
// Returns:
//   - nil on success; ErrClosed, an "already connected" error, or the dial error
func (c *EventDrivenTCPClient) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return fmt.Errorf("already connected or connecting")
	}
	c.state = Connecting
	c.mu.Unlock()
	c.emitConnectionState(Connecting, nil)

	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}
	conn, err := dialer.Dial("tcp", c.config.Address)
	if err != nil {
		c.setState(Disconnected, err)
		c.emitError(err)
		return fmt.Errorf("connect to %s: %w", c.config.Address, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.state = Connected
	c.wg.Add(1)
	c.mu.Unlock()

	c.emitConnectionState(Connected, nil)
	go c.readLoop(conn)

	return nil
}

// Send writes data as one frame. When WriteTimeout is set, the write is
// limited to that duration.
//
// Parameters:
//   - data: The message payload; not modified
//
// Returns:
//   - nil on success; ErrNotConnected or the write error
func (c *EventDrivenTCPClient) Send(data []byte) error {
	c.mu.RLock()
	conn := c.conn
	state := c.state
	c.mu.RUnlock()

	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	if c.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}

		defer func() {
			_ = conn.SetWriteDeadline(time.Time{})
		}()
	}

	if err := protocol.WriteFrame(conn, data); err != nil {
		c.emitError(err)
		return err
	}

	return nil
}

// Disconnect closes the current connection and moves to Disconnected.
// Connect may be called again afterwards. It is a no-op when not connected.
func (c *EventDrivenTCPClient) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil
	}
	c.conn = nil
	c.state = Disconnected
	c.mu.Unlock()

	err := conn.Close()
	c.emitConnectionState(Disconnected, nil)
	return err
}

// Close shuts the client down, closes the connection and waits for the read
// goroutine to finish. It is idempotent.
func (c *EventDrivenTCPClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.state = Closed
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	c.wg.Wait()
	c.emitConnectionState(Closed, nil)

	return nil
}

// GetState returns the current connection state.
func (c *EventDrivenTCPClient) GetState() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected returns true if the client is in Connected state.
func (c *EventDrivenTCPClient) IsConnected() bool {
	return c.GetState() == Connected
}

func (c *EventDrivenTCPClient) readLoop(conn net.Conn) {
	defer c.wg.Done()

	r := protocol.NewReader(conn, c.config.MaxFrameSize)
	for {
		payload, err := r.ReadFrame()
		if err != nil {
			c.connectionLost(conn, err)
			return
		}

		c.emitDataReceived(payload)
	}
}

// connectionLost reports the end of conn unless it was closed locally.
func (c *EventDrivenTCPClient) connectionLost(conn net.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = Disconnected
	c.mu.Unlock()

	_ = conn.Close()
	if !errors.Is(err, io.EOF) {
		c.emitError(err)
	}
	c.emitConnectionState(Disconnected, err)
}

func (c *EventDrivenTCPClient) setState(state ConnectionState, err error) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	c.emitConnectionState(state, err)
}

func (c *EventDrivenTCPClient) emitConnectionState(state ConnectionState, err error) {
	c.mu.RLock()
	handler := c.onConnectionState
	c.mu.RUnlock()

	if handler != nil {
		handler(ConnectionStateEvent{
			State:     state,
			Address:   c.config.Address,
			Timestamp: time.Now(),
			Error:     err,
		})
	}
}

func (c *EventDrivenTCPClient) emitDataReceived(data []byte) {
	c.mu.RLock()
	handler := c.onDataReceived
	c.mu.RUnlock()

	if handler != nil {
		handler(DataReceivedEvent{Data: data, Timestamp: time.Now()})
	}
}

func (c *EventDrivenTCPClient) emitError(err error) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()

	if handler != nil {
		handler(ErrorEvent{Error: err, Timestamp: time.Now()})
	}
}
