// Package calcclient implements the interactive calculator console: it reads
// equations from an input stream, validates them locally, forwards valid ones
// to the server and prints whatever the server answers.
//
// Console input is read by its own goroutine, so server messages (including
// the shutdown notice) are handled while the user is still typing.
package calcclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JaroslawMajcherczyk/PUS/equation"
	"github.com/JaroslawMajcherczyk/PUS/eventdriventcpclient"
	"github.com/JaroslawMajcherczyk/PUS/logger"
	"github.com/JaroslawMajcherczyk/PUS/perfmonitor"
	"github.com/JaroslawMajcherczyk/PUS/protocol"
	"github.com/JaroslawMajcherczyk/PUS/utils"
)

// Console messages.
const (
	MsgReply          = "Server reply: %s\n"
	MsgServerClosed   = "Server closed the connection."
	MsgServerShutdown = "Server has shut down."
	MsgDisconnecting  = "Client is disconnecting."
	MsgInvalidFormat  = "Error: invalid format. Try again."
	MsgInvalidRequest = "Error: invalid operator or division by zero."
)

// Transport is the connection the console talks through.
// *eventdriventcpclient.EventDrivenTCPClient satisfies it.
type Transport interface {
	OnConnectionState(handler eventdriventcpclient.ConnectionStateHandler)
	OnDataReceived(handler eventdriventcpclient.DataReceivedHandler)
	OnError(handler eventdriventcpclient.ErrorHandler)
	IsConnected() bool
	Send(data []byte) error
}

// Outcome tells why Run returned.
type Outcome int

const (
	UserDisconnected Outcome = iota // the user typed DISCONNECT
	InputClosed                     // the input stream ended
	Interrupted                     // ctx was cancelled
	ServerShutdown                  // the server announced its shutdown
	ServerClosed                    // the connection was lost
)

// String returns a short name for the outcome.
func (o Outcome) String() string {
	switch o {
	case UserDisconnected:
		return "user disconnected"
	case InputClosed:
		return "input closed"
	case Interrupted:
		return "interrupted"
	case ServerShutdown:
		return "server shutdown"
	case ServerClosed:
		return "server closed"
	default:
		return "unknown"
	}
}

// Config holds console settings.
type Config struct {
	// Prompt is printed whenever the console waits for an equation.
	Prompt string
}

// DefaultConfig returns the default console settings.
func DefaultConfig() Config {
	return Config{Prompt: "Enter equation (a operator b): "}
}

// Client is one interactive session over a connected Transport.
type Client struct {
	config    Config
	transport Transport
	out       io.Writer
	logger    logger.Logger
	rtt       *perfmonitor.PerformanceMonitor
}

// New creates a console session. The transport must already be connected.
//
// Parameters:
//   - config: Console settings
//   - transport: A connected transport
//   - out: Where prompts, replies and notices are printed
//   - log: Destination for diagnostics
//
// Returns:
//   - A new *Client
func New(config Config, transport Transport, out io.Writer, log logger.Logger) *Client {
	return &Client{
		config:    config,
		transport: transport,
		out:       out,
		logger:    log,
		rtt:       perfmonitor.NewPerformanceMonitor(),
	}
}

// Run drives the session until the user disconnects, the input ends, ctx is
// cancelled or the server goes away. In the first three cases the server is
// sent protocol.DisconnectToken. Run does not close the transport.
//
// Parameters:
//   - ctx: Cancelling ctx ends the session as an interrupt
//   - in: The console input, one equation per line
//
// Returns:
//   - Why the session ended
//   - A non-nil error only if writing a request to a live connection failed
func (c *Client) Run(ctx context.Context, in io.Reader) (Outcome, error) {
	done := make(chan struct{})
	defer close(done)

	replies := make(chan []byte, 16)
	lost := make(chan error, 1)

	c.transport.OnDataReceived(func(e eventdriventcpclient.DataReceivedEvent) {
		select {
		case replies <- e.Data:
		case <-done:
		}
	})
	c.transport.OnConnectionState(func(e eventdriventcpclient.ConnectionStateEvent) {
		if e.State != eventdriventcpclient.Disconnected {
			return
		}
		select {
		case lost <- e.Error:
		default:
		}
	})
	c.transport.OnError(func(e eventdriventcpclient.ErrorEvent) {
		c.logger.Warn("transport error", logger.Field{Key: "error", Value: errString(e.Error)})
	})

	// The connection may have dropped before the handlers above were in
	// place, in which case its Disconnected event is gone.
	if !c.transport.IsConnected() {
		if c.drain(replies) {
			return ServerShutdown, nil
		}
		c.logger.Info("connection lost before session start")
		c.println(MsgServerClosed)
		return ServerClosed, nil
	}

	lines := readLines(in, done)
	c.prompt()

	for {
		select {
		case <-ctx.Done():
			c.println(MsgDisconnecting)
			c.sendDisconnect()
			return Interrupted, nil

		case data := <-replies:
			if c.handleReply(data) {
				return ServerShutdown, nil
			}

		case err := <-lost:
			if c.drain(replies) {
				return ServerShutdown, nil
			}
			c.logger.Info("connection lost", logger.Field{Key: "error", Value: errString(err)})
			c.println(MsgServerClosed)
			return ServerClosed, nil

		case line, ok := <-lines:
			if !ok {
				c.sendDisconnect()
				return InputClosed, nil
			}

			outcome, finished, err := c.handleLine(line)
			if finished || err != nil {
				return outcome, err
			}
		}
	}
}

// handleReply prints a server message and reports whether it was the
// shutdown notice.
func (c *Client) handleReply(data []byte) bool {
	if protocol.IsShutdownNotice(data) {
		c.println(MsgServerShutdown)
		return true
	}

	if c.rtt.Running() {
		c.rtt.Stop()
		c.logger.Debug("reply received", logger.Field{Key: "elapsed_ms", Value: c.rtt.ElapsedMilliseconds()})
	}

	fmt.Fprintf(c.out, MsgReply, data)
	c.prompt()
	return false
}

// drain handles replies that arrived before the connection dropped.
func (c *Client) drain(replies <-chan []byte) bool {
	for {
		select {
		case data := <-replies:
			if c.handleReply(data) {
				return true
			}
		default:
			return false
		}
	}
}

func (c *Client) handleLine(line string) (Outcome, bool, error) {
	line = strings.TrimSpace(line)

	if line == protocol.DisconnectToken {
		c.println(MsgDisconnecting)
		c.sendDisconnect()
		return UserDisconnected, true, nil
	}

	eq, err := equation.Parse(line)
	if err != nil {
		if errors.Is(err, equation.ErrMalformed) {
			c.println(MsgInvalidFormat)
		} else {
			c.println(MsgInvalidRequest)
		}
		c.prompt()
		return 0, false, nil
	}

	request := eq.Compact()
	if err := c.transport.Send([]byte(request)); err != nil {
		if errors.Is(err, eventdriventcpclient.ErrNotConnected) {
			c.logger.Info("connection lost", logger.Field{Key: "request", Value: request})
			c.println(MsgServerClosed)
			return ServerClosed, true, nil
		}

		c.logger.Error("send failed", logger.Field{Key: "request", Value: request}, logger.Field{Key: "error", Value: err})
		c.println(MsgServerClosed)
		return ServerClosed, true, fmt.Errorf("send %q: %w", request, err)
	}

	c.rtt.Start()
	c.logger.Debug("request sent", logger.Field{Key: "request", Value: request})
	return 0, false, nil
}

func (c *Client) sendDisconnect() {
	if err := c.transport.Send([]byte(protocol.DisconnectToken)); err != nil {
		c.logger.Warn("disconnect notice not sent", logger.Field{Key: "error", Value: err})
	}
}

func (c *Client) prompt() {
	fmt.Fprint(c.out, c.config.Prompt)
}

func (c *Client) println(msg string) {
	fmt.Fprintln(c.out, msg)
}

// readLines pumps lines from in until it ends or done is closed. The
// returned channel is closed when in is exhausted.
func readLines(in io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)

	go func() {
		defer close(lines)

		r := bufio.NewReader(in)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				select {
				case lines <- utils.TrimLineEnding(line):
				case <-done:
					return
				}
			}

			if err != nil {
				return
			}
		}
	}()

	return lines
}

func errString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
