// Package tcpserver implements the calculator server: a single event loop
// that owns a fixed table of client slots, evaluates one equation per
// received frame and replies synchronously.
//
// Socket readiness is delivered to the loop as events by an accept goroutine
// and one reader goroutine per connection. Those goroutines never touch
// server state; every slot change happens on the loop goroutine inside Serve.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JaroslawMajcherczyk/PUS/cacher"
	"github.com/JaroslawMajcherczyk/PUS/logger"
	"github.com/JaroslawMajcherczyk/PUS/protocol"
	"github.com/JaroslawMajcherczyk/PUS/slots"
)

var (
	// ErrNotListening is returned by Serve when Listen has not succeeded.
	ErrNotListening = errors.New("server is not listening")
	// ErrAlreadyRunning is returned by Listen or Serve on a second call.
	ErrAlreadyRunning = errors.New("server already running")
)

// Config holds the server settings.
type Config struct {
	// Addr is the "host:port" to listen on.
	Addr string
	// MaxClients is the number of connection slots.
	MaxClients int
	// MaxFrameSize bounds a single request payload.
	MaxFrameSize int
	// ShutdownGrace is how long Serve waits after notifying and closing
	// every client before it returns.
	ShutdownGrace time.Duration
	// CacheTTL is how long an evaluated result is memoised; 0 disables the cache.
	CacheTTL time.Duration
}

// DefaultConfig returns the settings the calculator runs with out of the box.
//
// Returns:
//   - A Config with Addr 127.0.0.1:8080, MaxClients 10, MaxFrameSize 1024,
//     ShutdownGrace 2s and CacheTTL 1m
func DefaultConfig() Config {
	return Config{
		Addr:          "127.0.0.1:8080",
		MaxClients:    10,
		MaxFrameSize:  protocol.DefaultMaxFrameSize,
		ShutdownGrace: 2 * time.Second,
		CacheTTL:      time.Minute,
	}
}

// TCPServer is the calculator server. Create it with NewTCPServer, bind with
// Listen and run with Serve.
type TCPServer struct {
	config    Config
	logger    logger.Logger
	evaluator *Evaluator

	listener net.Listener
	slots    *slots.Table
	events   chan event
	done     chan struct{}
	wg       sync.WaitGroup

	running atomic.Bool
	active  atomic.Int32
}

// NewTCPServer creates a server that is not yet bound.
//
// Parameters:
//   - config: Server settings, usually derived from DefaultConfig
//   - log: Destination for diagnostics
//
// Returns:
//   - A new *TCPServer
func NewTCPServer(config Config, log logger.Logger) *TCPServer {
	var results cacher.Cacher[string]
	if config.CacheTTL > 0 {
		results = cacher.NewMemoryCacher[string](config.CacheTTL, 2*config.CacheTTL)
	}

	return &TCPServer{
		config:    config,
		logger:    log,
		evaluator: NewEvaluator(results, config.CacheTTL, log),
		slots:     slots.NewTable(config.MaxClients),
		events:    make(chan event),
		done:      make(chan struct{}),
	}
}

// Listen binds the listening socket. A failure here is a setup error and is
// meant to be fatal to the process.
//
// Returns:
//   - An error if the server is already bound or the address cannot be bound
func (s *TCPServer) Listen() error {
	if s.listener != nil {
		return ErrAlreadyRunning
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		s.logger.Error("server failed to listen", logger.Field{Key: "addr", Value: s.config.Addr}, logger.Field{Key: "error", Value: err})
		return fmt.Errorf("server failed to listen on %s: %w", s.config.Addr, err)
	}

	s.listener = ln
	s.logger.Info("server listening",
		logger.Field{Key: "addr", Value: ln.Addr().String()},
		logger.Field{Key: "max_clients", Value: s.slots.Capacity()},
	)

	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *TCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// ActiveClients returns the number of occupied slots. It may be called from
// any goroutine.
func (s *TCPServer) ActiveClients() int {
	return int(s.active.Load())
}

// Serve runs the event loop until ctx is cancelled. On cancellation it sends
// protocol.ShutdownNotice to every connected client, closes every connection
// and the listener, waits ShutdownGrace and returns nil. A server cannot be
// served twice.
//
// Parameters:
//   - ctx: Cancelling ctx is the shutdown signal
//
// Returns:
//   - nil after a graceful shutdown, ErrNotListening or ErrAlreadyRunning
func (s *TCPServer) Serve(ctx context.Context) error {
	if s.listener == nil {
		return ErrNotListening
	}

	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	s.wg.Add(1)
	go s.acceptLoop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case ev := <-s.events:
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *TCPServer) handleEvent(ctx context.Context, ev event) {
	switch ev.kind {
	case eventAccepted:
		s.admit(ev.conn)
	case eventAcceptFailed:
		s.logger.Error("accept failed", logger.Field{Key: "error", Value: ev.err})
	case eventFrame:
		if sl, ok := s.slots.Lookup(ev.handle, ev.serial); ok {
			s.serveRequest(ctx, sl, ev.payload)
		}
	case eventClosed:
		if sl, ok := s.slots.Lookup(ev.handle, ev.serial); ok {
			if errors.Is(ev.err, io.EOF) {
				s.logger.Info("client disconnected", slotFields(sl)...)
			} else {
				s.logger.Warn("client connection failed", append(slotFields(sl), logger.Field{Key: "error", Value: ev.err})...)
			}
			s.drop(sl)
		}
	}
}

// admit places conn into the first free slot or closes it straight away.
func (s *TCPServer) admit(conn net.Conn) {
	sl, err := s.slots.Acquire(conn)
	if err != nil {
		s.logger.Warn("connection refused",
			logger.Field{Key: "remote", Value: conn.RemoteAddr().String()},
			logger.Field{Key: "error", Value: err},
		)
		_ = conn.Close()
		return
	}

	s.active.Store(int32(s.slots.Len()))
	s.logger.Info("client connected", slotFields(sl)...)

	s.wg.Add(1)
	go s.readLoop(sl)
}

func (s *TCPServer) serveRequest(ctx context.Context, sl slots.Slot, payload []byte) {
	if protocol.IsDisconnect(payload) {
		s.logger.Info("client requested disconnect", slotFields(sl)...)
		s.drop(sl)
		return
	}

	reply := s.evaluator.Evaluate(ctx, string(payload))
	s.logger.Debug("request served", append(slotFields(sl),
		logger.Field{Key: "request", Value: string(payload)},
		logger.Field{Key: "reply", Value: reply},
	)...)

	if err := protocol.WriteFrame(sl.Conn, []byte(reply)); err != nil {
		s.logger.Warn("reply failed", append(slotFields(sl), logger.Field{Key: "error", Value: err})...)
		s.drop(sl)
	}
}

func (s *TCPServer) drop(sl slots.Slot) {
	if _, ok := s.slots.Release(sl.Handle); !ok {
		return
	}

	_ = sl.Conn.Close()
	s.active.Store(int32(s.slots.Len()))
}

func (s *TCPServer) shutdown() {
	s.logger.Info("server shutting down", logger.Field{Key: "clients", Value: s.slots.Len()})
	close(s.done)

	s.slots.Range(func(sl slots.Slot) bool {
		if err := protocol.WriteFrame(sl.Conn, []byte(protocol.ShutdownNotice)); err != nil {
			s.logger.Warn("shutdown notice failed", append(slotFields(sl), logger.Field{Key: "error", Value: err})...)
		}
		s.drop(sl)
		return true
	})

	_ = s.listener.Close()

	if s.config.ShutdownGrace > 0 {
		time.Sleep(s.config.ShutdownGrace)
	}

	s.wg.Wait()
	s.running.Store(false)
	s.logger.Info("server stopped")
}

func slotFields(sl slots.Slot) []logger.Field {
	return []logger.Field{
		{Key: "slot", Value: int(sl.Handle)},
		{Key: "serial", Value: sl.Serial},
		{Key: "remote", Value: sl.Conn.RemoteAddr().String()},
	}
}
