package tcpserver

import (
	"errors"
	"net"

	"github.com/JaroslawMajcherczyk/PUS/protocol"
	"github.com/JaroslawMajcherczyk/PUS/slots"
)

type eventKind int

const (
	eventAccepted eventKind = iota
	eventAcceptFailed
	eventFrame
	eventClosed
)

// event is a readiness notification handed to the loop goroutine.
type event struct {
	kind    eventKind
	conn    net.Conn
	handle  slots.Handle
	serial  uint64
	payload []byte
	err     error
}

// deliver hands ev to the loop. It returns false once the server is
// shutting down and nobody will receive it.
func (s *TCPServer) deliver(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *TCPServer) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			if !s.deliver(event{kind: eventAcceptFailed, err: err}) {
				return
			}
			continue
		}

		if !s.deliver(event{kind: eventAccepted, conn: conn}) {
			_ = conn.Close()
			return
		}
	}
}

// readLoop turns every frame received on the slot's connection into an
// event, and reports the read error that ends it.
func (s *TCPServer) readLoop(sl slots.Slot) {
	defer s.wg.Done()

	r := protocol.NewReader(sl.Conn, s.config.MaxFrameSize)
	for {
		payload, err := r.ReadFrame()
		if err != nil {
			s.deliver(event{kind: eventClosed, handle: sl.Handle, serial: sl.Serial, err: err})
			return
		}

		if !s.deliver(event{kind: eventFrame, handle: sl.Handle, serial: sl.Serial, payload: payload}) {
			return
		}
	}
}
