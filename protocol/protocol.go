// Package protocol defines the wire contract shared by the calculator client
// and server: length-prefixed text frames and the reserved control messages.
//
// A frame is a 4-byte little-endian payload length followed by the payload.
// Zero-length frames carry nothing and are skipped by Reader.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/JaroslawMajcherczyk/PUS/utils"
)

const (
	// HeaderSize is the size of the length prefix.
	HeaderSize = 4
	// DefaultMaxFrameSize bounds a single payload.
	DefaultMaxFrameSize = 1024

	// DisconnectToken asks the server to close the sender's connection
	// without a reply.
	DisconnectToken = "DISCONNECT"
	// ShutdownNotice is broadcast by the server to every connected client
	// right before it closes them on shutdown.
	ShutdownNotice = "SERVER_SHUTDOWN"
)

// ErrFrameTooLarge is returned when a frame exceeds the reader or writer limit.
var ErrFrameTooLarge = errors.New("frame too large")

// IsDisconnect reports whether payload is the disconnect request.
func IsDisconnect(payload []byte) bool {
	return string(payload) == DisconnectToken
}

// IsShutdownNotice reports whether payload is the server shutdown notice.
func IsShutdownNotice(payload []byte) bool {
	return string(payload) == ShutdownNotice
}

// Encode builds a complete frame for payload.
//
// Parameters:
//   - payload: The message text
//
// Returns:
//   - The length prefix followed by payload
func Encode(payload []byte) []byte {
	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header, uint32(len(payload)))
	return utils.JoinBytes(header, payload)
}

// WriteFrame writes payload to w as a single frame with one Write call.
//
// Parameters:
//   - w: The destination, usually a net.Conn
//   - payload: The message text
//
// Returns:
//   - An error if the write fails
func WriteFrame(w io.Writer, payload []byte) error {
	if _, err := w.Write(Encode(payload)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

// Reader reads frames from an underlying stream.
type Reader struct {
	r   io.Reader
	max int
}

// NewReader returns a Reader over r that rejects payloads longer than
// maxFrameSize. A non-positive maxFrameSize selects DefaultMaxFrameSize.
//
// Parameters:
//   - r: The source stream, usually a net.Conn
//   - maxFrameSize: Largest accepted payload in bytes
//
// Returns:
//   - A new *Reader
func NewReader(r io.Reader, maxFrameSize int) *Reader {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}

	return &Reader{r: r, max: maxFrameSize}
}

// ReadFrame blocks until one non-empty frame has been read.
//
// Returns:
//   - The payload of the next non-empty frame
//   - io.EOF if the stream ended cleanly between frames,
//     io.ErrUnexpectedEOF if it ended inside a frame,
//     ErrFrameTooLarge if the announced length exceeds the limit,
//     or the underlying read error
func (fr *Reader) ReadFrame() ([]byte, error) {
	for {
		var header bytes.Buffer
		if _, err := io.CopyN(&header, fr.r, HeaderSize); err != nil {
			if errors.Is(err, io.EOF) && header.Len() > 0 {
				return nil, io.ErrUnexpectedEOF
			}

			return nil, err
		}

		length := binary.LittleEndian.Uint32(header.Bytes())
		if length == 0 {
			continue
		}

		if uint64(length) > uint64(fr.max) {
			return nil, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, length, fr.max)
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(fr.r, payload); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}

			return nil, err
		}

		return payload, nil
	}
}
