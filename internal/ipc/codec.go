package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// MaxMessageSize bounds a single framed message body.
const MaxMessageSize = 1 << 20

const headerSize = 4

var (
	// ErrDisconnected is returned when the peer closed the connection
	// between messages.
	ErrDisconnected = errors.New("ipc: peer disconnected")

	// ErrMessageTooLarge is returned for frames above MaxMessageSize. The
	// connection cannot be resynchronised afterwards.
	ErrMessageTooLarge = errors.New("ipc: message too large")
)

// Request is the envelope sent by clients.
type Request struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the envelope returned for every request.
type Response struct {
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ReadFrame reads one length-prefixed message body.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if isDisconnect(err) {
			return nil, ErrDisconnected
		}
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		if isDisconnect(err) {
			return nil, ErrDisconnected
		}
		return nil, fmt.Errorf("failed to read frame body: %w", err)
	}
	return body, nil
}

// WriteFrame writes body behind a 4-byte big-endian length prefix.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(body))
	}

	buf := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[headerSize:], body)

	if _, err := w.Write(buf); err != nil {
		if isDisconnect(err) {
			return ErrDisconnected
		}
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// WriteMessage encodes v as JSON and writes it as one frame.
func WriteMessage(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return WriteFrame(w, body)
}

// ReadMessage reads one frame and decodes it into v.
func ReadMessage(r io.Reader, v any) error {
	body, err := ReadFrame(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
