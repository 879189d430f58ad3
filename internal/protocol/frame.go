package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
)

// MaxFrameSize is the largest frame payload the codec will accept.
// A bigger announced length is a protocol error and is rejected before
// any allocation happens.
const MaxFrameSize = 100 << 20

var (
	// ErrConnectionClosed is returned when the peer goes away mid-frame or
	// before a frame starts.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrFrameTooLarge is returned for an announced length above MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame exceeds size limit")
)

// ReadFrame reads one length-prefixed frame from r and returns the raw JSON
// payload. The prefix is a 4-byte big-endian unsigned length. A zero length
// is a valid empty object.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if isClosed(err) {
			return nil, ErrConnectionClosed
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: announced %d bytes", ErrFrameTooLarge, length)
	}
	if length == 0 {
		return []byte("{}"), nil
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if isClosed(err) {
			return nil, ErrConnectionClosed
		}
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return payload, nil
}

// ReadJSON reads one frame and unmarshals it into v.
func ReadJSON(r io.Reader, v any) error {
	payload, err := ReadFrame(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decoding frame: %w", err)
	}
	return nil
}

// WriteJSON marshals v and writes it as one length-prefixed frame.
func WriteJSON(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)

	if _, err := w.Write(buf); err != nil {
		if isClosed(err) {
			return ErrConnectionClosed
		}
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
