// Package frame implements the wire format shared by the server, its players
// and the administrative console.
//
// A frame is a fixed-width header holding the ASCII decimal length of the
// payload (left-justified, padded with spaces) followed by the payload itself.
// Single raw control bytes are exchanged outside of framing for identities and
// acknowledgements.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// HeaderSize is the width of every frame header in bytes.
const HeaderSize = 128

// Control bytes sent without framing.
const (
	IdentityConsole byte = 0x02
	IdentityClient  byte = 0x04
	Ack             byte = 0xFF
	Nack            byte = 0xEE
)

// Reserved payloads and prefixes.
const (
	PositionPrefix    = "[]"
	ConsoleDisconnect = "<>"
	ClientDisconnect  = "><"
	Shutdown          = "exit"
)

// ErrMalformedHeader is returned when a header does not hold a usable length.
// It is a protocol violation; the connection should be dropped.
var ErrMalformedHeader = errors.New("malformed frame header")

// Encode prefixes payload with its header.
func Encode(payload []byte) []byte {
	out := make([]byte, HeaderSize+len(payload))
	for i := 0; i < HeaderSize; i++ {
		out[i] = ' '
	}
	copy(out, strconv.Itoa(len(payload)))
	copy(out[HeaderSize:], payload)
	return out
}

// EncodeString is Encode for UTF-8 text.
func EncodeString(s string) []byte {
	return Encode([]byte(s))
}

// parseHeader extracts the payload length from a complete header.
func parseHeader(header []byte, maxSize int) (int, error) {
	digits := bytes.TrimSpace(header)
	if len(digits) == 0 {
		return 0, fmt.Errorf("%w: empty length", ErrMalformedHeader)
	}
	for _, b := range digits {
		if b < '0' || b > '9' {
			return 0, fmt.Errorf("%w: %q", ErrMalformedHeader, digits)
		}
	}
	size, err := strconv.Atoi(string(digits))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if maxSize > 0 && size > maxSize {
		return 0, fmt.Errorf("%w: length %d exceeds limit %d", ErrMalformedHeader, size, maxSize)
	}
	return size, nil
}

// Decoder reassembles frames from a byte stream that may arrive in arbitrary
// pieces. It keeps whatever has not yet formed a whole frame between calls, so
// a peer trickling one byte at a time costs nothing but buffer space. The zero
// value is ready to use and enforces no size limit.
type Decoder struct {
	// MaxSize bounds the payload length a header may announce. Zero disables the check.
	MaxSize int

	buf        []byte
	size       int
	haveHeader bool
}

// NewDecoder returns a Decoder that rejects payloads larger than maxSize.
func NewDecoder(maxSize int) *Decoder {
	return &Decoder{MaxSize: maxSize}
}

// Feed appends b to the pending bytes and returns every frame payload that is
// now complete, in order. After an error the Decoder should be discarded.
func (d *Decoder) Feed(b []byte) ([][]byte, error) {
	d.buf = append(d.buf, b...)

	var frames [][]byte
	for {
		if !d.haveHeader {
			if len(d.buf) < HeaderSize {
				return frames, nil
			}
			size, err := parseHeader(d.buf[:HeaderSize], d.MaxSize)
			if err != nil {
				return frames, err
			}
			d.size = size
			d.haveHeader = true
			d.buf = d.buf[HeaderSize:]
		}

		if len(d.buf) < d.size {
			return frames, nil
		}

		payload := make([]byte, d.size)
		copy(payload, d.buf[:d.size])
		frames = append(frames, payload)

		d.buf = d.buf[d.size:]
		d.haveHeader = false
		if len(d.buf) == 0 {
			d.buf = nil
		}
	}
}

// Buffered reports how many bytes are held waiting for the rest of a frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// WriteFrame writes s to w as a single frame.
func WriteFrame(w io.Writer, s string) error {
	_, err := w.Write(EncodeString(s))
	return err
}

// WriteByte writes a single control byte to w.
func WriteByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// ReadFrame blocks until one full frame has been read from r.
func ReadFrame(r io.Reader) (string, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return "", err
	}
	size, err := parseHeader(header, 0)
	if err != nil {
		return "", err
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", err
	}
	return string(payload), nil
}

// ReadByte blocks until a single control byte has been read from r.
func ReadByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
