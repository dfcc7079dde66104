// Package codec defines the length-prefixed frame layout used on the wire.
// A frame is a 4-byte big-endian body length followed by the body bytes. The
// package performs no I/O; transport and reactor consume the layout.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the size of the length prefix in bytes, regardless of body size.
const HeaderSize = 4

// DefaultMaxFrameSize bounds the body length accepted from a peer when no
// explicit limit is configured.
const DefaultMaxFrameSize uint32 = 1 << 20

var (
	// ErrShortHeader is returned when a header is not exactly HeaderSize bytes.
	ErrShortHeader = errors.New("codec: header must be 4 bytes")
	// ErrFrameTooLarge is returned when a declared body length exceeds the limit.
	ErrFrameTooLarge = errors.New("codec: frame too large")
	// ErrTruncated is returned by Decode when the frame holds fewer body bytes
	// than its header declares.
	ErrTruncated = errors.New("codec: truncated frame")
	// ErrTrailingBytes is returned by Decode when bytes follow the declared body.
	ErrTrailingBytes = errors.New("codec: trailing bytes after frame")
)

// Encode returns a new frame holding body prefixed with its length.
//
// Parameters:
//   - body: The message body; may be empty
//
// Returns:
//   - The encoded frame (HeaderSize + len(body) bytes)
func Encode(body []byte) []byte {
	return AppendFrame(make([]byte, 0, HeaderSize+len(body)), body)
}

// AppendFrame appends the frame for body to dst and returns the extended slice.
func AppendFrame(dst []byte, body []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(body)))
	return append(dst, body...)
}

// DecodeHeader converts a 4-byte network order header into the expected body length.
//
// Parameters:
//   - header: Exactly HeaderSize bytes
//
// Returns:
//   - The declared body length
//   - ErrShortHeader if header is not HeaderSize bytes long
func DecodeHeader(header []byte) (uint32, error) {
	if len(header) != HeaderSize {
		return 0, fmt.Errorf("%w: got %d", ErrShortHeader, len(header))
	}

	return binary.BigEndian.Uint32(header), nil
}

// CheckLength reports ErrFrameTooLarge when n exceeds max. A max of zero
// disables the check.
func CheckLength(n uint32, max uint32) error {
	if max > 0 && n > max {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFrameTooLarge, n, max)
	}

	return nil
}

// Decode is the inverse of Encode for a single complete frame.
//
// Parameters:
//   - frame: Exactly one encoded frame
//
// Returns:
//   - The body carried by the frame
//   - An error if the frame is short, truncated or followed by extra bytes
func Decode(frame []byte) ([]byte, error) {
	if len(frame) < HeaderSize {
		return nil, fmt.Errorf("%w: got %d", ErrShortHeader, len(frame))
	}

	n, _ := DecodeHeader(frame[:HeaderSize])
	rest := frame[HeaderSize:]
	switch {
	case uint64(len(rest)) < uint64(n):
		return nil, fmt.Errorf("%w: want %d body bytes, have %d", ErrTruncated, n, len(rest))
	case uint64(len(rest)) > uint64(n):
		return nil, fmt.Errorf("%w: %d extra", ErrTrailingBytes, uint64(len(rest))-uint64(n))
	}

	body := make([]byte, n)
	copy(body, rest)
	return body, nil
}
