package transport

import (
	"io"

	"github.com/cyberinferno/go-chatcore/codec"
)

// ReadExactly reads exactly n bytes from r. Running out of data before n bytes
// arrived is ErrConnectionLost; a partial buffer is never returned.
func ReadExactly(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}

	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, lost(err)
	}

	return buf, nil
}

// WriteExactly writes all of p to w, looping over short writes. Any failure is
// ErrConnectionLost; partial success is not reported.
func WriteExactly(w io.Writer, p []byte) error {
	if _, err := writeAll(w, p); err != nil {
		return lost(err)
	}

	return nil
}

func writeAll(w io.Writer, p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := w.Write(p[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}

	return written, nil
}

// ReadFrameFrom reads one frame from r and returns its body. A declared
// length above max (when max > 0) is fatal and reported as ErrConnectionLost
// wrapping codec.ErrFrameTooLarge.
//
// Parameters:
//   - r: The byte stream
//   - max: Largest accepted body length, 0 for no limit
//
// Returns:
//   - The frame body
//   - ErrConnectionLost if the header or body could not be read in full
func ReadFrameFrom(r io.Reader, max uint32) ([]byte, error) {
	header, err := ReadExactly(r, codec.HeaderSize)
	if err != nil {
		return nil, err
	}

	n, err := codec.DecodeHeader(header)
	if err != nil {
		return nil, lost(err)
	}
	if err := codec.CheckLength(n, max); err != nil {
		return nil, lost(err)
	}

	return ReadExactly(r, int(n))
}

// WriteFrameTo encodes body as a frame and writes all of it to w.
func WriteFrameTo(w io.Writer, body []byte) error {
	return WriteExactly(w, codec.Encode(body))
}
