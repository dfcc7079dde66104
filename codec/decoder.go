package codec

// Decoder reassembles frames from a byte stream delivered in arbitrary chunks.
// It keeps the partially received header or body between calls to Feed, which
// lets a caller read whatever bytes are available without ever blocking for
// the rest of a frame. A Decoder is not safe for concurrent use.
type Decoder struct {
	max  uint32
	buf  []byte
	want int // body length of the frame in progress, -1 while reading a header
	err  error
}

// NewDecoder returns a Decoder rejecting bodies larger than max. A max of
// zero means DefaultMaxFrameSize.
func NewDecoder(max uint32) *Decoder {
	if max == 0 {
		max = DefaultMaxFrameSize
	}

	return &Decoder{max: max, want: -1}
}

// Feed appends p to the internal buffer and returns every body completed by
// it, in stream order. Once Feed returns an error the stream is unusable and
// every later call returns the same error.
//
// Parameters:
//   - p: Bytes just received; not retained after Feed returns
//
// Returns:
//   - Completed bodies (possibly none)
//   - ErrFrameTooLarge if a header declares a body above the limit
func (d *Decoder) Feed(p []byte) ([][]byte, error) {
	if d.err != nil {
		return nil, d.err
	}

	d.buf = append(d.buf, p...)

	var frames [][]byte
	for {
		if d.want < 0 {
			if len(d.buf) < HeaderSize {
				break
			}

			n, _ := DecodeHeader(d.buf[:HeaderSize])
			if err := CheckLength(n, d.max); err != nil {
				d.err = err
				d.buf = nil
				return frames, err
			}

			d.want = int(n)
			d.buf = d.buf[HeaderSize:]
		}

		if len(d.buf) < d.want {
			break
		}

		body := make([]byte, d.want)
		copy(body, d.buf[:d.want])
		frames = append(frames, body)
		d.buf = d.buf[d.want:]
		d.want = -1
	}

	// Drop the consumed prefix so the backing array does not grow without bound.
	if len(d.buf) == 0 {
		d.buf = nil
	} else if cap(d.buf) > 4*len(d.buf) && cap(d.buf) > 4096 {
		d.buf = append([]byte(nil), d.buf...)
	}

	return frames, nil
}

// Buffered returns the number of bytes of an incomplete frame held by the
// Decoder, including a header that has already been consumed.
func (d *Decoder) Buffered() int {
	if d.want >= 0 {
		return HeaderSize + len(d.buf)
	}

	return len(d.buf)
}

// Pending reports whether the Decoder holds part of a frame.
func (d *Decoder) Pending() bool {
	return d.want >= 0 || len(d.buf) > 0
}
