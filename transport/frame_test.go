package transport

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-chatcore/codec"
)

// chunkReader hands out at most a few bytes per Read.
type chunkReader struct {
	data []byte
	rng  *rand.Rand
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := 1 + r.rng.Intn(3)
	n = min(n, len(p), len(r.data))
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

// chunkWriter accepts at most limit bytes per Write.
type chunkWriter struct {
	buf   bytes.Buffer
	limit int
	calls int
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	w.calls++
	if len(p) > w.limit {
		p = p[:w.limit]
	}
	return w.buf.Write(p)
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("broken pipe")
	}
	n := min(len(p), w.after)
	w.after -= n
	return n, nil
}

func TestReadExactly(t *testing.T) {
	t.Run("reassembles chunked input", func(t *testing.T) {
		r := &chunkReader{data: []byte("hello world"), rng: rand.New(rand.NewSource(1))}
		got, err := ReadExactly(r, 11)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(got))
	})

	t.Run("zero bytes", func(t *testing.T) {
		got, err := ReadExactly(bytes.NewReader(nil), 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("short stream is connection lost", func(t *testing.T) {
		got, err := ReadExactly(bytes.NewReader([]byte("abc")), 5)
		assert.ErrorIs(t, err, ErrConnectionLost)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		assert.Nil(t, got)
	})

	t.Run("empty stream is connection lost", func(t *testing.T) {
		_, err := ReadExactly(bytes.NewReader(nil), 4)
		assert.ErrorIs(t, err, ErrConnectionLost)
	})
}

func TestWriteExactly(t *testing.T) {
	t.Run("loops over short writes", func(t *testing.T) {
		w := &chunkWriter{limit: 3}
		require.NoError(t, WriteExactly(w, []byte("abcdefghij")))
		assert.Equal(t, "abcdefghij", w.buf.String())
		assert.Equal(t, 4, w.calls)
	})

	t.Run("failure midway is connection lost", func(t *testing.T) {
		err := WriteExactly(&failingWriter{after: 4}, []byte("abcdefghij"))
		assert.ErrorIs(t, err, ErrConnectionLost)
	})
}

func TestFrameFromChunkedStream(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, size := range []int{0, 1, 3, 4, 5, 100, 4096} {
		body := make([]byte, size)
		rng.Read(body)

		w := &chunkWriter{limit: 1 + rng.Intn(7)}
		require.NoError(t, WriteFrameTo(w, body))

		r := &chunkReader{data: w.buf.Bytes(), rng: rng}
		got, err := ReadFrameFrom(r, 0)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, body, got, "size %d", size)
		assert.Empty(t, r.data, "size %d", size)
	}
}

func TestReadFrameFrom(t *testing.T) {
	t.Run("consecutive frames", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteFrameTo(&buf, []byte("one")))
		require.NoError(t, WriteFrameTo(&buf, nil))
		require.NoError(t, WriteFrameTo(&buf, []byte("three")))

		for _, want := range []string{"one", "", "three"} {
			got, err := ReadFrameFrom(&buf, 0)
			require.NoError(t, err)
			assert.Equal(t, want, string(got))
		}
	})

	t.Run("truncated body", func(t *testing.T) {
		frame := codec.Encode([]byte("truncated"))
		_, err := ReadFrameFrom(bytes.NewReader(frame[:8]), 0)
		assert.ErrorIs(t, err, ErrConnectionLost)
	})

	t.Run("oversized header", func(t *testing.T) {
		frame := codec.Encode(make([]byte, 64))
		_, err := ReadFrameFrom(bytes.NewReader(frame), 16)
		assert.ErrorIs(t, err, ErrConnectionLost)
		assert.ErrorIs(t, err, codec.ErrFrameTooLarge)
	})
}
