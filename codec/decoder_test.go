package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_Feed(t *testing.T) {
	t.Run("whole frames in one call", func(t *testing.T) {
		d := NewDecoder(0)
		stream := append(Encode([]byte("one")), Encode([]byte("two"))...)

		frames, err := d.Feed(stream)
		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, frames)
		assert.False(t, d.Pending())
	})

	t.Run("byte at a time", func(t *testing.T) {
		d := NewDecoder(0)
		bodies := [][]byte{[]byte("<cmd>1</cmd>"), {}, bytes.Repeat([]byte("z"), 300)}
		var stream []byte
		for _, b := range bodies {
			stream = append(stream, Encode(b)...)
		}

		var got [][]byte
		for i := range stream {
			frames, err := d.Feed(stream[i : i+1])
			require.NoError(t, err)
			got = append(got, frames...)
		}

		require.Len(t, got, len(bodies))
		for i := range bodies {
			assert.True(t, bytes.Equal(bodies[i], got[i]), "frame %d", i)
		}
	})

	t.Run("partial header and body are buffered", func(t *testing.T) {
		d := NewDecoder(0)
		frame := Encode([]byte("hello"))

		frames, err := d.Feed(frame[:2])
		require.NoError(t, err)
		assert.Empty(t, frames)
		assert.Equal(t, 2, d.Buffered())

		frames, err = d.Feed(frame[2:6])
		require.NoError(t, err)
		assert.Empty(t, frames)
		assert.Equal(t, 6, d.Buffered())
		assert.True(t, d.Pending())

		frames, err = d.Feed(frame[6:])
		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("hello")}, frames)
		assert.Equal(t, 0, d.Buffered())
	})

	t.Run("empty body completes on header alone", func(t *testing.T) {
		d := NewDecoder(0)
		frames, err := d.Feed([]byte{0, 0, 0, 0})
		require.NoError(t, err)
		require.Len(t, frames, 1)
		assert.Empty(t, frames[0])
	})

	t.Run("oversized header fails closed", func(t *testing.T) {
		d := NewDecoder(8)
		frames, err := d.Feed(append(Encode([]byte("ok")), 0, 0, 0, 9))
		assert.ErrorIs(t, err, ErrFrameTooLarge)
		assert.Equal(t, [][]byte{[]byte("ok")}, frames)

		_, err = d.Feed([]byte("more"))
		assert.ErrorIs(t, err, ErrFrameTooLarge)
	})
}
