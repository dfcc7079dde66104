package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pair returns a connected client/server pair over loopback.
func pair(t *testing.T, opts ...Option) (client *Conn, server *Conn) {
	t.Helper()

	ln, err := Listen(context.Background(), "127.0.0.1:0", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	accepted := make(chan *Conn, 1)
	go func() {
		c, err := ln.AcceptTimeout(5 * time.Second)
		if err != nil {
			accepted <- nil
			return
		}
		accepted <- c
	}()

	client, err = Dial(context.Background(), ln.Addr().String(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	server = <-accepted
	require.NotNil(t, server)
	t.Cleanup(func() { _ = server.Close() })

	return client, server
}

func TestConn_Lifecycle(t *testing.T) {
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		if c, err := ln.Accept(); err == nil {
			defer c.Close()
			time.Sleep(time.Second)
		}
	}()

	tcp, err := net.DialTCP("tcp", nil, ln.Addr().(*net.TCPAddr))
	require.NoError(t, err)

	c, err := newConn(tcp, 0)
	require.NoError(t, err)
	defer c.Close()

	t.Run("new connection is connecting", func(t *testing.T) {
		assert.Equal(t, StateConnecting, c.State())
	})

	t.Run("establish moves to connected", func(t *testing.T) {
		require.NoError(t, c.establish())
		assert.Equal(t, StateConnected, c.State())
	})

	t.Run("close is terminal", func(t *testing.T) {
		require.NoError(t, c.Close())
		assert.Equal(t, StateClosed, c.State())
		c.advance(StateConnected)
		assert.Equal(t, StateClosed, c.State())
	})
}

func TestConn_Basics(t *testing.T) {
	client, server := pair(t)

	assert.NotEqual(t, client.ID(), server.ID())
	assert.Equal(t, StateConnected, client.State())
	assert.Equal(t, StateConnected, server.State())
	assert.GreaterOrEqual(t, client.Fd(), 0)
	assert.NotNil(t, server.RemoteAddr())

	require.NoError(t, client.WriteFrame([]byte("<cmd>3</cmd>"), 0))
	got, err := server.ReadFrame(0)
	require.NoError(t, err)
	assert.Equal(t, "<cmd>3</cmd>", string(got))
}

func TestConn_ReadFrameTimeout(t *testing.T) {
	client, server := pair(t)

	start := time.Now()
	_, err := server.ReadFrame(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrConnectionLost)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, StateConnected, server.State())

	// The connection stays usable after a timeout.
	require.NoError(t, client.WriteFrame([]byte("late"), time.Second))
	got, err := server.ReadFrame(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", string(got))
}

func TestConn_PeerClose(t *testing.T) {
	client, server := pair(t)

	require.NoError(t, client.Close())
	assert.Equal(t, StateClosed, client.State())

	_, err := server.ReadFrame(5 * time.Second)
	assert.ErrorIs(t, err, ErrConnectionLost)

	err = client.WriteFrame([]byte("x"), 0)
	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.ErrorIs(t, err, net.ErrClosed)

	// Close is idempotent.
	assert.NoError(t, client.Close())
}

func TestConn_Abort(t *testing.T) {
	client, server := pair(t)

	require.NoError(t, server.Abort())
	assert.Equal(t, StateConnected, server.State())

	_, err := client.ReadFrame(5 * time.Second)
	assert.ErrorIs(t, err, ErrConnectionLost)

	_, err = server.ReadNonBlocking(make([]byte, 16))
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestConn_ReadNonBlocking(t *testing.T) {
	client, server := pair(t)

	buf := make([]byte, 64)
	_, err := server.ReadNonBlocking(buf)
	assert.ErrorIs(t, err, ErrWouldBlock)

	require.NoError(t, client.WriteFrame([]byte("ping"), 0))

	deadline := time.Now().Add(5 * time.Second)
	var n int
	for time.Now().Before(deadline) {
		n, err = server.ReadNonBlocking(buf)
		if !errors.Is(err, ErrWouldBlock) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 4, 'p', 'i', 'n', 'g'}, buf[:n])
}

func TestConn_MaxFrameSize(t *testing.T) {
	client, server := pair(t, WithMaxFrameSize(8))

	require.NoError(t, client.WriteFrame([]byte("way past eight bytes"), 0))
	_, err := server.ReadFrame(5 * time.Second)
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestDial(t *testing.T) {
	t.Run("resolution failure", func(t *testing.T) {
		_, err := Dial(context.Background(), "no-such-host.invalid:7000", WithDialTimeout(5*time.Second))
		var de *DialError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "resolve", de.Op)
	})

	t.Run("malformed address", func(t *testing.T) {
		_, err := Dial(context.Background(), "missing-port")
		var de *DialError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "resolve", de.Op)
	})

	t.Run("connection refused", func(t *testing.T) {
		ln, err := Listen(context.Background(), "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		require.NoError(t, ln.Close())

		_, err = Dial(context.Background(), addr)
		var de *DialError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "connect", de.Op)
		assert.Contains(t, de.Error(), addr)
	})
}

func TestListener_AcceptTimeout(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	assert.GreaterOrEqual(t, ln.Fd(), 0)
	_, err = ln.AcceptTimeout(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}
