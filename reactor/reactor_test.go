package reactor

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-chatcore/codec"
	"github.com/cyberinferno/go-chatcore/logger"
	"github.com/cyberinferno/go-chatcore/metrics"
	"github.com/cyberinferno/go-chatcore/transport"
	"github.com/cyberinferno/go-chatcore/workerpool"
)

var errBad = errors.New("bad frame")

// echoDispatcher writes every frame back to its sender and rejects "bad".
type echoDispatcher struct {
	mu     sync.Mutex
	closed []transport.ID
	gone   chan transport.ID
}

func newEchoDispatcher() *echoDispatcher {
	return &echoDispatcher{gone: make(chan transport.ID, 64)}
}

func (d *echoDispatcher) Dispatch(conn *transport.Conn, payload []byte) (workerpool.Task, error) {
	if string(payload) == "bad" {
		return nil, errBad
	}

	return func() (any, error) {
		return nil, conn.WriteFrame(payload, time.Second)
	}, nil
}

func (d *echoDispatcher) Disconnected(conn *transport.Conn) workerpool.Task {
	return func() (any, error) {
		d.mu.Lock()
		d.closed = append(d.closed, conn.ID())
		d.mu.Unlock()
		d.gone <- conn.ID()
		return nil, nil
	}
}

type memEventLog struct {
	mu    sync.Mutex
	lines [][]any
}

func (l *memEventLog) Write(_ time.Time, fields ...any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fields)
	return nil
}

func (l *memEventLog) count(what string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, f := range l.lines {
		if len(f) == 2 && f[1] == what {
			n++
		}
	}
	return n
}

type harness struct {
	r       *Reactor
	pool    *workerpool.Pool
	d       *echoDispatcher
	events  *memEventLog
	metrics *metrics.Metrics
	runErr  chan error
}

func start(t *testing.T, opts ...Option) *harness {
	t.Helper()

	ln, err := transport.Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)

	pool, err := workerpool.New(2)
	require.NoError(t, err)

	h := &harness{
		pool:    pool,
		d:       newEchoDispatcher(),
		events:  &memEventLog{},
		metrics: metrics.NewUnregistered(),
		runErr:  make(chan error, 1),
	}
	opts = append([]Option{
		WithEventLog(h.events),
		WithMetrics(h.metrics),
		WithLogger(logger.NewNopLogger()),
	}, opts...)

	h.r, err = New(ln, pool, h.d, opts...)
	require.NoError(t, err)

	go func() { h.runErr <- h.r.Run(context.Background()) }()
	require.Eventually(t, func() bool { return h.r.State() == StateRunning }, time.Second, time.Millisecond)

	t.Cleanup(func() {
		h.r.Stop()
		pool.Shutdown()
	})
	return h
}

func (h *harness) dial(t *testing.T) *transport.Conn {
	t.Helper()
	c, err := transport.Dial(context.Background(), h.r.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func roundTrip(t *testing.T, c *transport.Conn, body string) {
	t.Helper()
	require.NoError(t, c.WriteFrame([]byte(body), time.Second))
	got, err := c.ReadFrame(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestReactor_Echo(t *testing.T) {
	h := start(t)
	c := h.dial(t)

	roundTrip(t, c, "<cmd>2</cmd>")
	roundTrip(t, c, "")

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.ConnectionsAccepted) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.FramesReceived))
	assert.Equal(t, 1, h.events.count("connected."))
}

func TestReactor_FragmentedAndCoalescedFrames(t *testing.T) {
	h := start(t, WithReadBufferSize(3))

	raw, err := net.Dial("tcp", h.r.Addr())
	require.NoError(t, err)
	defer raw.Close()

	var stream []byte
	stream = codec.AppendFrame(stream, []byte("first"))
	stream = codec.AppendFrame(stream, []byte("second"))
	stream = codec.AppendFrame(stream, []byte("third"))

	// Split across writes at awkward offsets, including inside a header.
	for _, cut := range [][2]int{{0, 2}, {2, 7}, {7, 20}, {20, len(stream)}} {
		_, err := raw.Write(stream[cut[0]:cut[1]])
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	require.NoError(t, raw.SetReadDeadline(time.Now().Add(5*time.Second)))
	for _, want := range []string{"first", "second", "third"} {
		got, err := transport.ReadFrameFrom(raw, 0)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}

func TestReactor_MalformedFrameClosesOnlyOffender(t *testing.T) {
	h := start(t)
	good := h.dial(t)
	bad := h.dial(t)

	roundTrip(t, good, "hello")

	require.NoError(t, bad.WriteFrame([]byte("bad"), time.Second))
	_, err := bad.ReadFrame(5 * time.Second)
	assert.ErrorIs(t, err, transport.ErrConnectionLost)

	select {
	case id := <-h.d.gone:
		assert.NotZero(t, id)
	case <-time.After(5 * time.Second):
		t.Fatal("teardown task did not run")
	}

	roundTrip(t, good, "still here")
	assert.Equal(t, StateRunning, h.r.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.MalformedFrames))
	assert.Equal(t, 1, h.events.count("disconnected."))
}

func TestReactor_OversizedFrameCloses(t *testing.T) {
	h := start(t, WithMaxFrameSize(16))
	c := h.dial(t)

	require.NoError(t, c.WriteFrame(bytes.Repeat([]byte("x"), 64), time.Second))
	_, err := c.ReadFrame(5 * time.Second)
	assert.ErrorIs(t, err, transport.ErrConnectionLost)
}

func TestReactor_StalledPeerDoesNotBlockOthers(t *testing.T) {
	h := start(t)

	stalled, err := net.Dial("tcp", h.r.Addr())
	require.NoError(t, err)
	defer stalled.Close()
	// Half a header and then nothing.
	_, err = stalled.Write([]byte{0, 0})
	require.NoError(t, err)

	other := h.dial(t)
	roundTrip(t, other, "not blocked")
}

func TestReactor_PeerDisconnectRunsTeardown(t *testing.T) {
	h := start(t)
	c := h.dial(t)
	roundTrip(t, c, "hi")

	id := c.ID()
	require.NoError(t, c.Close())

	select {
	case got := <-h.d.gone:
		// Server and client ids come from one counter, so they differ.
		assert.NotEqual(t, id, got)
	case <-time.After(5 * time.Second):
		t.Fatal("teardown task did not run")
	}
}

func TestReactor_Stop(t *testing.T) {
	h := start(t)
	a := h.dial(t)
	b := h.dial(t)
	roundTrip(t, a, "a")
	roundTrip(t, b, "b")

	h.r.Stop()
	assert.Equal(t, StateStopped, h.r.State())

	select {
	case err := <-h.runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	_, err := a.ReadFrame(5 * time.Second)
	assert.ErrorIs(t, err, transport.ErrConnectionLost)

	h.pool.Shutdown()
	h.d.mu.Lock()
	assert.Len(t, h.d.closed, 2)
	h.d.mu.Unlock()

	assert.ErrorIs(t, h.r.Run(context.Background()), ErrNotIdle)
	h.r.Stop()
}

func TestReactor_ContextCancel(t *testing.T) {
	ln, err := transport.Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	pool, err := workerpool.New(1)
	require.NoError(t, err)
	defer pool.Shutdown()

	r, err := New(ln, pool, newEchoDispatcher())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	require.Eventually(t, func() bool { return r.State() == StateRunning }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	<-r.Done()
	assert.Equal(t, StateStopped, r.State())
}

func TestReactor_StopBeforeRun(t *testing.T) {
	ln, err := transport.Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	pool, err := workerpool.New(1)
	require.NoError(t, err)
	defer pool.Shutdown()

	r, err := New(ln, pool, newEchoDispatcher())
	require.NoError(t, err)

	r.Stop()
	assert.Equal(t, StateStopped, r.State())
	assert.ErrorIs(t, r.Run(context.Background()), ErrNotIdle)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "stopped", StateStopped.String())
}

func TestWakePipe(t *testing.T) {
	p, err := newWakePipe()
	require.NoError(t, err)

	t.Run("wake while open", func(t *testing.T) {
		assert.True(t, p.wake())
		p.drain()
	})

	t.Run("wake after close is a no-op", func(t *testing.T) {
		p.close()
		p.close()
		assert.False(t, p.wake())
	})
}

func TestReactor_ConcurrentStopAndCancel(t *testing.T) {
	for i := 0; i < 20; i++ {
		ln, err := transport.Listen(context.Background(), "127.0.0.1:0")
		require.NoError(t, err)
		pool, err := workerpool.New(1)
		require.NoError(t, err)

		r, err := New(ln, pool, newEchoDispatcher())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.Run(ctx) }()
		require.Eventually(t, func() bool { return r.State() == StateRunning }, time.Second, time.Millisecond)

		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); cancel() }()
		go func() { defer wg.Done(); r.Stop() }()
		go func() { defer wg.Done(); r.Stop() }()
		wg.Wait()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return")
		}
		assert.Equal(t, StateStopped, r.State())
		assert.False(t, r.wake.wake())
		pool.Shutdown()
	}
}

// lockedBuffer is written by the reactor goroutine and read by the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestReactor_PartialFrameReportedOnClose(t *testing.T) {
	out := &lockedBuffer{}
	h := start(t, WithLogger(logger.NewZerologLogger(zerolog.New(out), "test", zerolog.InfoLevel)))

	raw, err := net.Dial("tcp", h.r.Addr())
	require.NoError(t, err)

	// Header announcing ten bytes followed by only three of them.
	_, err = raw.Write(append(codec.Encode(make([]byte, 10))[:codec.HeaderSize], 'a', 'b', 'c'))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.events.count("connected.") == 1 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, raw.Close())

	select {
	case <-h.d.gone:
	case <-time.After(5 * time.Second):
		t.Fatal("teardown task did not run")
	}
	assert.Contains(t, out.String(), `"dropped_bytes":7`)
}
