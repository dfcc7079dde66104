package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cyberinferno/go-chatcore/codec"
	"github.com/cyberinferno/go-chatcore/idgenerator"
)

// DefaultWriteTimeout bounds WriteFrame when the caller passes no timeout.
const DefaultWriteTimeout = 5 * time.Second

// ID identifies a connection for its whole life and is never reused.
type ID uint64

// State is the lifecycle state of a connection. Transitions only move forward.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var ids = idgenerator.NewIdGenerator(0)

// Conn is a framed TCP connection. ReadFrame must only be called from one
// goroutine at a time; WriteFrame, Abort and Close are safe for concurrent
// use.
type Conn struct {
	id       ID
	tcp      *net.TCPConn
	raw      syscall.RawConn
	fd       int
	remote   net.Addr
	maxFrame uint32
	state    atomic.Int32

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newConn(tcp *net.TCPConn, maxFrame uint32) (*Conn, error) {
	raw, err := tcp.SyscallConn()
	if err != nil {
		return nil, err
	}

	c := &Conn{
		id:       ID(ids.Next()),
		tcp:      tcp,
		raw:      raw,
		fd:       -1,
		remote:   tcp.RemoteAddr(),
		maxFrame: maxFrame,
	}
	if err := raw.Control(func(fd uintptr) { c.fd = int(fd) }); err != nil {
		return nil, err
	}
	c.state.Store(int32(StateConnecting))

	return c, nil
}

// establish applies the socket options every framed connection needs and
// moves c from Connecting to Connected. On failure c stays Connecting and the
// caller must close it.
func (c *Conn) establish() error {
	if err := c.tcp.SetNoDelay(true); err != nil {
		return err
	}
	if err := c.tcp.SetKeepAlive(true); err != nil {
		return err
	}

	c.advance(StateConnected)
	return nil
}

// ID returns the connection id.
func (c *Conn) ID() ID {
	return c.id
}

// Fd returns the socket descriptor. It stays valid until Close.
func (c *Conn) Fd() int {
	return c.fd
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.remote
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

func (c *Conn) advance(to State) {
	for {
		cur := c.state.Load()
		if cur >= int32(to) || c.state.CompareAndSwap(cur, int32(to)) {
			return
		}
	}
}

// ReadFrame reads one frame.
//
// Parameters:
//   - timeout: When positive, the longest time to wait for the first byte;
//     zero or negative waits indefinitely
//
// Returns:
//   - The frame body
//   - ErrTimeout if nothing became readable in time; the stream is untouched
//   - ErrConnectionLost if the peer closed or the read failed
func (c *Conn) ReadFrame(timeout time.Duration) ([]byte, error) {
	if c.State() == StateClosed {
		return nil, lost(net.ErrClosed)
	}

	if timeout > 0 {
		if err := c.waitReadable(timeout); err != nil {
			return nil, err
		}
	}

	return ReadFrameFrom(c.tcp, c.maxFrame)
}

// waitReadable blocks until at least one byte is queued without consuming it.
func (c *Conn) waitReadable(timeout time.Duration) error {
	if err := c.tcp.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return lost(err)
	}
	defer c.tcp.SetReadDeadline(time.Time{})

	var (
		n    int
		perr error
		one  [1]byte
	)
	err := c.raw.Read(func(fd uintptr) bool {
		n, _, perr = unix.Recvfrom(int(fd), one[:], unix.MSG_PEEK)
		return perr != unix.EAGAIN && perr != unix.EINTR
	})

	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ErrTimeout
	case err != nil:
		return lost(err)
	case perr != nil:
		return lost(perr)
	case n == 0:
		return lost(io.EOF)
	}

	return nil
}

// ReadNonBlocking performs a single receive into buf without waiting.
//
// Returns:
//   - The number of bytes received (always positive on success)
//   - ErrWouldBlock when nothing is queued
//   - ErrConnectionLost when the peer closed or the receive failed
func (c *Conn) ReadNonBlocking(buf []byte) (int, error) {
	var (
		n    int
		rerr error
	)
	err := c.raw.Read(func(fd uintptr) bool {
		n, rerr = unix.Read(int(fd), buf)
		return true
	})

	switch {
	case err != nil:
		return 0, lost(err)
	case rerr == unix.EAGAIN || rerr == unix.EINTR:
		return 0, ErrWouldBlock
	case rerr != nil:
		return 0, lost(rerr)
	case n == 0 && len(buf) > 0:
		return 0, lost(io.EOF)
	}

	return n, nil
}

// WriteFrame encodes body and sends the whole frame.
//
// Parameters:
//   - body: The frame body
//   - timeout: Bound for the whole send; zero or negative means DefaultWriteTimeout
//
// Returns:
//   - ErrTimeout if the socket never became writable and nothing was sent
//   - ErrConnectionLost on any other failure, including a partial send
func (c *Conn) WriteFrame(body []byte, timeout time.Duration) error {
	if c.State() == StateClosed {
		return lost(net.ErrClosed)
	}
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}

	frame := codec.Encode(body)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.tcp.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return lost(err)
	}
	defer c.tcp.SetWriteDeadline(time.Time{})

	n, err := writeAll(c.tcp, frame)
	if err != nil {
		if n == 0 && errors.Is(err, os.ErrDeadlineExceeded) {
			return ErrTimeout
		}
		return lost(err)
	}

	return nil
}

// Abort shuts the socket down in both directions but keeps the descriptor
// open. The owner of the connection observes end of stream and closes it.
func (c *Conn) Abort() error {
	if c.State() == StateClosed {
		return nil
	}

	var serr error
	err := c.raw.Control(func(fd uintptr) {
		serr = unix.Shutdown(int(fd), unix.SHUT_RDWR)
	})
	if err != nil {
		return err
	}
	if serr != nil && serr != unix.ENOTCONN {
		return serr
	}

	return nil
}

// Close closes the socket and moves the connection to StateClosed. Only the
// first call has an effect.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.advance(StateClosed)
		c.closeErr = c.tcp.Close()
	})

	return c.closeErr
}
