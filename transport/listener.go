package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Listener accepts framed TCP connections.
type Listener struct {
	tcp      *net.TCPListener
	fd       int
	maxFrame uint32
}

// Listen binds address with SO_REUSEADDR so a restarted server is not held up
// by sockets lingering in TIME_WAIT.
//
// Parameters:
//   - ctx: Bounds the bind
//   - address: host:port to bind; port 0 picks a free port
//   - opts: Frame size limit applied to accepted connections
//
// Returns:
//   - The listener, or the bind error
func Listen(ctx context.Context, address string, opts ...Option) (*Listener, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	tl := ln.(*net.TCPListener)
	l := &Listener{tcp: tl, fd: -1, maxFrame: o.maxFrame}

	raw, err := tl.SyscallConn()
	if err != nil {
		_ = tl.Close()
		return nil, err
	}
	if err := raw.Control(func(fd uintptr) { l.fd = int(fd) }); err != nil {
		_ = tl.Close()
		return nil, err
	}

	return l, nil
}

func reuseAddr(_, _ string, c syscall.RawConn) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}

	return serr
}

// Accept blocks until a peer connects.
func (l *Listener) Accept() (*Conn, error) {
	tcp, err := l.tcp.AcceptTCP()
	if err != nil {
		return nil, err
	}

	c, err := newConn(tcp, l.maxFrame)
	if err == nil {
		err = c.establish()
	}
	if err != nil {
		_ = tcp.Close()
		return nil, err
	}

	return c, nil
}

// AcceptTimeout is Accept bounded by d. It returns ErrTimeout when no peer
// connected in time.
func (l *Listener) AcceptTimeout(d time.Duration) (*Conn, error) {
	if err := l.tcp.SetDeadline(time.Now().Add(d)); err != nil {
		return nil, err
	}
	defer l.tcp.SetDeadline(time.Time{})

	c, err := l.Accept()
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return nil, ErrTimeout
	}

	return c, err
}

// Fd returns the listening descriptor.
func (l *Listener) Fd() int {
	return l.fd
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.tcp.Addr()
}

// Close stops listening.
func (l *Listener) Close() error {
	return l.tcp.Close()
}
