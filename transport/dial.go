package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cyberinferno/go-chatcore/codec"
)

type options struct {
	dialTimeout time.Duration
	maxFrame    uint32
}

func defaultOptions() options {
	return options{
		dialTimeout: 10 * time.Second,
		maxFrame:    codec.DefaultMaxFrameSize,
	}
}

// Option configures Dial and Listen.
type Option func(*options)

// WithDialTimeout bounds name resolution plus connect.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = d
	}
}

// WithMaxFrameSize sets the largest frame body accepted by ReadFrame on the
// resulting connections. Zero disables the limit.
func WithMaxFrameSize(n uint32) Option {
	return func(o *options) {
		o.maxFrame = n
	}
}

// Dial resolves the host part of address and connects to the first resolved
// address that accepts.
//
// Parameters:
//   - ctx: Bounds resolution and connect
//   - address: host:port; host may be a name or a literal address
//   - opts: Optional dial timeout and frame size limit
//
// Returns:
//   - A connected Conn
//   - A *DialError whose Op tells resolution failures from refused connects
func Dial(ctx context.Context, address string, opts ...Option) (*Conn, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.dialTimeout)
		defer cancel()
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, &DialError{Op: "resolve", Addr: address, Err: err}
	}
	if host == "" {
		host = "localhost"
	}

	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return nil, &DialError{Op: "resolve", Addr: address, Err: err}
	}

	var (
		d       net.Dialer
		lastErr error
	)
	for _, a := range addrs {
		nc, err := d.DialContext(ctx, "tcp", net.JoinHostPort(a, port))
		if err != nil {
			lastErr = err
			continue
		}

		tcp, ok := nc.(*net.TCPConn)
		if !ok {
			_ = nc.Close()
			lastErr = errors.New("not a TCP connection")
			continue
		}

		c, err := newConn(tcp, o.maxFrame)
		if err == nil {
			err = c.establish()
		}
		if err != nil {
			_ = tcp.Close()
			lastErr = err
			continue
		}
		return c, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no addresses")
	}
	return nil, &DialError{Op: "connect", Addr: address, Err: lastErr}
}
