// Package reactor runs the single readiness-driven loop that owns every
// server socket. It accepts connections, reads whatever bytes are available
// on readable connections without blocking, reassembles frames per
// connection and hands each frame to a worker pool as one task.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/go-chatcore/codec"
	"github.com/cyberinferno/go-chatcore/logger"
	"github.com/cyberinferno/go-chatcore/transport"
	"github.com/cyberinferno/go-chatcore/workerpool"
)

// Dispatcher turns frames into tasks. It is called on the loop goroutine and
// must not block; the returned tasks do the actual work on the pool.
type Dispatcher interface {
	// Dispatch parses payload received on conn. An error means the frame is
	// malformed and conn is closed without running any task.
	Dispatch(conn *transport.Conn, payload []byte) (workerpool.Task, error)

	// Disconnected returns the teardown task for a closed connection, or nil.
	Disconnected(conn *transport.Conn) workerpool.Task
}

// State is the loop state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrNotIdle is returned by Run when the reactor was already started or stopped.
var ErrNotIdle = errors.New("reactor: not idle")

type connState struct {
	conn *transport.Conn
	dec  *codec.Decoder
}

// Reactor is the accept and dispatch loop. Create one with New, then call Run.
type Reactor struct {
	listener   *transport.Listener
	pool       *workerpool.Pool
	dispatcher Dispatcher
	opts       options

	poller poller
	wake   *wakePipe
	buf    []byte
	conns  map[int]*connState

	state    atomic.Int32
	done     chan struct{}
	doneOnce sync.Once
}

// New prepares a reactor serving ln. Tasks go to pool and frames are parsed by d.
//
// Parameters:
//   - ln: The listening socket; the reactor closes it when it stops
//   - pool: Worker pool receiving one task per frame
//   - d: Frame parser and teardown provider
//   - opts: Optional tuning, logger, event log and metrics
//
// Returns:
//   - The reactor in StateIdle, or an error if the multiplexer could not be created
func New(ln *transport.Listener, pool *workerpool.Pool, d Dispatcher, opts ...Option) (*Reactor, error) {
	if ln == nil || pool == nil || d == nil {
		return nil, errors.New("reactor: listener, pool and dispatcher are required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	p, err := newPoller(o.maxEvents)
	if err != nil {
		return nil, fmt.Errorf("reactor: create multiplexer: %w", err)
	}

	wake, err := newWakePipe()
	if err != nil {
		_ = p.close()
		return nil, fmt.Errorf("reactor: create wake pipe: %w", err)
	}

	for _, fd := range []int{ln.Fd(), wake.r} {
		if err := p.add(fd); err != nil {
			wake.close()
			_ = p.close()
			return nil, fmt.Errorf("reactor: register descriptor %d: %w", fd, err)
		}
	}

	return &Reactor{
		listener:   ln,
		pool:       pool,
		dispatcher: d,
		opts:       o,
		poller:     p,
		wake:       wake,
		buf:        make([]byte, o.readBufferSize),
		conns:      make(map[int]*connState),
		done:       make(chan struct{}),
	}, nil
}

// State returns the loop state.
func (r *Reactor) State() State {
	return State(r.state.Load())
}

// Addr returns the address the reactor listens on.
func (r *Reactor) Addr() string {
	return r.listener.Addr().String()
}

// Done is closed once the reactor has released every resource.
func (r *Reactor) Done() <-chan struct{} {
	return r.done
}

// Run executes the loop on the calling goroutine until Stop is called, ctx is
// done or the multiplexer fails. Every connection and the listener are closed
// before Run returns.
//
// Returns:
//   - nil after a requested stop, the multiplexer error otherwise
func (r *Reactor) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrNotIdle
	}

	stopWatch := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
			r.requestStop()
		case <-stopWatch:
		}
	}()

	r.opts.logger.Info("reactor started", logger.Field{Key: "addr", Value: r.Addr()})

	events := make([]event, r.opts.maxEvents)
	var loopErr error
	for r.State() == StateRunning {
		n, err := r.poller.wait(events)
		if err != nil {
			loopErr = fmt.Errorf("reactor: wait: %w", err)
			r.opts.logger.Error("multiplexer failed", logger.Field{Key: "error", Value: err.Error()})
			break
		}

		for _, ev := range events[:n] {
			switch ev.fd {
			case r.wake.r:
				r.wake.drain()
			case r.listener.Fd():
				r.accept()
			default:
				r.serve(ev.fd)
			}
		}
	}

	r.state.Store(int32(StateStopping))
	close(stopWatch)
	<-watcherDone
	r.teardown()
	return loopErr
}

// Stop asks the loop to exit and waits until it has. Calling Stop on a
// reactor that never ran releases its resources.
func (r *Reactor) Stop() {
	if r.state.CompareAndSwap(int32(StateIdle), int32(StateStopping)) {
		r.teardown()
		return
	}

	r.requestStop()
	<-r.done
}

func (r *Reactor) requestStop() {
	if r.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		r.wake.wake()
	}
}

func (r *Reactor) accept() {
	conn, err := r.listener.AcceptTimeout(r.opts.acceptTimeout)
	if errors.Is(err, transport.ErrTimeout) {
		return
	}
	if err != nil {
		r.opts.metrics.AcceptErrors.Inc()
		r.opts.logger.Warn("accept failed", logger.Field{Key: "error", Value: err.Error()})
		return
	}

	if err := r.poller.add(conn.Fd()); err != nil {
		r.opts.metrics.AcceptErrors.Inc()
		r.opts.logger.Error("register connection failed",
			logger.Field{Key: "conn", Value: uint64(conn.ID())},
			logger.Field{Key: "error", Value: err.Error()})
		_ = conn.Close()
		return
	}

	r.conns[conn.Fd()] = &connState{conn: conn, dec: codec.NewDecoder(r.opts.maxFrameSize)}
	r.opts.metrics.ConnectionsAccepted.Inc()
	r.opts.metrics.ConnectionsActive.Set(float64(len(r.conns)))
	r.opts.logger.Info("connection accepted",
		logger.Field{Key: "conn", Value: uint64(conn.ID())},
		logger.Field{Key: "remote", Value: conn.RemoteAddr().String()})
	r.appendLog(conn, "connected.")
}

// serve performs one non-blocking receive on a readable connection and
// dispatches every frame it completed.
func (r *Reactor) serve(fd int) {
	cs, ok := r.conns[fd]
	if !ok {
		_ = r.poller.remove(fd)
		return
	}

	n, err := cs.conn.ReadNonBlocking(r.buf)
	if errors.Is(err, transport.ErrWouldBlock) {
		return
	}
	if err != nil {
		r.close(cs, err)
		return
	}

	frames, ferr := cs.dec.Feed(r.buf[:n])
	for _, frame := range frames {
		r.opts.metrics.FramesReceived.Inc()

		task, err := r.dispatcher.Dispatch(cs.conn, frame)
		if err != nil {
			r.opts.metrics.MalformedFrames.Inc()
			r.opts.logger.Warn("malformed frame",
				logger.Field{Key: "conn", Value: uint64(cs.conn.ID())},
				logger.Field{Key: "error", Value: err.Error()})
			r.close(cs, err)
			return
		}

		r.submit(cs.conn, task)
	}

	if ferr != nil {
		r.opts.metrics.MalformedFrames.Inc()
		r.close(cs, fmt.Errorf("%w: %w", transport.ErrConnectionLost, ferr))
	}
}

func (r *Reactor) submit(conn *transport.Conn, task workerpool.Task) {
	if task == nil {
		return
	}

	if _, err := r.pool.Submit(task); err != nil {
		r.opts.logger.Warn("task dropped",
			logger.Field{Key: "conn", Value: uint64(conn.ID())},
			logger.Field{Key: "error", Value: err.Error()})
	}
}

// close is the only place a server connection is closed: deregister, close,
// log, then hand the teardown task to the pool.
func (r *Reactor) close(cs *connState, cause error) {
	fd := cs.conn.Fd()
	_ = r.poller.remove(fd)
	delete(r.conns, fd)
	_ = cs.conn.Close()

	r.opts.metrics.ConnectionsActive.Set(float64(len(r.conns)))
	fields := []logger.Field{{Key: "conn", Value: uint64(cs.conn.ID())}}
	if cause != nil {
		fields = append(fields, logger.Field{Key: "cause", Value: cause.Error()})
	}
	if cs.dec.Pending() {
		fields = append(fields, logger.Field{Key: "dropped_bytes", Value: cs.dec.Buffered()})
	}
	r.opts.logger.Info("connection closed", fields...)
	r.appendLog(cs.conn, "disconnected.")

	task := r.dispatcher.Disconnected(cs.conn)
	if task == nil {
		return
	}
	if _, err := r.pool.Submit(task); errors.Is(err, workerpool.ErrPoolStopped) {
		r.runInline(task)
	}
}

// runInline runs a teardown task when the pool no longer accepts work, so
// registry cleanup still happens.
func (r *Reactor) runInline(task workerpool.Task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.opts.logger.Error("teardown task panicked", logger.Field{Key: "panic", Value: fmt.Sprint(rec)})
		}
	}()

	if _, err := task(); err != nil {
		r.opts.logger.Warn("teardown task failed", logger.Field{Key: "error", Value: err.Error()})
	}
}

func (r *Reactor) appendLog(conn *transport.Conn, what string) {
	if err := r.opts.eventLog.Write(time.Now(), uint64(conn.ID()), what); err != nil {
		r.opts.logger.Warn("event log write failed", logger.Field{Key: "error", Value: err.Error()})
	}
}

func (r *Reactor) teardown() {
	for _, cs := range r.conns {
		r.close(cs, nil)
	}

	_ = r.poller.remove(r.listener.Fd())
	_ = r.listener.Close()
	r.wake.close()
	_ = r.poller.close()

	r.state.Store(int32(StateStopped))
	r.opts.logger.Info("reactor stopped")
	r.doneOnce.Do(func() { close(r.done) })
}
