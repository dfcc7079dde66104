package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// event is one readiness notification. Hang-ups and errors are reported as
// readable; the following read tells them apart.
type event struct {
	fd int
}

// poller is the readiness multiplexer. It is used from the loop goroutine only.
type poller interface {
	add(fd int) error
	remove(fd int) error
	// wait blocks until at least one descriptor is ready and fills events.
	// An interrupted wait returns 0 and no error.
	wait(events []event) (int, error)
	close() error
}

// wakePipe lets Stop interrupt a blocked wait. wake and close may race from
// different goroutines; once closed, wake never touches the descriptors.
type wakePipe struct {
	r, w int

	mu     sync.Mutex
	closed bool
}

func newWakePipe() (*wakePipe, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, err
	}

	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return nil, err
		}
	}

	return &wakePipe{r: fds[0], w: fds[1]}, nil
}

// wake reports whether the pipe was still open.
func (p *wakePipe) wake() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}

	// A full pipe already guarantees a pending wake-up.
	_, _ = unix.Write(p.w, []byte{1})
	return true
}

func (p *wakePipe) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(p.r, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (p *wakePipe) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	p.closed = true
	_ = unix.Close(p.r)
	_ = unix.Close(p.w)
}
