//go:build unix && !linux

package reactor

import (
	"sort"

	"golang.org/x/sys/unix"
)

// pollPoller is the poll(2) fallback for unix systems without epoll.
type pollPoller struct {
	fds map[int]struct{}
}

func newPoller(int) (poller, error) {
	return &pollPoller{fds: make(map[int]struct{})}, nil
}

func (p *pollPoller) add(fd int) error {
	p.fds[fd] = struct{}{}
	return nil
}

func (p *pollPoller) remove(fd int) error {
	delete(p.fds, fd)
	return nil
}

func (p *pollPoller) wait(events []event) (int, error) {
	set := make([]unix.PollFd, 0, len(p.fds))
	for fd := range p.fds {
		set = append(set, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}
	sort.Slice(set, func(i, j int) bool { return set[i].Fd < set[j].Fd })

	if _, err := unix.Poll(set, -1); err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	n := 0
	for _, pfd := range set {
		if n == len(events) {
			break
		}
		if pfd.Revents != 0 {
			events[n] = event{fd: int(pfd.Fd)}
			n++
		}
	}

	return n, nil
}

func (p *pollPoller) close() error {
	p.fds = nil
	return nil
}
