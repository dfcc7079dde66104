package reactor

import "golang.org/x/sys/unix"

type epoller struct {
	fd  int
	buf []unix.EpollEvent
}

func newPoller(maxEvents int) (poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	return &epoller{fd: fd, buf: make([]unix.EpollEvent, maxEvents)}, nil
}

func (p *epoller) add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLRDHUP, Fd: int32(fd)}
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epoller) remove(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epoller) wait(events []event) (int, error) {
	max := min(len(events), len(p.buf))
	n, err := unix.EpollWait(p.fd, p.buf[:max], -1)
	if err == unix.EINTR {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	for i := 0; i < n; i++ {
		events[i] = event{fd: int(p.buf[i].Fd)}
	}

	return n, nil
}

func (p *epoller) close() error {
	return unix.Close(p.fd)
}
