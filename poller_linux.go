//go:build linux

package asyncrt

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// pollerSyscall names the registration syscall, in errors.
const pollerSyscall = "epoll_ctl"

// poller waits for readiness edges using epoll (Linux).
// Tokens are carried in the 32-bit user data of each registration, token 0
// identifies the wakeup eventfd.
type poller struct {
	events []unix.EpollEvent
	epfd   int
	wakefd int
}

func openPoller(bufferSize int) (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	// level triggered, drained on every wakeup
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeToken),
	}); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, err
	}
	return &poller{
		events: make([]unix.EpollEvent, bufferSize),
		epfd:   epfd,
		wakefd: wakefd,
	}, nil
}

// add registers fd for edge-triggered read and write readiness.
func (p *poller) add(fd int, token uint32) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLET,
		Fd:     int32(token),
	})
}

func (p *poller) remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks until at least one edge, or a wakeup, calling handle for each
// edge. Interrupted waits return without error.
func (p *poller) wait(handle func(token uint32, events ioEvents)) (int, error) {
	n, err := unix.EpollWait(p.epfd, p.events, -1)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	var handled int
	for i := range n {
		ev := &p.events[i]
		token := uint32(ev.Fd)
		if token == wakeToken {
			p.drain()
			continue
		}
		handle(token, epollToEvents(ev.Events))
		handled++
	}
	return handled, nil
}

func (p *poller) wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(p.wakefd, buf[:])
		switch err {
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			// counter saturated, a wakeup is already pending
			return nil
		}
		return err
	}
}

func (p *poller) drain() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakefd, buf[:])
		if err != unix.EINTR {
			return
		}
	}
}

func (p *poller) close() error {
	err1 := unix.Close(p.wakefd)
	err2 := unix.Close(p.epfd)
	if err1 != nil {
		return err1
	}
	return err2
}

// epollToEvents converts epoll event flags to ioEvents.
func epollToEvents(epollEvents uint32) ioEvents {
	var events ioEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= ioRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= ioWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= ioError
	}
	if epollEvents&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		events |= ioHangup
	}
	return events
}
