//go:build darwin

package asyncrt

import (
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// pollerSyscall names the registration syscall, in errors.
const pollerSyscall = "kevent"

// poller waits for readiness edges using kqueue (Darwin).
// Registrations are keyed by fd, which is mapped back to a token on dispatch.
// A self-pipe interrupts the wait.
type poller struct {
	tokens map[int]uint32
	events []unix.Kevent_t
	mu     sync.Mutex
	kq     int
	wakeR  int
	wakeW  int
}

func openPoller(bufferSize int) (*poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)

	var fds [2]int
	syscall.ForkLock.RLock()
	err = unix.Pipe(fds[:])
	if err == nil {
		unix.CloseOnExec(fds[0])
		unix.CloseOnExec(fds[1])
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		_ = unix.Close(kq)
		return nil, err
	}
	cleanup := func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		_ = unix.Close(kq)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		cleanup()
		return nil, err
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		cleanup()
		return nil, err
	}

	if _, err := unix.Kevent(kq, []unix.Kevent_t{{
		Ident:  uint64(fds[0]),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}}, nil, nil); err != nil {
		cleanup()
		return nil, err
	}

	return &poller{
		tokens: make(map[int]uint32),
		events: make([]unix.Kevent_t, bufferSize),
		kq:     kq,
		wakeR:  fds[0],
		wakeW:  fds[1],
	}, nil
}

// add registers fd for edge-triggered (EV_CLEAR) read and write readiness.
func (p *poller) add(fd int, token uint32) error {
	p.mu.Lock()
	p.tokens[fd] = token
	p.mu.Unlock()
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR},
	}, nil, nil)
	if err != nil {
		p.mu.Lock()
		delete(p.tokens, fd)
		p.mu.Unlock()
	}
	return err
}

func (p *poller) remove(fd int) error {
	p.mu.Lock()
	delete(p.tokens, fd)
	p.mu.Unlock()
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}, nil, nil)
	return err
}

// wait blocks until at least one edge, or a wakeup, calling handle for each
// edge. Interrupted waits return without error.
func (p *poller) wait(handle func(token uint32, events ioEvents)) (int, error) {
	n, err := unix.Kevent(p.kq, nil, p.events, nil)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	var handled int
	for i := range n {
		kev := &p.events[i]
		fd := int(kev.Ident)
		if fd == p.wakeR {
			p.drain()
			continue
		}
		p.mu.Lock()
		token, ok := p.tokens[fd]
		p.mu.Unlock()
		if !ok {
			continue
		}
		handle(token, keventToEvents(kev))
		handled++
	}
	return handled, nil
}

func (p *poller) wake() error {
	for {
		_, err := unix.Write(p.wakeW, []byte{1})
		switch err {
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			// pipe full, a wakeup is already pending
			return nil
		}
		return err
	}
}

func (p *poller) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(p.wakeR, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil || n < len(buf) {
			return
		}
	}
}

func (p *poller) close() error {
	_ = unix.Close(p.wakeR)
	_ = unix.Close(p.wakeW)
	return unix.Close(p.kq)
}

// keventToEvents converts a kevent to ioEvents.
func keventToEvents(kev *unix.Kevent_t) ioEvents {
	var events ioEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= ioRead
	case unix.EVFILT_WRITE:
		events |= ioWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= ioError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= ioHangup
	}
	return events
}
