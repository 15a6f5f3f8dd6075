//go:build linux || darwin

package asyncrt

import (
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

// UDPSocket is a non-blocking UDP socket, driven by the reactor of the
// runtime it was bound with. Its operations return futures, that suspend the
// calling task (rather than the goroutine) until the socket is ready.
//
// Operations may be awaited from tasks of any runtime, but the socket becomes
// unusable once the runtime it was bound with is closed. Close must be called
// to release the descriptor.
type UDPSocket struct {
	src    *ioSource
	local  netip.AddrPort
	family int
}

// Received is the result of [UDPSocket.RecvFrom].
type Received struct {
	// From is the address of the sender.
	From netip.AddrPort
	// N is the number of bytes read into the buffer. Datagrams larger than
	// the buffer are truncated.
	N int
}

// Bind creates a socket bound to addr (port 0 picks an ephemeral port),
// registered with the runtime installed on the calling goroutine.
func Bind(addr netip.AddrPort) (*UDPSocket, error) {
	a := loadAmbient()
	if a == nil {
		return nil, ErrNoRuntime
	}
	return BindUDP(a.handle, addr)
}

// BindUDP creates a socket bound to addr, registered with the runtime
// referenced by s.
func BindUDP(s Spawner, addr netip.AddrPort) (*UDPSocket, error) {
	opErr := func(err error) error {
		return &net.OpError{Op: "listen", Net: "udp", Addr: netAddr(addr), Err: err}
	}

	state, err := s.resolve()
	if err != nil {
		return nil, opErr(err)
	}

	family := addrFamily(addr)
	sa, err := toSockaddr(family, addr)
	if err != nil {
		return nil, opErr(err)
	}

	fd, err := newDatagramSocket(family)
	if err != nil {
		return nil, opErr(syscallError("socket", err))
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = closeFD(fd)
		return nil, opErr(syscallError("bind", err))
	}
	name, err := unix.Getsockname(fd)
	if err != nil {
		_ = closeFD(fd)
		return nil, opErr(syscallError("getsockname", err))
	}

	src, err := state.reactor.register(fd)
	if err != nil {
		_ = closeFD(fd)
		return nil, opErr(syscallError(pollerSyscall, err))
	}

	x := &UDPSocket{
		src:    src,
		local:  fromSockaddr(name),
		family: family,
	}
	state.log.debug().Int("fd", fd).Str("addr", x.local.String()).Log("bound udp socket")
	return x, nil
}

// LocalAddr returns the address the socket is bound to.
func (x *UDPSocket) LocalAddr() (netip.AddrPort, error) {
	if x.src.isClosed() {
		return netip.AddrPort{}, x.opError("getsockname", netip.AddrPort{}, ErrSocketClosed)
	}
	return x.local, nil
}

// PeerAddr returns the address the socket is connected to.
func (x *UDPSocket) PeerAddr() (netip.AddrPort, error) {
	if x.src.isClosed() {
		return netip.AddrPort{}, x.opError("getpeername", netip.AddrPort{}, ErrSocketClosed)
	}
	sa, err := unix.Getpeername(x.src.fd)
	if err != nil {
		return netip.AddrPort{}, x.opError("getpeername", netip.AddrPort{}, syscallError("getpeername", err))
	}
	return fromSockaddr(sa), nil
}

// Connect sets the default destination for [UDPSocket.Send], and limits
// received datagrams to those from addr.
func (x *UDPSocket) Connect(addr netip.AddrPort) error {
	if x.src.isClosed() {
		return x.opError("connect", addr, ErrSocketClosed)
	}
	sa, err := toSockaddr(x.family, addr)
	if err != nil {
		return x.opError("connect", addr, err)
	}
	for {
		err = unix.Connect(x.src.fd, sa)
		if !isInterrupted(err) {
			break
		}
	}
	if err != nil {
		return x.opError("connect", addr, syscallError("connect", err))
	}
	return nil
}

// Send writes a datagram to the connected peer, completing with the number
// of bytes sent.
func (x *UDPSocket) Send(p []byte) Future[Result[int]] {
	return &ioOp[int]{
		src: x.src,
		dir: dirWrite,
		call: func() (int, error) {
			return unix.Write(x.src.fd, p)
		},
		wrap: func(err error) error {
			return x.opError("write", netip.AddrPort{}, syscallError("write", err))
		},
	}
}

// SendTo writes a datagram to addr, completing with the number of bytes sent.
func (x *UDPSocket) SendTo(p []byte, addr netip.AddrPort) Future[Result[int]] {
	sa, err := toSockaddr(x.family, addr)
	if err != nil {
		return Value(Result[int]{Err: x.opError("write", addr, err)})
	}
	return &ioOp[int]{
		src: x.src,
		dir: dirWrite,
		call: func() (int, error) {
			return unix.SendmsgN(x.src.fd, p, nil, sa, 0)
		},
		wrap: func(err error) error {
			return x.opError("write", addr, syscallError("sendmsg", err))
		},
	}
}

// Recv reads a datagram into p, completing with the number of bytes read.
func (x *UDPSocket) Recv(p []byte) Future[Result[int]] {
	return &ioOp[int]{
		src: x.src,
		dir: dirRead,
		call: func() (int, error) {
			return unix.Read(x.src.fd, p)
		},
		wrap: func(err error) error {
			return x.opError("read", netip.AddrPort{}, syscallError("read", err))
		},
	}
}

// RecvFrom reads a datagram into p, completing with the number of bytes read
// and the sender's address.
func (x *UDPSocket) RecvFrom(p []byte) Future[Result[Received]] {
	return &ioOp[Received]{
		src: x.src,
		dir: dirRead,
		call: func() (Received, error) {
			n, from, err := unix.Recvfrom(x.src.fd, p, 0)
			if err != nil {
				return Received{}, err
			}
			return Received{N: n, From: fromSockaddr(from)}, nil
		},
		wrap: func(err error) error {
			return x.opError("read", netip.AddrPort{}, syscallError("recvfrom", err))
		},
	}
}

// Fd returns the underlying descriptor, which remains owned by the socket.
func (x *UDPSocket) Fd() int { return x.src.fd }

// Close deregisters and closes the socket. Pending operations are abandoned
// without being woken, and fail if polled again.
func (x *UDPSocket) Close() error {
	if err := x.src.close(); err != nil {
		return x.opError("close", netip.AddrPort{}, err)
	}
	return nil
}

func (x *UDPSocket) opError(op string, addr netip.AddrPort, err error) error {
	return &net.OpError{
		Op:     op,
		Net:    "udp",
		Source: netAddr(x.local),
		Addr:   netAddr(addr),
		Err:    err,
	}
}
