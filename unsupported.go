//go:build !linux && !darwin

package asyncrt

import (
	"net/netip"
)

// reactor is unavailable, sockets cannot be bound.
type reactor struct{}

func newReactor(*runtimeOptions, *runtimeLogger, *counters) (*reactor, error) {
	return &reactor{}, nil
}

func (*reactor) close() error { return nil }

// UDPSocket is not supported on this platform.
type UDPSocket struct{}

// Received is the result of [UDPSocket.RecvFrom].
type Received struct {
	From netip.AddrPort
	N    int
}

// Bind returns [ErrUnsupportedPlatform].
func Bind(netip.AddrPort) (*UDPSocket, error) { return nil, ErrUnsupportedPlatform }

// BindUDP returns [ErrUnsupportedPlatform].
func BindUDP(Spawner, netip.AddrPort) (*UDPSocket, error) { return nil, ErrUnsupportedPlatform }

func (*UDPSocket) LocalAddr() (netip.AddrPort, error) {
	return netip.AddrPort{}, ErrUnsupportedPlatform
}

func (*UDPSocket) PeerAddr() (netip.AddrPort, error) {
	return netip.AddrPort{}, ErrUnsupportedPlatform
}

func (*UDPSocket) Connect(netip.AddrPort) error { return ErrUnsupportedPlatform }

func (*UDPSocket) Send([]byte) Future[Result[int]] {
	return Value(Result[int]{Err: ErrUnsupportedPlatform})
}

func (*UDPSocket) SendTo([]byte, netip.AddrPort) Future[Result[int]] {
	return Value(Result[int]{Err: ErrUnsupportedPlatform})
}

func (*UDPSocket) Recv([]byte) Future[Result[int]] {
	return Value(Result[int]{Err: ErrUnsupportedPlatform})
}

func (*UDPSocket) RecvFrom([]byte) Future[Result[Received]] {
	return Value(Result[Received]{Err: ErrUnsupportedPlatform})
}

func (*UDPSocket) Fd() int { return -1 }

func (*UDPSocket) Close() error { return ErrUnsupportedPlatform }
