// socket builds listeners and dialers with the socket options the net
// package does not expose directly.
package socket

import (
	"context"
	"net"
	"syscall"
)

// DefaultBufferSize is used when the platform gives no better hint.
const DefaultBufferSize = 8192

// Options are applied on the raw fd before bind/connect.
type Options struct {
	// ReusePort sets SO_REUSEPORT. Not available on every platform,
	// Listen fails when it is requested but unsupported.
	ReusePort bool
	// DualStack clears IPV6_V6ONLY so an IPv6 wildcard socket accepts
	// IPv4 mapped traffic too. Only meaningful for tcp6/udp6 sockets.
	DualStack bool
}

func (o Options) control(network, address string, c syscall.RawConn) error {
	if err := checkOptionSupport(o); err != nil {
		return err
	}
	var optErr error
	err := c.Control(func(fd uintptr) {
		optErr = applyOptions(fd, network, o)
	})
	if err != nil {
		return err
	}
	return optErr
}

func Listen(ctx context.Context, network, address string, opts Options) (net.Listener, error) {
	cfg := net.ListenConfig{Control: opts.control}
	return cfg.Listen(ctx, network, address)
}

func ListenPacket(ctx context.Context, network, address string, opts Options) (net.PacketConn, error) {
	cfg := net.ListenConfig{Control: opts.control}
	return cfg.ListenPacket(ctx, network, address)
}

// GuessBufferSize picks a read chunk size for conn, preferring the
// filesystem block size reported for the socket fd.
func GuessBufferSize(conn syscall.Conn) int {
	raw, err := conn.SyscallConn()
	if err != nil {
		return DefaultBufferSize
	}
	size := DefaultBufferSize
	_ = raw.Control(func(fd uintptr) {
		if s := fdBlockSize(fd); s > 0 {
			size = s
		}
	})
	return size
}
