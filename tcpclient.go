package netpack

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/tessarion/netpack/common/lg"
	"github.com/tessarion/netpack/common/nt"
	"github.com/tessarion/netpack/internal"
	"github.com/tessarion/netpack/internal/socket"
	"github.com/tessarion/netpack/protocol"
	"github.com/tessarion/netpack/stream"
)

// TCPClient exchanges packets over a single stream connection. Packets
// are framed by the stream protocol given at construction; partial
// frames are buffered between calls, so a packet is returned exactly
// once no matter how the peer chunks its writes.
//
// All methods are safe for concurrent use. A blocking receive holds the
// client lock, use context deadlines to bound it.
type TCPClient struct {
	mu       sync.Mutex
	conn     net.Conn
	raddr    string
	tlsConf  *tls.Config
	dialer   net.Dialer
	producer *stream.Producer
	consumer *stream.Consumer
	readBuf  []byte
	closed   bool
}

// NewTCPClient connects to address and frames packets with proto.
func NewTCPClient(address string, proto protocol.StreamProtocol, opts ...ClientOption) (*TCPClient, error) {
	cfg := applyClientOptions(opts)
	dialer := net.Dialer{Timeout: cfg.connectTimeout}
	if cfg.localAddr != "" {
		la, err := net.ResolveTCPAddr("tcp", cfg.localAddr)
		if err != nil {
			return nil, err
		}
		dialer.LocalAddr = la
	}
	lg.Debugf("connect tcp %s", address)
	conn, err := dialer.Dial("tcp", address)
	if err != nil {
		return nil, err
	}
	cd := internal.NewCancellableDefer(func() {
		conn.Close()
	})
	defer cd.Defer()

	chunk := cfg.chunkSize
	if chunk <= 0 {
		if sc, ok := conn.(syscall.Conn); ok {
			chunk = socket.GuessBufferSize(sc)
		} else {
			chunk = socket.DefaultBufferSize
		}
	}
	nc := conn
	if cfg.tlsConfig != nil {
		lg.Debug("wrap connection with tls")
		nc = tls.Client(conn, cfg.tlsConfig)
	}
	c := newTCPClient(nc, proto, chunk)
	c.raddr = address
	c.tlsConf = cfg.tlsConfig
	c.dialer = dialer
	cd.Cancel()
	return c, nil
}

// NewTCPClientOn wraps an already established connection. The remote
// address of conn becomes the reconnect target.
func NewTCPClientOn(conn net.Conn, proto protocol.StreamProtocol, opts ...ClientOption) *TCPClient {
	cfg := applyClientOptions(opts)
	chunk := cfg.chunkSize
	if chunk <= 0 {
		if sc, ok := conn.(syscall.Conn); ok {
			chunk = socket.GuessBufferSize(sc)
		} else {
			chunk = socket.DefaultBufferSize
		}
	}
	c := newTCPClient(conn, proto, chunk)
	if ra := conn.RemoteAddr(); ra != nil {
		c.raddr = ra.String()
	}
	return c
}

func newTCPClient(conn net.Conn, proto protocol.StreamProtocol, chunk int) *TCPClient {
	return &TCPClient{
		conn:     conn,
		producer: stream.NewProducer(proto),
		consumer: stream.NewConsumer(proto),
		readBuf:  make([]byte, chunk),
	}
}

// SendPacket serializes packets and writes them out in one call. A
// context deadline bounds the write; an already expired deadline is
// rejected with ErrZeroTimeout since a partial frame must never reach
// the wire. When serialization fails, frames produced before the
// failing packet stay queued and go out with the next send.
func (c *TCPClient) SendPacket(ctx context.Context, packets ...any) error {
	if d, ok := ctx.Deadline(); ok && !d.After(time.Now()) {
		return ErrZeroTimeout
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.producer.Queue(packets...)
	data, err := c.producer.Read(-1)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if d, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(d)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := c.conn.Write(data); err != nil {
		return &OpError{Op: "send", Addr: c.conn.RemoteAddr(), Err: err}
	}
	return nil
}

// RecvPacket returns the next packet, reading from the connection as
// needed. Frame decode failures surface as *protocol.DecodeError with
// the stream already resynchronized past the bad frame.
func (c *TCPClient) RecvPacket(ctx context.Context) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recvLocked(ctx)
}

func (c *TCPClient) recvLocked(ctx context.Context) (any, error) {
	for {
		if c.closed {
			return nil, ErrClientClosed
		}
		packet, ok, err := c.consumer.Next()
		if err != nil {
			return nil, err
		}
		if ok {
			return packet, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		release := armReadContext(ctx, c.conn)
		n, err := c.conn.Read(c.readBuf)
		release()
		if n > 0 {
			c.consumer.Feed(c.readBuf[:n])
			if n == len(c.readBuf) {
				c.drainLocked()
			}
			continue
		}
		if err != nil {
			return nil, c.recvError(ctx, err)
		}
	}
}

// drainLocked pulls whatever already sits in the kernel buffer so later
// receives can be answered without touching the socket.
func (c *TCPClient) drainLocked() {
	r := nt.NetBufferOnlyReader{Conn: c.conn}
	for {
		n, err := r.Read(c.readBuf)
		if n > 0 {
			c.consumer.Feed(c.readBuf[:n])
		}
		if err != nil || n < len(c.readBuf) {
			return
		}
	}
}

func (c *TCPClient) recvError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return ctxErr
		}
	}
	if errors.Is(err, io.EOF) {
		return &OpError{Op: "recv", Addr: c.conn.RemoteAddr(), Err: io.EOF}
	}
	return &OpError{Op: "recv", Addr: c.conn.RemoteAddr(), Err: err}
}

// TryRecvPacket returns a packet if one can be produced from buffered
// data or from bytes already sitting in the kernel, without blocking.
// ok is false when no complete frame is available yet.
func (c *TCPClient) TryRecvPacket() (packet any, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false, ErrClientClosed
	}
	if packet, ok, err := c.consumer.Next(); err != nil || ok {
		return packet, ok, err
	}
	r := nt.NetBufferOnlyReader{Conn: c.conn}
	for {
		n, rerr := r.Read(c.readBuf)
		if n > 0 {
			c.consumer.Feed(c.readBuf[:n])
		}
		if rerr != nil {
			var ne net.Error
			if errors.As(rerr, &ne) && ne.Timeout() {
				break
			}
			if n == 0 {
				return nil, false, c.recvError(context.Background(), rerr)
			}
		}
		if n < len(c.readBuf) {
			break
		}
	}
	return c.consumer.Next()
}

// RecvPackets blocks for one packet, then drains every further packet
// already decodable from buffered data. A decode error cuts the drain
// short and is returned together with the packets gathered so far.
func (c *TCPClient) RecvPackets(ctx context.Context) ([]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	first, err := c.recvLocked(ctx)
	if err != nil {
		return nil, err
	}
	packets := []any{first}
	for {
		packet, ok, err := c.consumer.Next()
		if err != nil {
			return packets, err
		}
		if !ok {
			return packets, nil
		}
		packets = append(packets, packet)
	}
}

// Reconnect dials the remote address again, replacing the transport
// while keeping buffered stream state. Bytes received before a drop
// stay available, so a frame split across the reconnect is still
// assembled once its tail arrives.
func (c *TCPClient) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.raddr == "" {
		return ErrNotConnected
	}
	lg.Debugf("reconnect tcp %s", c.raddr)
	conn, err := c.dialer.DialContext(ctx, "tcp", c.raddr)
	if err != nil {
		return err
	}
	if c.conn != nil {
		c.conn.Close()
	}
	if c.tlsConf != nil {
		c.conn = tls.Client(conn, c.tlsConf)
	} else {
		c.conn = conn
	}
	c.closed = false
	return nil
}

// TryReconnect is Reconnect with the dial error swallowed. It reports
// whether the client is connected afterwards.
func (c *TCPClient) TryReconnect(ctx context.Context) bool {
	return c.Reconnect(ctx) == nil
}

// Detach hands the underlying connection to the caller and leaves the
// client closed. Buffered but unparsed bytes remain readable through
// Unconsumed.
func (c *TCPClient) Detach() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	if conn != nil {
		// receive calls may have left a deadline behind
		conn.SetDeadline(time.Time{})
	}
	return conn, nil
}

// Close shuts the write side down and closes the connection. Calling
// it again is a no-op.
func (c *TCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	type closeWriter interface {
		CloseWrite() error
	}
	if cw, ok := c.conn.(closeWriter); ok {
		cw.CloseWrite()
	}
	return c.conn.Close()
}

// Closed reports whether the client can no longer be used.
func (c *TCPClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Unconsumed returns bytes that were received but not yet parsed into a
// packet. Useful to carry stream state over to another transport.
func (c *TCPClient) Unconsumed() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consumer.Unconsumed()
}

func (c *TCPClient) LocalAddr() SocketAddress {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return SocketAddress{}
	}
	return AddrOf(c.conn.LocalAddr())
}

func (c *TCPClient) RemoteAddr() SocketAddress {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return SocketAddress{}
	}
	return AddrOf(c.conn.RemoteAddr())
}
