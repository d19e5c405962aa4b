package netpack

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/pion/dtls/v2"

	"github.com/tessarion/netpack/common/lg"
	"github.com/tessarion/netpack/internal"
	"github.com/tessarion/netpack/internal/socket"
	"github.com/tessarion/netpack/protocol"
)

// UDPClient exchanges packets over datagrams, one packet per datagram.
// Datagrams that do not decode to a packet are dropped, the next call
// simply waits for the next one. Decoded packets queue up in arrival
// order together with their sender.
//
// A client is either bound (NewUDPClient) and exchanges packets with
// arbitrary peers, or connected (NewUDPClientTo) and tied to a single
// remote, optionally through DTLS.
type UDPClient struct {
	mu     sync.Mutex
	pc     net.PacketConn
	conn   net.Conn
	codec  protocol.Codec
	queue  []ReceivedDatagram
	buf    []byte
	closed bool
}

// ReceivedDatagram pairs a decoded packet with the address it came
// from.
type ReceivedDatagram struct {
	Packet any
	Sender SocketAddress
}

// NewUDPClient binds a datagram socket and decodes packets with codec.
// Without WithLocalAddr the socket binds to an ephemeral port.
func NewUDPClient(codec protocol.Codec, opts ...ClientOption) (*UDPClient, error) {
	cfg := applyClientOptions(opts)
	address := cfg.localAddr
	if address == "" {
		address = ":0"
	}
	pc, err := socket.ListenPacket(context.Background(), "udp", address, socket.Options{})
	if err != nil {
		return nil, err
	}
	return &UDPClient{pc: pc, codec: codec}, nil
}

// NewUDPClientTo connects a datagram socket to address. With WithDTLS
// the exchange is protected by a DTLS handshake.
func NewUDPClientTo(address string, codec protocol.Codec, opts ...ClientOption) (*UDPClient, error) {
	cfg := applyClientOptions(opts)
	dialer := net.Dialer{Timeout: cfg.connectTimeout}
	if cfg.localAddr != "" {
		la, err := net.ResolveUDPAddr("udp", cfg.localAddr)
		if err != nil {
			return nil, err
		}
		dialer.LocalAddr = la
	}
	lg.Debugf("connect udp %s", address)
	conn, err := dialer.Dial("udp", address)
	if err != nil {
		return nil, err
	}
	if cfg.dtlsConfig != nil {
		lg.Debug("wrap connection with dtls")
		dc, err := dtls.Client(conn, cfg.dtlsConfig)
		if err != nil {
			conn.Close()
			return nil, err
		}
		conn = dc
	}
	return &UDPClient{conn: conn, codec: codec}, nil
}

// SendPacketTo serializes each packet into its own datagram for
// address. Only bound clients can pick the destination per call.
func (c *UDPClient) SendPacketTo(ctx context.Context, address string, packets ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if c.pc == nil {
		return ErrRemoteFixed
	}
	ua, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return err
	}
	if d, ok := ctx.Deadline(); ok {
		c.pc.SetWriteDeadline(d)
		defer c.pc.SetWriteDeadline(time.Time{})
	}
	for _, packet := range packets {
		data, err := c.serializeDatagram(packet)
		if err != nil {
			return err
		}
		if _, err := c.pc.WriteTo(data, ua); err != nil {
			return &OpError{Op: "send", Addr: ua, Err: err}
		}
	}
	return nil
}

// SendPacket sends each packet to the connected remote as its own
// datagram.
func (c *UDPClient) SendPacket(ctx context.Context, packets ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if c.conn == nil {
		return ErrNotConnected
	}
	if d, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(d)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	for _, packet := range packets {
		data, err := c.serializeDatagram(packet)
		if err != nil {
			return err
		}
		if _, err := c.conn.Write(data); err != nil {
			return &OpError{Op: "send", Addr: c.conn.RemoteAddr(), Err: err}
		}
	}
	return nil
}

func (c *UDPClient) serializeDatagram(packet any) ([]byte, error) {
	data, err := c.codec.Serialize(packet)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxDatagramSize {
		return nil, ErrDatagramTooBig{Size: len(data)}
	}
	return data, nil
}

// RecvPacketFrom returns the next decodable packet and its sender.
func (c *UDPClient) RecvPacketFrom(ctx context.Context) (any, SocketAddress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if c.closed {
			return nil, SocketAddress{}, ErrClientClosed
		}
		if len(c.queue) > 0 {
			item := c.queue[0]
			c.queue = c.queue[1:]
			return item.Packet, item.Sender, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, SocketAddress{}, err
		}
		if err := c.recvDatagramLocked(ctx); err != nil {
			return nil, SocketAddress{}, err
		}
	}
}

// RecvPacket returns the next decodable packet, ignoring the sender.
func (c *UDPClient) RecvPacket(ctx context.Context) (any, error) {
	packet, _, err := c.RecvPacketFrom(ctx)
	return packet, err
}

// TryRecvPacketFrom pops a queued packet without blocking. When the
// queue is empty it polls the socket once for datagrams the kernel
// already buffered, then reports ok=false if there is still nothing.
func (c *UDPClient) TryRecvPacketFrom() (packet any, sender SocketAddress, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, SocketAddress{}, false, ErrClientClosed
	}
	if len(c.queue) == 0 {
		c.drainDatagramsLocked()
	}
	if len(c.queue) == 0 {
		return nil, SocketAddress{}, false, nil
	}
	item := c.queue[0]
	c.queue = c.queue[1:]
	return item.Packet, item.Sender, true, nil
}

// RecvPacketsFrom blocks until at least one packet is queued, then
// flushes the whole queue in arrival order.
func (c *UDPClient) RecvPacketsFrom(ctx context.Context) ([]ReceivedDatagram, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if c.closed {
			return nil, ErrClientClosed
		}
		if len(c.queue) > 0 {
			out := c.queue
			c.queue = nil
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.recvDatagramLocked(ctx); err != nil {
			return nil, err
		}
	}
}

// recvDatagramLocked blocks for one datagram, then opportunistically
// drains datagrams the kernel already buffered. Malformed datagrams
// are logged and skipped.
func (c *UDPClient) recvDatagramLocked(ctx context.Context) error {
	release := armReadContext(ctx, c.deadliner())
	n, sender, err := c.readDatagram(c.recvBuf())
	release()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return ctxErr
			}
		}
		return &OpError{Op: "recv", Addr: c.localAddrLocked(), Err: err}
	}
	c.enqueueLocked(c.recvBuf()[:n], sender)
	c.drainDatagramsLocked()
	return nil
}

func (c *UDPClient) drainDatagramsLocked() {
	d := c.deadliner()
	defer d.SetReadDeadline(time.Time{})
	for {
		if err := d.SetReadDeadline(time.Now().Add(time.Microsecond)); err != nil {
			return
		}
		n, sender, err := c.readDatagram(c.recvBuf())
		if err != nil {
			return
		}
		c.enqueueLocked(c.recvBuf()[:n], sender)
	}
}

func (c *UDPClient) enqueueLocked(data []byte, sender SocketAddress) {
	packet, err := c.codec.Deserialize(internal.Dup(data))
	if err != nil {
		lg.Debugf("drop malformed datagram from %s: %v", sender.String(), err)
		return
	}
	c.queue = append(c.queue, ReceivedDatagram{Packet: packet, Sender: sender})
}

func (c *UDPClient) readDatagram(buf []byte) (int, SocketAddress, error) {
	if c.pc != nil {
		n, addr, err := c.pc.ReadFrom(buf)
		if err != nil {
			return 0, SocketAddress{}, err
		}
		return n, AddrOf(addr), nil
	}
	n, err := c.conn.Read(buf)
	if err != nil {
		return 0, SocketAddress{}, err
	}
	return n, AddrOf(c.conn.RemoteAddr()), nil
}

func (c *UDPClient) deadliner() readDeadliner {
	if c.pc != nil {
		return c.pc
	}
	return c.conn
}

func (c *UDPClient) recvBuf() []byte {
	if c.buf == nil {
		c.buf = make([]byte, MaxDatagramSize)
	}
	return c.buf
}

func (c *UDPClient) localAddrLocked() net.Addr {
	if c.pc != nil {
		return c.pc.LocalAddr()
	}
	return c.conn.LocalAddr()
}

// Close releases the socket. Calling it again is a no-op.
func (c *UDPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.pc != nil {
		return c.pc.Close()
	}
	return c.conn.Close()
}

// Closed reports whether the client can no longer be used.
func (c *UDPClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *UDPClient) LocalAddr() SocketAddress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return AddrOf(c.localAddrLocked())
}

// RemoteAddr is the connected remote, zero for bound clients.
func (c *UDPClient) RemoteAddr() SocketAddress {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return SocketAddress{}
	}
	return AddrOf(c.conn.RemoteAddr())
}
