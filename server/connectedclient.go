package server

import (
	"context"
	"net"
	"sync"

	"github.com/tessarion/netpack"
	"github.com/tessarion/netpack/common/lg"
	"github.com/tessarion/netpack/internal"
	"github.com/tessarion/netpack/protocol"
	"github.com/tessarion/netpack/stream"
)

// ConnectedClient is the peer a packet came from and the way back to
// it. For TCP it lives as long as the connection, for UDP one is made
// per datagram.
type ConnectedClient struct {
	addr netpack.SocketAddress
	t    clientTransport
	data internal.SyncMap[string, any]
}

type clientTransport interface {
	sendPackets(ctx context.Context, packets []any) error
	close() error
	closeAfterSend()
	isClosed() bool
}

// Addr is the peer address.
func (c *ConnectedClient) Addr() netpack.SocketAddress {
	return c.addr
}

// SendPacket serializes packets and queues them for the peer.
func (c *ConnectedClient) SendPacket(ctx context.Context, packets ...any) error {
	return c.t.sendPackets(ctx, packets)
}

// Close drops the client. For UDP clients this is a no-op.
func (c *ConnectedClient) Close() error {
	return c.t.close()
}

// CloseAfterSend drops the client once every queued packet has been
// written out, so a reply sent right before it still reaches the peer.
func (c *ConnectedClient) CloseAfterSend() {
	c.t.closeAfterSend()
}

// Closed reports whether the client was dropped.
func (c *ConnectedClient) Closed() bool {
	return c.t.isClosed()
}

// Store attaches a named value to the client, visible to later packets
// from the same connection.
func (c *ConnectedClient) Store(key string, value any) {
	c.data.Store(key, value)
}

// Load returns a value attached with Store.
func (c *ConnectedClient) Load(key string) (any, bool) {
	return c.data.Load(key)
}

// tcpTransport owns the write side of a served connection. Writes go
// through a queue drained by writeLoop, so a handler sending to a slow
// peer does not stall the read loop of another client.
type tcpTransport struct {
	conn     net.Conn
	producer *stream.Producer

	mu        sync.Mutex
	sendCh    chan []byte
	done      chan struct{}
	closeReq  chan struct{}
	closeOnce sync.Once
	reqOnce   sync.Once
	closeErr  error
}

func newTCPTransport(conn net.Conn, proto protocol.StreamProtocol) *tcpTransport {
	return &tcpTransport{
		conn:     conn,
		producer: stream.NewProducer(proto),
		sendCh:   make(chan []byte, 16),
		done:     make(chan struct{}),
		closeReq: make(chan struct{}),
	}
}

func (t *tcpTransport) writeLoop() {
	for {
		select {
		case <-t.done:
			return
		case data := <-t.sendCh:
			if _, err := t.conn.Write(data); err != nil {
				lg.Debugf("write to %s failed: %v", t.conn.RemoteAddr(), err)
				t.close()
				return
			}
		case <-t.closeReq:
			// flush what is already queued, then close
			for {
				select {
				case data := <-t.sendCh:
					if _, err := t.conn.Write(data); err != nil {
						t.close()
						return
					}
				default:
					t.close()
					return
				}
			}
		}
	}
}

func (t *tcpTransport) sendPackets(ctx context.Context, packets []any) error {
	t.mu.Lock()
	t.producer.Queue(packets...)
	data, err := t.producer.Read(-1)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	select {
	case <-t.done:
		return netpack.ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	case t.sendCh <- data:
		return nil
	}
}

func (t *tcpTransport) close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		type closeWriter interface {
			CloseWrite() error
		}
		if cw, ok := t.conn.(closeWriter); ok {
			cw.CloseWrite()
		}
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *tcpTransport) closeAfterSend() {
	t.reqOnce.Do(func() { close(t.closeReq) })
}

func (t *tcpTransport) isClosed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// udpTransport replies to the sender of one datagram. It has no
// connection to close.
type udpTransport struct {
	codec protocol.Codec
	reply func([]byte) error
}

func (t *udpTransport) sendPackets(_ context.Context, packets []any) error {
	for _, packet := range packets {
		data, err := t.codec.Serialize(packet)
		if err != nil {
			return err
		}
		if len(data) > netpack.MaxDatagramSize {
			return netpack.ErrDatagramTooBig{Size: len(data)}
		}
		if err := t.reply(data); err != nil {
			return err
		}
	}
	return nil
}

func (t *udpTransport) close() error {
	return nil
}

func (t *udpTransport) closeAfterSend() {}

func (t *udpTransport) isClosed() bool {
	return false
}
