package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sync/semaphore"

	"github.com/tessarion/netpack"
	"github.com/tessarion/netpack/common/lg"
	"github.com/tessarion/netpack/common/nt"
	"github.com/tessarion/netpack/internal"
	"github.com/tessarion/netpack/internal/socket"
	"github.com/tessarion/netpack/protocol"
	"github.com/tessarion/netpack/stream"
)

// TCPServer serves framed packets over stream connections, one reader
// goroutine per client. Outbound packets go through a per client write
// queue, so broadcasting from a handler cannot stall on one slow peer.
type TCPServer struct {
	handler Handler
	proto   protocol.StreamProtocol
	cfg     serverConfig

	ln        net.Listener
	clients   internal.SyncMap[string, *ConnectedClient]
	verifySem *semaphore.Weighted

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewTCPServer binds address and prepares a server framing packets
// with proto. Serve must be called to accept connections.
func NewTCPServer(address string, proto protocol.StreamProtocol, handler Handler, opts ...ServerOption) (*TCPServer, error) {
	cfg := newServerConfig(opts)
	ctx, cancel := context.WithCancel(context.Background())
	ln, err := socket.Listen(ctx, "tcp", address, cfg.socketOptions)
	if err != nil {
		cancel()
		return nil, err
	}
	if cfg.tlsConfig != nil {
		ln = tls.NewListener(ln, cfg.tlsConfig)
	}
	s := &TCPServer{
		handler: handler,
		proto:   proto,
		cfg:     cfg,
		ln:      ln,
		ctx:     ctx,
		cancel:  cancel,
	}
	if cfg.verifyConcurrency > 0 {
		s.verifySem = semaphore.NewWeighted(cfg.verifyConcurrency)
	}
	return s, nil
}

// Serve accepts connections until the server is shut down, then
// returns netpack.ErrServerClosed.
func (s *TCPServer) Serve() error {
	lg.Infof("tcp server listening on %s", s.ln.Addr())
	if len(s.cfg.serviceActions) > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			runServiceActions(s.ctx, s.cfg.pollInterval, s.cfg.serviceActions)
		}()
	}
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return netpack.ErrServerClosed
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *TCPServer) serveConn(conn net.Conn) {
	defer s.wg.Done()
	raddr := conn.RemoteAddr()
	if v, ok := s.handler.(ConnectVerifier); ok {
		wrapped, accepted := s.verifyConn(conn, v)
		if !accepted {
			lg.Infof("connection from %s refused", raddr)
			conn.Close()
			return
		}
		conn = wrapped
	}

	t := newTCPTransport(conn, s.proto)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t.writeLoop()
	}()

	client := &ConnectedClient{addr: netpack.AddrOf(raddr), t: t}
	key := raddr.String()
	s.clients.Store(key, client)
	if s.ctx.Err() != nil {
		// shutdown raced the registration, the roster sweep may have
		// missed this client
		s.clients.Delete(key)
		t.close()
		return
	}
	lg.Debugf("client %s connected", key)
	if h, ok := s.handler.(ConnectHandler); ok {
		h.HandleConnect(client)
	}
	defer func() {
		s.clients.Delete(key)
		t.close()
		if h, ok := s.handler.(DisconnectHandler); ok {
			h.HandleDisconnect(client)
		}
		lg.Debugf("client %s disconnected", key)
	}()

	s.readLoop(client, conn)
}

func (s *TCPServer) readLoop(client *ConnectedClient, conn net.Conn) {
	chunk := s.cfg.chunkSize
	if chunk <= 0 {
		if sc, ok := conn.(syscall.Conn); ok {
			chunk = socket.GuessBufferSize(sc)
		} else {
			chunk = socket.DefaultBufferSize
		}
	}
	buf := make([]byte, chunk)
	consumer := stream.NewConsumer(s.proto)
	for {
		for {
			packet, ok, err := consumer.Next()
			if err != nil {
				reportBadRequest(s.handler, client, err)
				continue
			}
			if !ok {
				break
			}
			dispatchPacket(s.ctx, s.handler, client, packet)
		}
		n, err := conn.Read(buf)
		if n > 0 {
			consumer.Feed(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// verifyConn runs the verifier over a probe client. On success the
// returned connection replays bytes the probe buffered but never
// parsed.
func (s *TCPServer) verifyConn(conn net.Conn, v ConnectVerifier) (net.Conn, bool) {
	if s.verifySem != nil {
		if err := s.verifySem.Acquire(s.ctx, 1); err != nil {
			return nil, false
		}
		defer s.verifySem.Release(1)
	}
	var opts []netpack.ClientOption
	if s.cfg.chunkSize > 0 {
		opts = append(opts, netpack.WithChunkSize(s.cfg.chunkSize))
	}
	probe := netpack.NewTCPClientOn(conn, s.proto, opts...)
	accepted, err := v.VerifyConnect(s.ctx, probe)
	if err != nil {
		lg.Infof("verify failed for %s: %v", conn.RemoteAddr(), err)
		return nil, false
	}
	if !accepted {
		return nil, false
	}
	leftover := probe.Unconsumed()
	raw, err := probe.Detach()
	if err != nil {
		return nil, false
	}
	if len(leftover) > 0 {
		return nt.NewBufferPrefixedConn(raw, leftover), true
	}
	return raw, true
}

// Clients lists the clients currently being served.
func (s *TCPServer) Clients() []*ConnectedClient {
	var out []*ConnectedClient
	s.clients.Range(func(_ string, c *ConnectedClient) bool {
		out = append(out, c)
		return true
	})
	return out
}

// Addr is the bound listen address.
func (s *TCPServer) Addr() netpack.SocketAddress {
	return netpack.AddrOf(s.ln.Addr())
}

func (s *TCPServer) shutdown() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.ln.Close()
		s.clients.Range(func(_ string, c *ConnectedClient) bool {
			c.Close()
			return true
		})
	})
}

// Close stops accepting, drops every client and waits for the serving
// goroutines to finish. Calling it again is a no-op.
func (s *TCPServer) Close() error {
	s.shutdown()
	s.wg.Wait()
	return s.closeErr
}

// Shutdown is Close bounded by ctx.
func (s *TCPServer) Shutdown(ctx context.Context) error {
	s.shutdown()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return s.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
