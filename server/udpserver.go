package server

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/pion/dtls/v2"

	"github.com/tessarion/netpack"
	"github.com/tessarion/netpack/common/lg"
	"github.com/tessarion/netpack/common/nt"
	"github.com/tessarion/netpack/internal/socket"
	"github.com/tessarion/netpack/protocol"
)

// UDPServer serves one packet per datagram. Plain datagrams are
// dispatched sequentially from a single socket, which keeps handler
// invocations for one peer in arrival order. With WithDTLS the server
// terminates DTLS instead and serves each handshaked session on its
// own goroutine.
type UDPServer struct {
	handler Handler
	codec   protocol.Codec
	cfg     serverConfig

	pc net.PacketConn
	ln net.Listener

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewUDPServer binds address and prepares a server decoding datagrams
// with codec. Serve must be called to start dispatching.
func NewUDPServer(address string, codec protocol.Codec, handler Handler, opts ...ServerOption) (*UDPServer, error) {
	cfg := newServerConfig(opts)
	ctx, cancel := context.WithCancel(context.Background())
	s := &UDPServer{
		handler: handler,
		codec:   codec,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
	}
	if cfg.dtlsConfig != nil {
		ua, err := net.ResolveUDPAddr("udp", address)
		if err != nil {
			cancel()
			return nil, err
		}
		ln, err := dtls.Listen("udp", ua, cfg.dtlsConfig)
		if err != nil {
			cancel()
			return nil, err
		}
		s.ln = ln
	} else {
		pc, err := socket.ListenPacket(ctx, "udp", address, cfg.socketOptions)
		if err != nil {
			cancel()
			return nil, err
		}
		s.pc = pc
	}
	return s, nil
}

// Serve dispatches datagrams until the server is shut down, then
// returns netpack.ErrServerClosed.
func (s *UDPServer) Serve() error {
	if len(s.cfg.serviceActions) > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			runServiceActions(s.ctx, s.cfg.pollInterval, s.cfg.serviceActions)
		}()
	}
	if s.ln != nil {
		return s.serveDTLS()
	}
	return s.servePlain()
}

func (s *UDPServer) servePlain() error {
	lg.Infof("udp server listening on %s", s.pc.LocalAddr())
	for {
		dgram, err := nt.ReadUDPDatagram(s.pc)
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
		s.handleDatagram(dgram)
	}
}

func (s *UDPServer) serveDTLS() error {
	lg.Infof("dtls server listening on %s", s.ln.Addr())
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return netpack.ErrServerClosed
			default:
			}
			return err
		}
		s.wg.Add(1)
		go s.serveSession(conn)
	}
}

func (s *UDPServer) serveSession(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	stop := context.AfterFunc(s.ctx, func() {
		conn.Close()
	})
	defer stop()
	lg.Debugf("dtls session with %s", conn.RemoteAddr())
	sp := nt.WrapDTLSConn(conn)
	for {
		dgram, err := sp.NextDatagram()
		if err != nil {
			return
		}
		s.handleDatagram(dgram)
	}
}

func (s *UDPServer) handleDatagram(d nt.Datagram) {
	client := &ConnectedClient{
		addr: netpack.AddrOf(d.RemoteAddr()),
		t:    &udpTransport{codec: s.codec, reply: d.Reply},
	}
	packet, err := s.codec.Deserialize(d.Data())
	if err != nil {
		reportBadRequest(s.handler, client, err)
		return
	}
	dispatchPacket(s.ctx, s.handler, client, packet)
}

// Addr is the bound listen address.
func (s *UDPServer) Addr() netpack.SocketAddress {
	if s.ln != nil {
		return netpack.AddrOf(s.ln.Addr())
	}
	return netpack.AddrOf(s.pc.LocalAddr())
}

func (s *UDPServer) shutdown() {
	s.closeOnce.Do(func() {
		s.cancel()
		if s.ln != nil {
			s.closeErr = s.ln.Close()
		} else {
			s.closeErr = s.pc.Close()
		}
	})
}

// Close stops serving and waits for in-flight sessions. Calling it
// again is a no-op.
func (s *UDPServer) Close() error {
	s.shutdown()
	s.wg.Wait()
	return s.closeErr
}

// Shutdown is Close bounded by ctx.
func (s *UDPServer) Shutdown(ctx context.Context) error {
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
