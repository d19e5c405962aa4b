// Package server implements packet oriented TCP and UDP servers. A
// Handler receives every decoded packet together with the client it
// came from; framing, client bookkeeping and error isolation are done
// here.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/pion/dtls/v2"

	"github.com/tessarion/netpack"
	"github.com/tessarion/netpack/common/lg"
	"github.com/tessarion/netpack/internal/socket"
)

// Handler receives every packet a server decodes. Returned errors are
// routed to HandleError when the handler also implements ErrorHandler,
// otherwise they are printed.
type Handler interface {
	HandlePacket(ctx context.Context, client *ConnectedClient, packet any) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, client *ConnectedClient, packet any) error

func (f HandlerFunc) HandlePacket(ctx context.Context, client *ConnectedClient, packet any) error {
	return f(ctx, client, packet)
}

// ConnectVerifier vets a connection before it joins a TCPServer. The
// probe client speaks the server protocol over the raw connection, so
// the verifier can run a packet exchange. Bytes the probe received but
// did not parse are replayed into the regular packet flow afterwards.
// Returning false or an error drops the connection.
type ConnectVerifier interface {
	VerifyConnect(ctx context.Context, probe *netpack.TCPClient) (bool, error)
}

// ConnectHandler is notified once a client joined the server.
type ConnectHandler interface {
	HandleConnect(client *ConnectedClient)
}

// DisconnectHandler is notified once a client left the server.
type DisconnectHandler interface {
	HandleDisconnect(client *ConnectedClient)
}

// BadRequestHandler reacts to received data that did not decode to a
// packet.
type BadRequestHandler interface {
	HandleBadRequest(client *ConnectedClient, err error)
}

// ErrorHandler reacts to errors and panics escaping HandlePacket.
type ErrorHandler interface {
	HandleError(client *ConnectedClient, err error)
}

// DefaultPollInterval is the cadence service actions run at.
const DefaultPollInterval = 100 * time.Millisecond

type serverConfig struct {
	pollInterval      time.Duration
	chunkSize         int
	tlsConfig         *tls.Config
	dtlsConfig        *dtls.Config
	socketOptions     socket.Options
	verifyConcurrency int64
	serviceActions    []func()
}

func newServerConfig(opts []ServerOption) serverConfig {
	cfg := serverConfig{
		pollInterval:      DefaultPollInterval,
		verifyConcurrency: 8,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// ServerOption configures a TCPServer or UDPServer at construction
// time.
type ServerOption func(*serverConfig)

// WithPollInterval changes how often service actions run.
func WithPollInterval(d time.Duration) ServerOption {
	return func(c *serverConfig) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithChunkSize overrides the per connection read buffer size.
func WithChunkSize(n int) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithTLS makes a TCPServer terminate TLS.
func WithTLS(config *tls.Config) ServerOption {
	return func(c *serverConfig) {
		c.tlsConfig = config
	}
}

// WithDTLS makes a UDPServer terminate DTLS.
func WithDTLS(config *dtls.Config) ServerOption {
	return func(c *serverConfig) {
		c.dtlsConfig = config
	}
}

// WithSocketOptions applies low level options on the listening socket.
// reusePort sets SO_REUSEPORT so several servers can share an address,
// dualStack clears IPV6_V6ONLY on IPv6 listeners.
func WithSocketOptions(reusePort, dualStack bool) ServerOption {
	return func(c *serverConfig) {
		c.socketOptions = socket.Options{ReusePort: reusePort, DualStack: dualStack}
	}
}

// WithVerifyConcurrency bounds how many connection verifications may
// run at once. Zero removes the bound.
func WithVerifyConcurrency(n int64) ServerOption {
	return func(c *serverConfig) {
		c.verifyConcurrency = n
	}
}

// WithServiceAction registers a function the server calls periodically
// while serving, for timers and other housekeeping.
func WithServiceAction(f func()) ServerOption {
	return func(c *serverConfig) {
		if f != nil {
			c.serviceActions = append(c.serviceActions, f)
		}
	}
}

// dispatchPacket runs the handler for one packet and keeps panics from
// taking the server down.
func dispatchPacket(ctx context.Context, h Handler, client *ConnectedClient, packet any) {
	defer func() {
		if r := recover(); r != nil {
			reportError(h, client, fmt.Errorf("handler panic: %v\n%s", r, debug.Stack()))
		}
	}()
	if err := h.HandlePacket(ctx, client, packet); err != nil {
		reportError(h, client, err)
	}
}

func reportError(h Handler, client *ConnectedClient, err error) {
	if eh, ok := h.(ErrorHandler); ok {
		eh.HandleError(client, err)
		return
	}
	line := strings.Repeat("-", 40)
	fmt.Fprintln(os.Stderr, line)
	fmt.Fprintf(os.Stderr, "error while processing a request from %s\n", client.Addr().String())
	fmt.Fprintln(os.Stderr, err)
	fmt.Fprintln(os.Stderr, line)
}

func reportBadRequest(h Handler, client *ConnectedClient, err error) {
	if bh, ok := h.(BadRequestHandler); ok {
		bh.HandleBadRequest(client, err)
		return
	}
	lg.Warningf("bad request from %s: %v", client.Addr().String(), err)
}

func runServiceActions(ctx context.Context, interval time.Duration, actions []func()) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, f := range actions {
				f()
			}
		}
	}
}
