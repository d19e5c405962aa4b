package netpack

import (
	"crypto/tls"
	"time"

	"github.com/pion/dtls/v2"
)

type clientConfig struct {
	connectTimeout time.Duration
	chunkSize      int
	tlsConfig      *tls.Config
	dtlsConfig     *dtls.Config
	localAddr      string
}

// ClientOption configures a TCPClient or UDPClient at construction
// time.
type ClientOption func(*clientConfig)

// WithConnectTimeout bounds the initial dial. Zero means no limit.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.connectTimeout = d
	}
}

// WithChunkSize overrides the stream read buffer size. By default the
// size is guessed from the socket.
func WithChunkSize(n int) ClientOption {
	return func(c *clientConfig) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithTLS makes a TCPClient speak TLS over its connection.
func WithTLS(config *tls.Config) ClientOption {
	return func(c *clientConfig) {
		c.tlsConfig = config
	}
}

// WithDTLS makes a UDPClient speak DTLS with its remote endpoint. Only
// meaningful together with a remote address.
func WithDTLS(config *dtls.Config) ClientOption {
	return func(c *clientConfig) {
		c.dtlsConfig = config
	}
}

// WithLocalAddr binds the local side of the socket to a fixed address
// instead of an ephemeral one.
func WithLocalAddr(address string) ClientOption {
	return func(c *clientConfig) {
		c.localAddr = address
	}
}

func applyClientOptions(opts []ClientOption) clientConfig {
	var cfg clientConfig
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}
