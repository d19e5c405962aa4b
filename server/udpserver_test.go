package server

import (
	"net"
	"testing"
	"time"

	"github.com/pion/dtls/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessarion/netpack"
	"github.com/tessarion/netpack/protocol"
)

func startUDPServer(t *testing.T, codec protocol.Codec, h Handler, opts ...ServerOption) *UDPServer {
	s, err := NewUDPServer("127.0.0.1:0", codec, h, opts...)
	require.NoError(t, err)
	go s.Serve()
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUDPServerEcho(t *testing.T) {
	s := startUDPServer(t, protocol.JSONCodec{}, echoHandler{})

	c, err := netpack.NewUDPClientTo(s.Addr().String(), protocol.JSONCodec{})
	require.NoError(t, err)
	defer c.Close()

	ctx := testCtx(t)
	want := map[string]any{"op": "status", "id": float64(3)}
	require.NoError(t, c.SendPacket(ctx, want))
	packet, err := c.RecvPacket(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, packet)
}

func TestUDPServerReplyGoesToSender(t *testing.T) {
	s := startUDPServer(t, protocol.JSONCodec{}, echoHandler{})

	a, err := netpack.NewUDPClient(protocol.JSONCodec{}, netpack.WithLocalAddr("127.0.0.1:0"))
	require.NoError(t, err)
	defer a.Close()
	b, err := netpack.NewUDPClient(protocol.JSONCodec{}, netpack.WithLocalAddr("127.0.0.1:0"))
	require.NoError(t, err)
	defer b.Close()

	ctx := testCtx(t)
	require.NoError(t, a.SendPacketTo(ctx, s.Addr().String(), map[string]any{"from": "a"}))
	require.NoError(t, b.SendPacketTo(ctx, s.Addr().String(), map[string]any{"from": "b"}))

	packet, sender, err := a.RecvPacketFrom(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"from": "a"}, packet)
	assert.Equal(t, s.Addr().Port, sender.Port)

	packet, err = b.RecvPacket(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"from": "b"}, packet)
}

func TestUDPServerBadDatagram(t *testing.T) {
	h := newRecordingHandler()
	s := startUDPServer(t, protocol.JSONCodec{}, h)

	conn, err := net.Dial("udp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("not a packet"))
	require.NoError(t, err)
	_, err = conn.Write([]byte(`{"fine":true}`))
	require.NoError(t, err)

	select {
	case badErr := <-h.bad:
		assert.Error(t, badErr)
	case <-time.After(3 * time.Second):
		t.Fatal("bad request hook never fired")
	}
	select {
	case packet := <-h.got:
		assert.Equal(t, map[string]any{"fine": true}, packet)
	case <-time.After(3 * time.Second):
		t.Fatal("valid datagram after the bad one was lost")
	}
}

func TestUDPServerDTLSEcho(t *testing.T) {
	psk := []byte{0xAB, 0xC1, 0x23}
	serverCfg := &dtls.Config{
		PSK:             func(hint []byte) ([]byte, error) { return psk, nil },
		PSKIdentityHint: []byte("netpack"),
		CipherSuites:    []dtls.CipherSuiteID{dtls.TLS_PSK_WITH_AES_128_CCM_8},
	}
	clientCfg := &dtls.Config{
		PSK:             func(hint []byte) ([]byte, error) { return psk, nil },
		PSKIdentityHint: []byte("netpack"),
		CipherSuites:    []dtls.CipherSuiteID{dtls.TLS_PSK_WITH_AES_128_CCM_8},
	}
	s := startUDPServer(t, protocol.JSONCodec{}, echoHandler{}, WithDTLS(serverCfg))

	c, err := netpack.NewUDPClientTo(s.Addr().String(), protocol.JSONCodec{}, netpack.WithDTLS(clientCfg))
	require.NoError(t, err)
	defer c.Close()

	ctx := testCtx(t)
	want := map[string]any{"secret": float64(42)}
	require.NoError(t, c.SendPacket(ctx, want))
	packet, err := c.RecvPacket(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, packet)
}

func TestUDPServerServeReturnsAfterClose(t *testing.T) {
	s, err := NewUDPServer("127.0.0.1:0", protocol.JSONCodec{}, echoHandler{})
	require.NoError(t, err)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, netpack.ErrServerClosed)
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return after close")
	}
}
