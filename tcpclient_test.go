package netpack

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessarion/netpack/protocol"
)

func startEchoListener(t *testing.T) net.Listener {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()
	return ln
}

func TestTCPClientEcho(t *testing.T) {
	ln := startEchoListener(t)
	c, err := NewTCPClient(ln.Addr().String(), protocol.NewJSONStream())
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	want := map[string]any{"op": "ping", "seq": float64(1)}
	require.NoError(t, c.SendPacket(ctx, want))

	recvCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	packet, err := c.RecvPacket(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, want, packet)
}

func TestTCPClientManyPacketsOneWrite(t *testing.T) {
	ln := startEchoListener(t)
	c, err := NewTCPClient(ln.Addr().String(), protocol.NewJSONStream())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, c.SendPacket(ctx,
		map[string]any{"n": float64(1)},
		map[string]any{"n": float64(2)},
		map[string]any{"n": float64(3)},
	))

	var got []any
	for len(got) < 3 {
		packets, err := c.RecvPackets(ctx)
		require.NoError(t, err)
		got = append(got, packets...)
	}
	require.Len(t, got, 3)
	for i, packet := range got {
		assert.Equal(t, map[string]any{"n": float64(i + 1)}, packet)
	}
}

func TestTCPClientTryRecv(t *testing.T) {
	ln := startEchoListener(t)
	c, err := NewTCPClient(ln.Addr().String(), protocol.NewJSONStream())
	require.NoError(t, err)
	defer c.Close()

	packet, ok, err := c.TryRecvPacket()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, packet)

	want := map[string]any{"n": float64(7)}
	require.NoError(t, c.SendPacket(context.Background(), want))

	deadline := time.Now().Add(3 * time.Second)
	for {
		packet, ok, err = c.TryRecvPacket()
		require.NoError(t, err)
		if ok {
			assert.Equal(t, want, packet)
			return
		}
		require.True(t, time.Now().Before(deadline), "echo never came back")
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTCPClientRecvTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			if _, err := ln.Accept(); err != nil {
				return
			}
		}
	}()

	c, err := NewTCPClient(ln.Addr().String(), protocol.NewJSONStream())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.RecvPacket(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTCPClientZeroSendTimeout(t *testing.T) {
	ln := startEchoListener(t)
	c, err := NewTCPClient(ln.Addr().String(), protocol.NewJSONStream())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	err = c.SendPacket(ctx, map[string]any{})
	assert.ErrorIs(t, err, ErrZeroTimeout)
}

func TestTCPClientPeerShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	c, err := NewTCPClient(ln.Addr().String(), protocol.NewJSONStream())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err = c.RecvPacket(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestTCPClientDetachKeepsUnconsumed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	connCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		connCh <- conn
	}()

	c, err := NewTCPClient(ln.Addr().String(), protocol.NewJSONStream())
	require.NoError(t, err)
	srv := <-connCh
	defer srv.Close()

	_, err = srv.Write([]byte(`{"x":1}{"y`))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	packet, err := c.RecvPacket(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": float64(1)}, packet)

	deadline := time.Now().Add(3 * time.Second)
	for len(c.Unconsumed()) == 0 {
		_, ok, err := c.TryRecvPacket()
		require.NoError(t, err)
		require.False(t, ok)
		require.True(t, time.Now().Before(deadline), "tail bytes never arrived")
		time.Sleep(2 * time.Millisecond)
	}
	assert.Equal(t, []byte(`{"y`), c.Unconsumed())

	conn, err := c.Detach()
	require.NoError(t, err)
	require.NotNil(t, conn)
	defer conn.Close()

	_, err = c.RecvPacket(ctx)
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.Equal(t, []byte(`{"y`), c.Unconsumed())
}

func TestTCPClientReconnect(t *testing.T) {
	ln := startEchoListener(t)
	c, err := NewTCPClient(ln.Addr().String(), protocol.NewJSONStream())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, c.SendPacket(ctx, map[string]any{"n": float64(1)}))
	_, err = c.RecvPacket(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.True(t, c.Closed())
	require.NoError(t, c.Reconnect(ctx))
	assert.False(t, c.Closed())

	want := map[string]any{"n": float64(2)}
	require.NoError(t, c.SendPacket(ctx, want))
	packet, err := c.RecvPacket(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, packet)

	require.NoError(t, c.Close())
	require.True(t, c.TryReconnect(ctx))
	require.NoError(t, c.SendPacket(ctx, map[string]any{"n": float64(3)}))
	_, err = c.RecvPacket(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	ln.Close()
	assert.False(t, c.TryReconnect(ctx))
	assert.True(t, c.Closed())
}

func TestTCPClientCloseIdempotent(t *testing.T) {
	ln := startEchoListener(t)
	c, err := NewTCPClient(ln.Addr().String(), protocol.NewJSONStream())
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, c.Closed())

	err = c.SendPacket(context.Background(), map[string]any{})
	assert.ErrorIs(t, err, ErrClientClosed)
	_, err = c.RecvPacket(context.Background())
	assert.ErrorIs(t, err, ErrClientClosed)
}
