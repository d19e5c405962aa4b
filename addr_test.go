package netpack

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSocketAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    SocketAddress
		wantErr bool
	}{
		{"127.0.0.1:8080", SocketAddress{Host: "127.0.0.1", Port: 8080}, false},
		{"[::1]:443", SocketAddress{Host: "::1", Port: 443}, false},
		{"[fe80::1%eth0]:2000", SocketAddress{Host: "fe80::1", Port: 2000, Zone: "eth0"}, false},
		{"example.com:80", SocketAddress{Host: "example.com", Port: 80}, false},
		{"bücher.example:1234", SocketAddress{Host: "xn--bcher-kva.example", Port: 1234}, false},
		{"127.0.0.1", SocketAddress{}, true},
		{"127.0.0.1:99999", SocketAddress{}, true},
	}
	for _, tt := range tests {
		got, err := NewSocketAddress(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSocketAddressString(t *testing.T) {
	assert.Equal(t, "127.0.0.1:9", SocketAddress{Host: "127.0.0.1", Port: 9}.String())
	assert.Equal(t, "[::1]:443", SocketAddress{Host: "::1", Port: 443}.String())
	assert.Equal(t, "[fe80::1%eth0]:0", SocketAddress{Host: "fe80::1", Zone: "eth0"}.String())
}

func TestAddrOf(t *testing.T) {
	tcp := AddrOf(&net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 80})
	assert.Equal(t, SocketAddress{Host: "10.0.0.1", Port: 80, Net: "tcp"}, tcp)
	assert.False(t, tcp.IsIPv6())

	udp := AddrOf(&net.UDPAddr{IP: net.ParseIP("::1"), Port: 53})
	assert.Equal(t, SocketAddress{Host: "::1", Port: 53, Net: "udp"}, udp)
	assert.True(t, udp.IsIPv6())

	assert.Equal(t, SocketAddress{}, AddrOf(nil))
}
