package netpack

import (
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// SocketAddress is a structured socket address. Host is an IP literal
// or an IDNA encoded domain name. Flowinfo and Zone only carry meaning
// for IPv6 endpoints.
type SocketAddress struct {
	Host     string
	Port     uint16
	Flowinfo uint32
	Zone     string

	// Net is the address network, e.g. "tcp" or "udp".
	Net string
}

// NewSocketAddress parses a "host:port" string. Domain names are
// normalized with IDNA, IP literals are kept as written.
func NewSocketAddress(address string) (SocketAddress, error) {
	h, p, err := net.SplitHostPort(address)
	if err != nil {
		return SocketAddress{}, err
	}
	port, err := strconv.ParseUint(p, 10, 16)
	if err != nil {
		return SocketAddress{}, err
	}
	a := SocketAddress{Port: uint16(port)}
	if host, zone, hasZone := strings.Cut(h, "%"); hasZone {
		a.Zone = zone
		h = host
	}
	if ip := net.ParseIP(h); ip != nil {
		a.Host = ip.String()
		return a, nil
	}
	ascii, err := idna.ToASCII(h)
	if err != nil {
		return SocketAddress{}, err
	}
	a.Host = ascii
	return a, nil
}

// AddrOf converts a net.Addr into a SocketAddress. Unknown address
// implementations are parsed from their string form.
func AddrOf(addr net.Addr) SocketAddress {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return SocketAddress{Host: a.IP.String(), Port: uint16(a.Port), Zone: a.Zone, Net: a.Network()}
	case *net.UDPAddr:
		return SocketAddress{Host: a.IP.String(), Port: uint16(a.Port), Zone: a.Zone, Net: a.Network()}
	case nil:
		return SocketAddress{}
	default:
		sa, err := NewSocketAddress(a.String())
		if err != nil {
			return SocketAddress{Host: a.String(), Net: a.Network()}
		}
		sa.Net = a.Network()
		return sa
	}
}

func (a SocketAddress) Network() string {
	return a.Net
}

func (a SocketAddress) String() string {
	host := a.Host
	if a.Zone != "" {
		host += "%" + a.Zone
	}
	return net.JoinHostPort(host, strconv.FormatUint(uint64(a.Port), 10))
}

// IsIPv6 reports whether the host is an IPv6 literal.
func (a SocketAddress) IsIPv6() bool {
	ip := net.ParseIP(a.Host)
	return ip != nil && ip.To4() == nil
}
