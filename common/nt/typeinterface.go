package nt

import (
	"net"
)

// net.Conn is a good abstraction for net stream, datagram transports
// need their own.

// Datagram is one received packet and a way to answer its sender.
type Datagram interface {
	Data() []byte
	Reply(b []byte) error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// SeqPacket is a connection carrying whole datagrams in order,
// e.g. a DTLS session.
type SeqPacket interface {
	NextDatagram() (Datagram, error)
	Reply(b []byte) error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}
