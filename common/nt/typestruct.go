package nt

import (
	"net"

	"github.com/tessarion/netpack/internal"
)

type udpDatagram struct {
	data  []byte
	conn  net.PacketConn
	raddr net.Addr
}

var _ Datagram = udpDatagram{}

func (u udpDatagram) Data() []byte {
	return u.data
}
func (u udpDatagram) Reply(b []byte) error {
	_, err := u.conn.WriteTo(b, u.raddr)
	return err
}
func (u udpDatagram) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}
func (u udpDatagram) RemoteAddr() net.Addr {
	return u.raddr
}

// ReadUDPDatagram blocks for the next datagram on pc. Payloads longer
// than the pool slice are truncated, same as a plain recvfrom.
func ReadUDPDatagram(pc net.PacketConn) (Datagram, error) {
	buf := internal.BytesPool8k.Rent()
	defer internal.BytesPool8k.Return(buf)
	n, addr, err := pc.ReadFrom(buf)
	if err != nil {
		return nil, err
	}
	return udpDatagram{
		raddr: addr,
		data:  internal.Dup(buf[:n]),
		conn:  pc,
	}, nil
}

type connSeqPacket struct {
	conn net.Conn
}

var _ SeqPacket = connSeqPacket{}

func (u connSeqPacket) NextDatagram() (Datagram, error) {
	buf := internal.BytesPool8k.Rent()
	defer internal.BytesPool8k.Return(buf)
	n, err := u.conn.Read(buf)
	if err != nil {
		return nil, err
	}

	dgram := connDatagram{
		data: internal.Dup(buf[:n]),
		conn: u.conn,
	}
	return dgram, nil
}
func (u connSeqPacket) Reply(b []byte) error {
	_, err := u.conn.Write(b)
	return err
}
func (u connSeqPacket) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}
func (u connSeqPacket) RemoteAddr() net.Addr {
	return u.conn.RemoteAddr()
}

// WrapDTLSConn adapts a packet oriented net.Conn (each Read yields one
// whole record, dtls.Conn behaves like that) into a SeqPacket.
func WrapDTLSConn(conn net.Conn) SeqPacket {
	return connSeqPacket{conn: conn}
}

type connDatagram struct {
	data []byte
	conn net.Conn
}

var _ Datagram = connDatagram{}

func (u connDatagram) Data() []byte {
	return u.data
}
func (u connDatagram) Reply(b []byte) error {
	_, err := u.conn.Write(b)
	return err
}
func (u connDatagram) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}
func (u connDatagram) RemoteAddr() net.Addr {
	return u.conn.RemoteAddr()
}
