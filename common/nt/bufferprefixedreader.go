package nt

import (
	"io"
	"net"
)

// BufferPrefixedReader is an io.Reader which serves Buffer first, then
// reads from the underlying Reader. Used to hand leftover bytes from a
// handshake back to whoever reads the connection next.
type BufferPrefixedReader struct {
	Reader io.Reader
	Buffer []byte

	readFn func([]byte) (int, error)
	ptr    int
}

func NewBufferPrefixedReader(r io.Reader, b []byte) *BufferPrefixedReader {
	rr := BufferPrefixedReader{
		Reader: r,
		Buffer: b,
	}
	rr.readFn = rr.readBuffer
	return &rr
}

// Read implements io.Reader
func (br *BufferPrefixedReader) Read(b []byte) (int, error) {
	return br.readFn(b)
}

func (br *BufferPrefixedReader) readBuffer(b []byte) (int, error) {
	if br.ptr >= len(br.Buffer) {
		br.readFn = br.Reader.Read
		return br.Reader.Read(b)
	}

	n := copy(b, br.Buffer[br.ptr:])
	br.ptr += n
	if br.ptr >= len(br.Buffer) {
		br.readFn = br.Reader.Read
	}
	return n, nil
}

type netConn net.Conn

// BufferPrefixedConn is a net.Conn with BufferPrefixedReader
type BufferPrefixedConn struct {
	netConn
	BufferPrefixedReader
}

func (bc *BufferPrefixedConn) Read(b []byte) (int, error) {
	return bc.BufferPrefixedReader.Read(b)
}

func NewBufferPrefixedConn(c net.Conn, b []byte) *BufferPrefixedConn {
	return &BufferPrefixedConn{
		netConn:              c,
		BufferPrefixedReader: *NewBufferPrefixedReader(c, b),
	}
}
