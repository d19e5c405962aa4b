// Package netpack provides packet-oriented network clients and servers
// on top of ordinary stream and datagram sockets.
//
// A protocol.StreamProtocol turns arbitrary packets into self-delimiting
// byte frames; TCPClient and server.TCPServer move those frames over TCP
// (or TLS) connections, reassembling packets no matter how the bytes are
// chunked in transit. UDPClient and server.UDPServer map one packet onto
// one datagram using a plain protocol.Codec.
package netpack
