package netpack

// MaxDatagramSize is the largest serialized packet a datagram client or
// server will send, and the size of the buffer datagrams are received
// into. Anything larger is refused before hitting the socket.
const MaxDatagramSize = 8192
