package netpack

import (
	"errors"
	"net"
	"strconv"
)

var ErrClientClosed = errors.New("closed client")
var ErrServerClosed = errors.New("closed server")
var ErrNotConnected = errors.New("no remote address")
var ErrRemoteFixed = errors.New("remote address is fixed")
var ErrZeroTimeout = errors.New("non-blocking send is not supported")

// ErrDatagramTooBig reports a serialized packet that does not fit in a
// single datagram.
type ErrDatagramTooBig struct {
	Size int
}

func (e ErrDatagramTooBig) Error() string {
	return "datagram does not fit in " + strconv.Itoa(MaxDatagramSize) + " bytes (got " + strconv.Itoa(e.Size) + ")"
}

func (e ErrDatagramTooBig) Is(t error) bool {
	_, ok := t.(ErrDatagramTooBig)
	return ok
}

// OpError wraps a transport error with the operation and peer it
// happened on.
type OpError struct {
	Op   string
	Addr net.Addr
	Err  error
}

func (e *OpError) Error() string {
	s := "netpack " + e.Op
	if e.Addr != nil {
		s += " " + e.Addr.String()
	}
	return s + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the wrapped error is a transport timeout.
func (e *OpError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}
