package protocol

import (
	"errors"
	"fmt"
)

var ErrProtocol = errors.New("protocol error")

type baseProtocolError struct {
	msg string
}

func (e baseProtocolError) Error() string {
	return e.msg
}
func (e baseProtocolError) Unwrap() error {
	return ErrProtocol
}

func newProtocolError(msg string) error {
	return baseProtocolError{
		msg: msg,
	}
}

func newProtocolErrorf(format string, a ...any) error {
	return baseProtocolError{
		msg: fmt.Sprintf(format, a...),
	}
}

var ErrMissingData = newProtocolError("missing data to create packet")
var ErrExtraData = newProtocolError("extra data caught")

// DecodeError reports a frame that could not be decoded from a stream.
type DecodeError struct {
	Msg string
	// Data is the frame the failure was pinned to, when one was
	// identified.
	Data []byte
	// Remaining holds every byte past the failure point. Feeding it to
	// a fresh consumer resynchronizes the stream without losing data.
	Remaining []byte
	// Err is the payload codec error when one caused the failure.
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *DecodeError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrProtocol
}

func (e *DecodeError) Is(t error) bool {
	return t == ErrProtocol
}
