package internal

import (
	"io"

	"github.com/stretchr/testify/assert"

	"github.com/tessarion/netpack/common/lg"
)

// Dup create a duplicate of input byte array
func Dup(i []byte) []byte {
	o := make([]byte, len(i))
	copy(o, i)
	return o
}

// Must2 passthrough first parameter, panic when second parameter is not nil
//
// Example:
//
// n := Must2(conn.Write(data))
func Must2[T any](v T, e error) T {
	if e != nil {
		lg.Panic(e)
	}
	return v
}

func AssertRead(t assert.TestingT, r io.Reader, b []byte) {
	b2 := Dup(b)
	_, err := io.ReadFull(r, b2)
	assert.Nil(t, err)
	assert.Equal(t, b, b2)
}

// CancellableDefer runs f at Defer time unless Cancel was called first.
// Useful when a cleanup should only happen on the error paths.
type CancellableDefer struct {
	f      func()
	cancel bool
}

func NewCancellableDefer(f func()) *CancellableDefer {
	return &CancellableDefer{
		f:      f,
		cancel: false,
	}
}

func (c *CancellableDefer) Defer() {
	if c.cancel {
		return
	}
	if c.f != nil {
		c.f()
	}
}

func (c *CancellableDefer) Cancel() {
	c.cancel = true
}
