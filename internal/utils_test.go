package internal_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tessarion/netpack/internal"
)

func TestDup(t *testing.T) {
	b := []byte{1, 2, 3}
	d := internal.Dup(b)
	assert.Equal(t, b, d)
	d[0] = 9
	assert.EqualValues(t, 1, b[0])
}

func TestMust2(t *testing.T) {
	assert.EqualValues(t, 10, internal.Must2(10, nil))
	assert.Panics(t, func() {
		internal.Must2(0, errors.New("no"))
	})
}

func TestCancellableDefer(t *testing.T) {
	n := 0
	d := internal.NewCancellableDefer(func() { n++ })
	d.Defer()
	assert.EqualValues(t, 1, n)

	d2 := internal.NewCancellableDefer(func() { n++ })
	d2.Cancel()
	d2.Defer()
	assert.EqualValues(t, 1, n)
}

func TestSyncMap(t *testing.T) {
	m := internal.SyncMap[string, int]{}
	_, ok := m.Load("a")
	assert.False(t, ok)

	m.Store("a", 1)
	m.Store("b", 2)
	v, ok := m.Load("a")
	assert.True(t, ok)
	assert.EqualValues(t, 1, v)
	assert.EqualValues(t, 2, m.Length())

	m.Delete("a")
	_, ok = m.Load("a")
	assert.False(t, ok)
}

func TestBytesPool(t *testing.T) {
	p := internal.NewBytesPool(16, 2)
	b := p.Rent()
	assert.EqualValues(t, 16, len(b))
	p.Return(b)
	b2 := p.Rent()
	assert.EqualValues(t, 16, len(b2))

	assert.Panics(t, func() {
		p.Return(b2[:4])
	})
}
