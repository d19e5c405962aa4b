package internal

import "github.com/tessarion/netpack/common/lg"

// BytesPool hands out fixed size byte slices without hitting the GC on
// every network read.
type BytesPool struct {
	ch chan []byte
	l  int
}

func NewBytesPool(bytesSize, poolSize int) *BytesPool {
	return &BytesPool{
		ch: make(chan []byte, poolSize),
		l:  bytesSize,
	}
}

func (p *BytesPool) Rent() []byte {
	select {
	case b := <-p.ch:
		return b
	default:
		return make([]byte, p.l)
	}
}

// Return gives a slice back to the pool. The full rented slice must come
// back, slicing it down and returning a part is a bug on the caller side.
func (p *BytesPool) Return(b []byte) {
	if len(b) != p.l {
		panic("please return all bytes you rented!")
	}
	capacity := cap(p.ch)

	if len(p.ch) == capacity {
		lg.Warning("returned more than rented")
		ch2 := make(chan []byte, capacity*2)
		for i := 0; i < capacity; i++ {
			ch2 <- <-p.ch
		}
		p.ch = ch2
	}
	p.ch <- b
}

var BytesPool64k = NewBytesPool(65536, 16)
var BytesPool8k = NewBytesPool(8192, 128)
var BytesPool256 = NewBytesPool(256, 128)
