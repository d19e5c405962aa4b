// stream bridges packet queues and raw byte streams for transports
// that only move bytes.
package stream

import (
	"sync"

	"github.com/tessarion/netpack/protocol"
)

// Producer turns queued packets into wire bytes on demand. Packets are
// only serialized when Read needs them.
type Producer struct {
	mu    sync.Mutex
	proto protocol.StreamProtocol
	queue []any
	carry []byte
}

func NewProducer(p protocol.StreamProtocol) *Producer {
	return &Producer{proto: p}
}

// Queue appends packets to be serialized by later Reads.
func (p *Producer) Queue(packets ...any) {
	if len(packets) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, packets...)
}

// Read produces up to n bytes of the pending stream, n < 0 drains
// every queued packet. When a packet fails to serialize it is dropped
// and the error returned, the bytes produced before it stay buffered
// for the next Read. No byte is ever lost.
func (p *Producer) Read(n int) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.carry
	p.carry = nil
	for (n < 0 || len(out) < n) && len(p.queue) > 0 {
		packet := p.queue[0]
		p.queue = p.queue[1:]
		chunks, err := p.proto.IncrementalSerialize(packet)
		if err != nil {
			p.carry = out
			return nil, err
		}
		for _, c := range chunks {
			out = append(out, c...)
		}
	}
	if n >= 0 && len(out) > n {
		p.carry = append(p.carry, out[n:]...)
		out = out[:n]
	}
	return out, nil
}

// Pending reports whether a Read would return bytes.
func (p *Producer) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.carry) > 0 || len(p.queue) > 0
}
