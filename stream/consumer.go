package stream

import (
	"errors"
	"sync"

	"github.com/tessarion/netpack/internal"
	"github.com/tessarion/netpack/protocol"
)

// Consumer feeds raw stream bytes to framing consumers and hands back
// whole packets. It keeps a parser alive across Next calls, so frames
// may arrive in as many pieces as the transport likes.
type Consumer struct {
	mu         sync.Mutex
	proto      protocol.StreamProtocol
	buf        []byte
	inflight   protocol.FrameConsumer
	unconsumed []byte
}

func NewConsumer(p protocol.StreamProtocol) *Consumer {
	return &Consumer{proto: p}
}

// Feed appends bytes read from the transport.
func (c *Consumer) Feed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(c.buf, chunk...)
}

// Next tries to decode one packet from the buffered bytes. ok is false
// when more bytes are needed. A non nil error reports a corrupt frame,
// the recovery bytes are already buffered again and the consumer stays
// usable.
func (c *Consumer) Next() (packet any, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buf) == 0 {
		return nil, false, nil
	}
	chunk := c.buf
	c.buf = nil
	fc := c.inflight
	c.inflight = nil
	if fc == nil {
		fc = c.proto.NewConsumer()
	}

	packet, leftover, done, err := fc.Feed(chunk)
	if err != nil {
		c.unconsumed = nil
		var de *protocol.DecodeError
		if errors.As(err, &de) {
			c.buf = internal.Dup(de.Remaining)
		}
		return nil, false, err
	}
	if !done {
		c.unconsumed = append(c.unconsumed, chunk...)
		c.inflight = fc
		return nil, false, nil
	}
	c.unconsumed = nil
	c.buf = leftover
	return packet, true, nil
}

// OneShot feeds data and drains every packet it completes. Corrupt
// frames are skipped, the first error is reported after the drain.
func (c *Consumer) OneShot(data []byte) ([]any, error) {
	c.Feed(data)
	var packets []any
	var firstErr error
	for {
		packet, ok, err := c.Next()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !ok {
			break
		}
		packets = append(packets, packet)
	}
	return packets, firstErr
}

// Unconsumed returns the bytes fed but not yet turned into a packet.
// After a reconnect, feed them to the consumer bound to the new
// connection so a half received frame is not lost.
func (c *Consumer) Unconsumed() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, 0, len(c.unconsumed)+len(c.buf))
	out = append(out, c.unconsumed...)
	out = append(out, c.buf...)
	return out
}
