package protocol

import (
	"github.com/tessarion/netpack/internal"
)

// FixedSizeProtocol frames payloads by their constant byte size.
type FixedSizeProtocol struct {
	codec Codec
	size  int
}

func NewFixedSize(codec Codec, size int) (*FixedSizeProtocol, error) {
	if size < 1 {
		return nil, newProtocolError("size must be a positive integer")
	}
	return &FixedSizeProtocol{codec: codec, size: size}, nil
}

func (p *FixedSizeProtocol) PacketSize() int {
	return p.size
}

func (p *FixedSizeProtocol) Serialize(packet any) ([]byte, error) {
	data, err := p.codec.Serialize(packet)
	if err != nil {
		return nil, err
	}
	if len(data) != p.size {
		return nil, newProtocolError("serialized data size does not meet expectation")
	}
	return data, nil
}

func (p *FixedSizeProtocol) Deserialize(data []byte) (any, error) {
	if len(data) != p.size {
		return nil, newProtocolError("data size does not meet expectation")
	}
	return p.codec.Deserialize(data)
}

func (p *FixedSizeProtocol) IncrementalSerialize(packet any) ([][]byte, error) {
	data, err := p.Serialize(packet)
	if err != nil {
		return nil, err
	}
	return [][]byte{data}, nil
}

func (p *FixedSizeProtocol) NewConsumer() FrameConsumer {
	return &fixedSizeConsumer{p: p}
}

type fixedSizeConsumer struct {
	p        *FixedSizeProtocol
	buf      []byte
	finished bool
}

func (c *fixedSizeConsumer) Feed(chunk []byte) (any, []byte, bool, error) {
	if c.finished {
		panic("feed on finished consumer")
	}
	c.buf = append(c.buf, chunk...)
	if len(c.buf) < c.p.size {
		return nil, nil, false, nil
	}
	frame := c.buf[:c.p.size]
	rest := c.buf[c.p.size:]
	packet, err := c.p.codec.Deserialize(internal.Dup(frame))
	c.finished = true
	if err != nil {
		// shift one byte so the next consumer can find a real frame
		// inside what we misread
		remaining := make([]byte, 0, len(c.buf)-1)
		remaining = append(remaining, frame[1:]...)
		remaining = append(remaining, rest...)
		return nil, nil, false, &DecodeError{
			Msg:       "error when deserializing data",
			Data:      internal.Dup(frame),
			Remaining: remaining,
			Err:       err,
		}
	}
	return packet, internal.Dup(rest), true, nil
}
