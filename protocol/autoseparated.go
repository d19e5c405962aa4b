package protocol

import (
	"bytes"

	"github.com/tessarion/netpack/internal"
)

// AutoSeparatedProtocol frames payloads by appending a separator byte
// sequence. The payload must not contain the separator.
type AutoSeparatedProtocol struct {
	codec     Codec
	separator []byte
	keepends  bool
}

type AutoSeparatedOption func(*AutoSeparatedProtocol)

// WithKeepends makes the consumer hand the payload codec the separator
// together with the payload.
func WithKeepends() AutoSeparatedOption {
	return func(p *AutoSeparatedProtocol) {
		p.keepends = true
	}
}

func NewAutoSeparated(codec Codec, separator []byte, opts ...AutoSeparatedOption) (*AutoSeparatedProtocol, error) {
	if len(separator) < 1 {
		return nil, newProtocolError("empty separator")
	}
	p := &AutoSeparatedProtocol{
		codec:     codec,
		separator: internal.Dup(separator),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func (p *AutoSeparatedProtocol) Separator() []byte {
	return internal.Dup(p.separator)
}

func (p *AutoSeparatedProtocol) Keepends() bool {
	return p.keepends
}

func (p *AutoSeparatedProtocol) Serialize(packet any) ([]byte, error) {
	return p.codec.Serialize(packet)
}

func (p *AutoSeparatedProtocol) Deserialize(data []byte) (any, error) {
	return p.codec.Deserialize(data)
}

func (p *AutoSeparatedProtocol) IncrementalSerialize(packet any) ([][]byte, error) {
	data, err := p.codec.Serialize(packet)
	if err != nil {
		return nil, err
	}
	// trailing separator bytes are redundant, strip them like a
	// bytes.TrimRight cutset, then embedded occurrences are fatal
	data = bytes.TrimRight(data, string(p.separator))
	if bytes.Contains(data, p.separator) {
		return nil, newProtocolErrorf("separator %q found in serialized packet and is not at the end", p.separator)
	}
	frame := make([]byte, 0, len(data)+len(p.separator))
	frame = append(frame, data...)
	frame = append(frame, p.separator...)
	return [][]byte{frame}, nil
}

func (p *AutoSeparatedProtocol) NewConsumer() FrameConsumer {
	return &autoSeparatedConsumer{p: p}
}

type autoSeparatedConsumer struct {
	p        *AutoSeparatedProtocol
	buf      []byte
	finished bool
}

func (c *autoSeparatedConsumer) Feed(chunk []byte) (any, []byte, bool, error) {
	if c.finished {
		panic("feed on finished consumer")
	}
	c.buf = append(c.buf, chunk...)
	sep := c.p.separator
	for {
		i := bytes.Index(c.buf, sep)
		if i < 0 {
			return nil, nil, false, nil
		}
		data := c.buf[:i]
		if c.p.keepends {
			data = c.buf[:i+len(sep)]
		}
		rest := c.buf[i+len(sep):]
		packet, err := c.p.codec.Deserialize(internal.Dup(data))
		if err != nil {
			// bad payload between separators, drop it and keep
			// scanning what is already buffered
			c.buf = rest
			continue
		}
		c.finished = true
		return packet, internal.Dup(rest), true, nil
	}
}
