package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/tessarion/netpack/internal"
)

// JSONCodec maps packets to compact JSON documents.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

func (JSONCodec) Serialize(packet any) ([]byte, error) {
	data, err := json.Marshal(packet)
	if err != nil {
		return nil, newProtocolErrorf("json encode error: %v", err)
	}
	return data, nil
}

func (JSONCodec) Deserialize(data []byte) (any, error) {
	var packet any
	if err := json.Unmarshal(data, &packet); err != nil {
		return nil, newProtocolErrorf("json decode error: %v", err)
	}
	return packet, nil
}

// JSONStreamProtocol speaks a stream of JSON documents with no framing
// bytes at all. The consumer finds document boundaries by tracking
// string, object and array nesting, so a frame is simply one balanced
// document. Only strings, arrays and objects can travel: a bare number
// has no boundary a scanner could detect.
type JSONStreamProtocol struct {
	codec JSONCodec
}

var _ StreamProtocol = (*JSONStreamProtocol)(nil)

func NewJSONStream() *JSONStreamProtocol {
	return &JSONStreamProtocol{}
}

func (p *JSONStreamProtocol) Serialize(packet any) ([]byte, error) {
	return p.codec.Serialize(packet)
}

func (p *JSONStreamProtocol) Deserialize(data []byte) (any, error) {
	return p.codec.Deserialize(data)
}

func (p *JSONStreamProtocol) IncrementalSerialize(packet any) ([][]byte, error) {
	data, err := p.codec.Serialize(packet)
	if err != nil {
		return nil, err
	}
	return [][]byte{data}, nil
}

func (p *JSONStreamProtocol) NewConsumer() FrameConsumer {
	return &jsonConsumer{p: p}
}

type jsonConsumer struct {
	p        *JSONStreamProtocol
	partial  []byte
	quote    int
	brace    int
	bracket  int
	first    byte
	finished bool
}

// escaped reports whether the next byte sits behind an odd run of
// backslashes.
func (c *jsonConsumer) escaped() bool {
	n := 0
	for i := len(c.partial) - 1; i >= 0 && c.partial[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

func (c *jsonConsumer) add(kind byte, delta int) {
	switch kind {
	case '"':
		c.quote += delta
	case '{':
		c.brace += delta
	case '[':
		c.bracket += delta
	}
	if c.first == 0 {
		c.first = kind
	}
}

func (c *jsonConsumer) countOf(kind byte) int {
	switch kind {
	case '"':
		return c.quote
	case '{':
		return c.brace
	default:
		return c.bracket
	}
}

func (c *jsonConsumer) Feed(chunk []byte) (any, []byte, bool, error) {
	if c.finished {
		panic("feed on finished consumer")
	}
	for idx := 0; idx < len(chunk); idx++ {
		ch := chunk[idx]
		switch {
		case ch == '"' && !c.escaped():
			if c.quote == 1 {
				c.add('"', -1)
			} else {
				c.add('"', 1)
			}
		case c.quote > 0:
			c.partial = append(c.partial, ch)
			continue
		case ch == '{':
			c.add('{', 1)
		case ch == '[':
			c.add('[', 1)
		case ch == '}':
			c.add('{', -1)
		case ch == ']':
			c.add('[', -1)
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			continue
		default:
			if c.first == 0 {
				// a bare value has no detectable end
				c.finished = true
				return nil, nil, false, &DecodeError{
					Msg:       "json document must begin with a string, array or object",
					Data:      internal.Dup(chunk),
					Remaining: internal.Dup(c.partial),
				}
			}
		}
		c.partial = append(c.partial, ch)
		if c.first != 0 && c.countOf(c.first) <= 0 {
			c.finished = true
			rest := chunk[idx+1:]
			packet, err := c.p.codec.Deserialize(internal.Dup(c.partial))
			if err != nil {
				return nil, nil, false, &DecodeError{
					Msg:       "json decode error",
					Data:      internal.Dup(c.partial),
					Remaining: internal.Dup(rest),
					Err:       err,
				}
			}
			leftover := bytes.TrimLeft(rest, " \t\n\r")
			return packet, internal.Dup(leftover), true, nil
		}
	}
	return nil, nil, false, nil
}
