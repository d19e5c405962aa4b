package protocol

import (
	"bytes"
	"encoding/binary"

	"github.com/tessarion/netpack/internal"
)

// BytesCodec passes raw byte slices through untouched.
type BytesCodec struct{}

var _ Codec = BytesCodec{}

func (BytesCodec) Serialize(packet any) ([]byte, error) {
	b, ok := packet.([]byte)
	if !ok {
		return nil, newProtocolError("packet is not a byte slice")
	}
	return internal.Dup(b), nil
}

func (BytesCodec) Deserialize(data []byte) (any, error) {
	return internal.Dup(data), nil
}

// StructCodec maps a fixed width struct to its big endian wire image
// via encoding/binary. T must have a type binary.Size accepts.
type StructCodec[T any] struct {
	size int
}

func NewStructCodec[T any]() (*StructCodec[T], error) {
	var zero T
	size := binary.Size(zero)
	if size < 0 {
		return nil, newProtocolError("struct type has no fixed binary size")
	}
	return &StructCodec[T]{size: size}, nil
}

func (c *StructCodec[T]) Size() int {
	return c.size
}

func (c *StructCodec[T]) Serialize(packet any) ([]byte, error) {
	v, ok := packet.(T)
	if !ok {
		return nil, newProtocolError("packet type does not match codec struct type")
	}
	var buf bytes.Buffer
	buf.Grow(c.size)
	if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
		return nil, newProtocolErrorf("binary encode error: %v", err)
	}
	return buf.Bytes(), nil
}

func (c *StructCodec[T]) Deserialize(data []byte) (any, error) {
	if len(data) != c.size {
		return nil, newProtocolError("data size does not meet expectation")
	}
	var v T
	if err := binary.Read(bytes.NewReader(data), binary.BigEndian, &v); err != nil {
		return nil, newProtocolErrorf("binary decode error: %v", err)
	}
	return v, nil
}

// NewBinaryStream frames StructCodec[T] payloads by their fixed size.
func NewBinaryStream[T any]() (*FixedSizeProtocol, error) {
	codec, err := NewStructCodec[T]()
	if err != nil {
		return nil, err
	}
	return NewFixedSize(codec, codec.Size())
}
