package protocol

import (
	"bytes"
	"encoding/gob"
	"io"
)

// gobEnvelope lets arbitrary packet types travel through gob behind a
// single interface field.
type gobEnvelope struct {
	V any
}

// RegisterType teaches the gob layer a concrete packet type. Call it
// once per type on both peers, like gob.Register.
func RegisterType(v any) {
	gob.Register(v)
}

func init() {
	RegisterType(map[string]any{})
	RegisterType([]any{})
}

// GobCodec maps packets to self describing gob payloads. Both peers
// must register the concrete types they exchange.
type GobCodec struct{}

var _ Codec = GobCodec{}

func (GobCodec) Serialize(packet any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gobEnvelope{V: packet}); err != nil {
		return nil, newProtocolErrorf("gob encode error: %v", err)
	}
	return buf.Bytes(), nil
}

func (GobCodec) Deserialize(data []byte) (any, error) {
	dec := gob.NewDecoder(bytes.NewReader(data))
	var env gobEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, newProtocolErrorf("gob decode error: %v", err)
	}
	var extra gobEnvelope
	if err := dec.Decode(&extra); err != io.EOF {
		return nil, newProtocolError("extra data after gob value")
	}
	return env.V, nil
}
