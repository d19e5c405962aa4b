// protocol defines packet codecs and the framing protocols that carry
// them over byte streams and datagrams.
package protocol

import (
	"github.com/tessarion/netpack/internal"
)

// Codec turns one packet into one payload and back. Implementations are
// stateless and safe for concurrent use.
type Codec interface {
	Serialize(packet any) ([]byte, error)
	Deserialize(data []byte) (any, error)
}

// StreamProtocol is a Codec that can also frame packets for a byte
// stream where message boundaries are not preserved.
type StreamProtocol interface {
	Codec

	// IncrementalSerialize returns the wire chunks for one packet.
	// Their concatenation is exactly one frame.
	IncrementalSerialize(packet any) ([][]byte, error)

	// NewConsumer returns a fresh single packet parser.
	NewConsumer() FrameConsumer
}

// FrameConsumer assembles exactly one packet from a chunked stream.
// A consumer is single use and not safe for concurrent use.
type FrameConsumer interface {
	// Feed hands the consumer the next chunk.
	//
	// done == false with a nil error means more bytes are needed, the
	// consumer keeps everything fed so far. done == true delivers the
	// packet and the unconsumed leftover bytes. A non nil error means
	// the stream is corrupt at this point, the *DecodeError inside
	// carries the bytes to replay into a fresh consumer.
	//
	// Feed panics when called again after done or an error.
	Feed(chunk []byte) (packet any, leftover []byte, done bool, err error)
}

// Serialize flattens p's incremental output into a single buffer.
func Serialize(p StreamProtocol, packet any) ([]byte, error) {
	chunks, err := p.IncrementalSerialize(packet)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out, nil
}

// Deserialize runs one consumer over data and requires it to hold
// exactly one whole frame.
func Deserialize(p StreamProtocol, data []byte) (any, error) {
	packet, leftover, done, err := p.NewConsumer().Feed(internal.Dup(data))
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, ErrMissingData
	}
	if len(leftover) > 0 {
		return nil, ErrExtraData
	}
	return packet, nil
}
