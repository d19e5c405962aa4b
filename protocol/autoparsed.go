package protocol

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"hash"
	"math"

	"github.com/tessarion/netpack/internal"
)

// DefaultMagic marks the start of every AutoParsed frame unless the
// protocol is built with another marker.
var DefaultMagic = []byte{0x7f, 0x1b, 0xea, 0xff}

var checksums = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// AutoParsedProtocol frames payloads with a self describing header and
// a checksum trailer:
//
//	magic | length (uint64 big endian) | payload | digest(header+payload)
//
// The consumer resynchronizes on the magic after stream corruption.
type AutoParsedProtocol struct {
	codec    Codec
	magic    []byte
	checksum string
	newHash  func() hash.Hash
}

type AutoParsedOption func(*AutoParsedProtocol)

// WithChecksum selects the digest algorithm guarding each frame.
// md5, sha1, sha256 and sha512 are known. md5 is the default.
func WithChecksum(name string) AutoParsedOption {
	return func(p *AutoParsedProtocol) {
		p.checksum = name
	}
}

// WithMagic replaces the frame marker. Its length must be a power of 2.
func WithMagic(magic []byte) AutoParsedOption {
	return func(p *AutoParsedProtocol) {
		p.magic = internal.Dup(magic)
	}
}

func NewAutoParsed(codec Codec, opts ...AutoParsedOption) (*AutoParsedProtocol, error) {
	p := &AutoParsedProtocol{
		codec:    codec,
		magic:    DefaultMagic,
		checksum: "md5",
	}
	for _, o := range opts {
		o(p)
	}
	if len(p.magic) == 0 || math.Log2(float64(len(p.magic))) != math.Trunc(math.Log2(float64(len(p.magic)))) {
		return nil, newProtocolError("magic bytes length must be a power of 2")
	}
	newHash, ok := checksums[p.checksum]
	if !ok {
		return nil, newProtocolErrorf("unknown checksum algorithm %q", p.checksum)
	}
	p.newHash = newHash
	return p, nil
}

func (p *AutoParsedProtocol) Magic() []byte {
	return internal.Dup(p.magic)
}

func (p *AutoParsedProtocol) Checksum() string {
	return p.checksum
}

func (p *AutoParsedProtocol) Serialize(packet any) ([]byte, error) {
	return p.codec.Serialize(packet)
}

func (p *AutoParsedProtocol) Deserialize(data []byte) (any, error) {
	return p.codec.Deserialize(data)
}

func (p *AutoParsedProtocol) headerSize() int {
	return len(p.magic) + 8
}

// IncrementalSerialize emits header, payload and digest as separate
// chunks so large payloads are not copied into one buffer.
func (p *AutoParsedProtocol) IncrementalSerialize(packet any) ([][]byte, error) {
	data, err := p.codec.Serialize(packet)
	if err != nil {
		return nil, err
	}
	header := make([]byte, p.headerSize())
	copy(header, p.magic)
	binary.BigEndian.PutUint64(header[len(p.magic):], uint64(len(data)))
	h := p.newHash()
	h.Write(header)
	h.Write(data)
	return [][]byte{header, data, h.Sum(nil)}, nil
}

func (p *AutoParsedProtocol) NewConsumer() FrameConsumer {
	return &autoParsedConsumer{p: p}
}

type autoParsedConsumer struct {
	p        *AutoParsedProtocol
	buf      []byte
	header   []byte
	need     int
	finished bool
}

func (c *autoParsedConsumer) Feed(chunk []byte) (any, []byte, bool, error) {
	if c.finished {
		panic("feed on finished consumer")
	}
	p := c.p
	c.buf = append(c.buf, chunk...)

	if c.header == nil {
		// hunt for the magic, dropping bytes that cannot start a
		// frame. bytes after a partial magic suffix stay buffered.
		i := bytes.Index(c.buf, p.magic)
		if i < 0 {
			if keep := len(p.magic) - 1; len(c.buf) > keep {
				c.buf = append(c.buf[:0:0], c.buf[len(c.buf)-keep:]...)
			}
			return nil, nil, false, nil
		}
		c.buf = c.buf[i:]
		if len(c.buf) < p.headerSize() {
			return nil, nil, false, nil
		}
		c.header = internal.Dup(c.buf[:p.headerSize()])
		c.buf = c.buf[p.headerSize():]
		length := binary.BigEndian.Uint64(c.header[len(p.magic):])
		digestSize := p.newHash().Size()
		if length > uint64(math.MaxInt-digestSize) {
			c.finished = true
			return nil, nil, false, &DecodeError{
				Msg:       "data corrupted",
				Data:      c.header,
				Remaining: internal.Dup(c.buf),
			}
		}
		c.need = int(length) + digestSize
	}

	if len(c.buf) < c.need {
		return nil, nil, false, nil
	}

	frame := c.buf[:c.need]
	rest := c.buf[c.need:]
	digestSize := p.newHash().Size()
	payload := frame[:c.need-digestSize]
	digest := frame[c.need-digestSize:]

	h := p.newHash()
	h.Write(c.header)
	h.Write(payload)
	c.finished = true
	if subtle.ConstantTimeCompare(digest, h.Sum(nil)) != 1 {
		return nil, nil, false, &DecodeError{
			Msg:       "data corrupted",
			Data:      internal.Dup(frame),
			Remaining: internal.Dup(rest),
		}
	}

	packet, err := p.codec.Deserialize(internal.Dup(payload))
	if err != nil {
		return nil, nil, false, &DecodeError{
			Msg:       "error when deserializing data",
			Data:      internal.Dup(payload),
			Remaining: internal.Dup(rest),
			Err:       err,
		}
	}
	return packet, internal.Dup(rest), true, nil
}
