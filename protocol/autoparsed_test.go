package protocol_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tessarion/netpack/protocol"
)

func autoParsedFrame(t *testing.T, p *protocol.AutoParsedProtocol, packet any) []byte {
	chunks, err := p.IncrementalSerialize(packet)
	require.Nil(t, err)
	require.EqualValues(t, 3, len(chunks))
	frame := []byte{}
	for _, c := range chunks {
		frame = append(frame, c...)
	}
	return frame
}

func TestAutoParsedConstruct(t *testing.T) {
	_, err := protocol.NewAutoParsed(protocol.JSONCodec{}, protocol.WithMagic([]byte("abc")))
	assert.ErrorIs(t, err, protocol.ErrProtocol)

	_, err = protocol.NewAutoParsed(protocol.JSONCodec{}, protocol.WithChecksum("crc32"))
	assert.ErrorIs(t, err, protocol.ErrProtocol)

	p, err := protocol.NewAutoParsed(protocol.JSONCodec{}, protocol.WithMagic([]byte("ab")), protocol.WithChecksum("sha256"))
	require.Nil(t, err)
	assert.Equal(t, []byte("ab"), p.Magic())
	assert.Equal(t, "sha256", p.Checksum())
}

func TestAutoParsedRoundTrip(t *testing.T) {
	p, err := protocol.NewAutoParsed(protocol.JSONCodec{})
	require.Nil(t, err)

	frame := autoParsedFrame(t, p, map[string]any{"hello": "world"})
	packet, leftover, done, err := p.NewConsumer().Feed(frame)
	require.Nil(t, err)
	assert.True(t, done)
	assert.Empty(t, leftover)
	assert.Equal(t, map[string]any{"hello": "world"}, packet)
}

func TestAutoParsedChunkedFeed(t *testing.T) {
	p, err := protocol.NewAutoParsed(protocol.JSONCodec{}, protocol.WithChecksum("sha1"))
	require.Nil(t, err)
	frame := autoParsedFrame(t, p, []any{"a", "b", float64(3)})

	for split := 1; split <= len(frame); split++ {
		c := p.NewConsumer()
		var packet any
		done := false
		for at := 0; at < len(frame) && !done; at += split {
			end := at + split
			if end > len(frame) {
				end = len(frame)
			}
			var err error
			packet, _, done, err = c.Feed(frame[at:end])
			require.Nil(t, err)
		}
		require.True(t, done, "split size %d", split)
		assert.Equal(t, []any{"a", "b", float64(3)}, packet)
	}
}

func TestAutoParsedPartialFrame(t *testing.T) {
	p, err := protocol.NewAutoParsed(protocol.JSONCodec{})
	require.Nil(t, err)
	frame := autoParsedFrame(t, p, "ping")

	c := p.NewConsumer()
	packet, leftover, done, err := c.Feed(frame[:len(frame)-1])
	assert.Nil(t, err)
	assert.False(t, done)
	assert.Nil(t, packet)
	assert.Nil(t, leftover)

	packet, _, done, err = c.Feed(frame[len(frame)-1:])
	require.Nil(t, err)
	assert.True(t, done)
	assert.Equal(t, "ping", packet)
}

func TestAutoParsedTamper(t *testing.T) {
	p, err := protocol.NewAutoParsed(protocol.JSONCodec{})
	require.Nil(t, err)
	frame := autoParsedFrame(t, p, map[string]any{"n": float64(1)})

	// flip one payload bit
	frame[len(p.Magic())+8] ^= 0x01
	_, _, done, err := p.NewConsumer().Feed(frame)
	assert.False(t, done)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, protocol.ErrProtocol)

	var de *protocol.DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "data corrupted", de.Msg)
	assert.Empty(t, de.Remaining)
}

func TestAutoParsedResync(t *testing.T) {
	p, err := protocol.NewAutoParsed(protocol.JSONCodec{})
	require.Nil(t, err)
	frame := autoParsedFrame(t, p, "back in sync")

	for garbage := 1; garbage <= 3; garbage++ {
		buf := []byte{}
		for i := 0; i < garbage; i++ {
			buf = append(buf, byte(i+1))
		}
		buf = append(buf, frame...)
		packet, leftover, done, err := p.NewConsumer().Feed(buf)
		require.Nil(t, err, "garbage %d", garbage)
		assert.True(t, done)
		assert.Empty(t, leftover)
		assert.Equal(t, "back in sync", packet)
	}
}

func TestAutoParsedLeftover(t *testing.T) {
	p, err := protocol.NewAutoParsed(protocol.JSONCodec{})
	require.Nil(t, err)
	first := autoParsedFrame(t, p, "one")
	second := autoParsedFrame(t, p, "two")

	packet, leftover, done, err := p.NewConsumer().Feed(append(first, second...))
	require.Nil(t, err)
	assert.True(t, done)
	assert.Equal(t, "one", packet)
	assert.Equal(t, second, leftover)

	packet, leftover, done, err = p.NewConsumer().Feed(leftover)
	require.Nil(t, err)
	assert.True(t, done)
	assert.Empty(t, leftover)
	assert.Equal(t, "two", packet)
}

func TestAutoParsedBadPayload(t *testing.T) {
	// a frame whose digest is fine but whose payload is not JSON
	raw, err := protocol.NewAutoParsed(protocol.BytesCodec{})
	require.Nil(t, err)
	frame := autoParsedFrame(t, raw, []byte("certainly not json"))

	p, err := protocol.NewAutoParsed(protocol.JSONCodec{})
	require.Nil(t, err)
	trailing := []byte("rest of the stream")
	_, _, done, err := p.NewConsumer().Feed(append(frame, trailing...))
	assert.False(t, done)
	require.NotNil(t, err)

	var de *protocol.DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "error when deserializing data", de.Msg)
	assert.Equal(t, []byte("certainly not json"), de.Data)
	assert.Equal(t, trailing, de.Remaining)
	assert.NotNil(t, de.Err)
}

func TestAutoParsedFeedAfterDone(t *testing.T) {
	p, err := protocol.NewAutoParsed(protocol.JSONCodec{})
	require.Nil(t, err)
	frame := autoParsedFrame(t, p, "done")

	c := p.NewConsumer()
	_, _, done, err := c.Feed(frame)
	require.Nil(t, err)
	require.True(t, done)
	assert.Panics(t, func() {
		c.Feed([]byte{0})
	})
}
