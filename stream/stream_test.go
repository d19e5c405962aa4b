package stream_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tessarion/netpack/protocol"
	"github.com/tessarion/netpack/stream"
)

func lineProto(t *testing.T) *protocol.AutoSeparatedProtocol {
	p, err := protocol.NewAutoSeparated(protocol.JSONCodec{}, []byte("\n"))
	require.Nil(t, err)
	return p
}

func checkedProto(t *testing.T) *protocol.AutoParsedProtocol {
	p, err := protocol.NewAutoParsed(protocol.JSONCodec{})
	require.Nil(t, err)
	return p
}

func TestProducerRead(t *testing.T) {
	p := stream.NewProducer(lineProto(t))

	out, err := p.Read(0)
	require.Nil(t, err)
	assert.Empty(t, out)
	assert.False(t, p.Pending())

	p.Queue("a", "b")
	assert.True(t, p.Pending())

	out, err = p.Read(-1)
	require.Nil(t, err)
	assert.Equal(t, []byte("\"a\"\n\"b\"\n"), out)
	assert.False(t, p.Pending())
}

func TestProducerPartialRead(t *testing.T) {
	p := stream.NewProducer(lineProto(t))
	p.Queue("abcdef")

	// "abcdef" frames to 9 bytes, carve them out 4 at a time
	out, err := p.Read(4)
	require.Nil(t, err)
	assert.Equal(t, []byte(`"abc`), out)
	assert.True(t, p.Pending())

	out, err = p.Read(4)
	require.Nil(t, err)
	assert.Equal(t, []byte(`def"`), out)

	out, err = p.Read(4)
	require.Nil(t, err)
	assert.Equal(t, []byte("\n"), out)
	assert.False(t, p.Pending())
}

func TestProducerNoLossAcrossSizes(t *testing.T) {
	for _, size := range []int{1, 2, 3, 5, 8, 100} {
		p := stream.NewProducer(checkedProto(t))
		p.Queue("x", "y", "z")
		collected := []byte{}
		for p.Pending() {
			out, err := p.Read(size)
			require.Nil(t, err)
			collected = append(collected, out...)
		}

		want := []byte{}
		for _, v := range []string{"x", "y", "z"} {
			frame, err := protocol.Serialize(checkedProto(t), v)
			require.Nil(t, err)
			want = append(want, frame...)
		}
		assert.Equal(t, want, collected, "read size %d", size)
	}
}

func TestProducerSerializeError(t *testing.T) {
	p, err := protocol.NewAutoSeparated(protocol.BytesCodec{}, []byte("\n"))
	require.Nil(t, err)
	prod := stream.NewProducer(p)

	prod.Queue([]byte("good"), []byte("bad\nbad"), []byte("after"))

	_, err = prod.Read(-1)
	assert.ErrorIs(t, err, protocol.ErrProtocol)

	// the failing packet is dropped, everything else survives
	out, err := prod.Read(-1)
	require.Nil(t, err)
	assert.Equal(t, []byte("good\nafter\n"), out)
}

func TestConsumerSplitFeeds(t *testing.T) {
	proto := checkedProto(t)
	frames := []byte{}
	for _, v := range []string{"first", "second", "third"} {
		frame, err := protocol.Serialize(proto, v)
		require.Nil(t, err)
		frames = append(frames, frame...)
	}

	c := stream.NewConsumer(proto)
	got := []any{}
	for at := 0; at < len(frames); at += 7 {
		end := at + 7
		if end > len(frames) {
			end = len(frames)
		}
		c.Feed(frames[at:end])
		for {
			packet, ok, err := c.Next()
			require.Nil(t, err)
			if !ok {
				break
			}
			got = append(got, packet)
		}
	}
	assert.Equal(t, []any{"first", "second", "third"}, got)
}

func TestConsumerCorruptFrameResync(t *testing.T) {
	proto := checkedProto(t)
	bad, err := protocol.Serialize(proto, "corrupt me")
	require.Nil(t, err)
	bad[len(bad)-1] ^= 0xFF
	good, err := protocol.Serialize(proto, "still fine")
	require.Nil(t, err)

	c := stream.NewConsumer(proto)
	c.Feed(append(bad, good...))

	_, ok, err := c.Next()
	assert.False(t, ok)
	assert.ErrorIs(t, err, protocol.ErrProtocol)

	packet, ok, err := c.Next()
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, "still fine", packet)
}

func TestConsumerUnconsumed(t *testing.T) {
	proto := checkedProto(t)
	frame, err := protocol.Serialize(proto, "interrupted")
	require.Nil(t, err)

	half := frame[:len(frame)/2]
	c := stream.NewConsumer(proto)
	c.Feed(half)
	_, ok, err := c.Next()
	require.Nil(t, err)
	assert.False(t, ok)
	assert.Equal(t, half, c.Unconsumed())

	// reconnect: replay the unconsumed bytes into a fresh consumer
	c2 := stream.NewConsumer(proto)
	c2.Feed(c.Unconsumed())
	c2.Feed(frame[len(frame)/2:])
	packet, ok, err := c2.Next()
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, "interrupted", packet)
}

func TestConsumerOneShot(t *testing.T) {
	proto := lineProto(t)
	c := stream.NewConsumer(proto)

	packets, err := c.OneShot([]byte("\"a\"\n\"b\"\n\"c"))
	require.Nil(t, err)
	assert.Equal(t, []any{"a", "b"}, packets)
	assert.Equal(t, []byte("\"c"), c.Unconsumed())
}
