package protocol

// CompositeStreamProtocol sends with one protocol and receives with
// another, for peers whose two directions speak different formats.
type CompositeStreamProtocol struct {
	serializer   StreamProtocol
	deserializer StreamProtocol
}

var _ StreamProtocol = (*CompositeStreamProtocol)(nil)

func NewComposite(serializer, deserializer StreamProtocol) *CompositeStreamProtocol {
	return &CompositeStreamProtocol{
		serializer:   serializer,
		deserializer: deserializer,
	}
}

func (p *CompositeStreamProtocol) SerializerProtocol() StreamProtocol {
	return p.serializer
}

func (p *CompositeStreamProtocol) DeserializerProtocol() StreamProtocol {
	return p.deserializer
}

func (p *CompositeStreamProtocol) Serialize(packet any) ([]byte, error) {
	return p.serializer.Serialize(packet)
}

func (p *CompositeStreamProtocol) Deserialize(data []byte) (any, error) {
	return p.deserializer.Deserialize(data)
}

func (p *CompositeStreamProtocol) IncrementalSerialize(packet any) ([][]byte, error) {
	return p.serializer.IncrementalSerialize(packet)
}

func (p *CompositeStreamProtocol) NewConsumer() FrameConsumer {
	return p.deserializer.NewConsumer()
}
