package codec

import "google.golang.org/protobuf/proto"

// Protobuf encodes protobuf messages. The constructor provides a fresh message for
// Decode, e.g. func() *pb.HelloResponse { return &pb.HelloResponse{} }.
type Protobuf[T proto.Message] struct {
	new func() T
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}

// DecodeInto unmarshals b into an existing message.
func (c Protobuf[T]) DecodeInto(b []byte, m T) error {
	return proto.Unmarshal(b, m)
}
