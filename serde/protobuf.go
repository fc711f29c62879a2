package serde

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

type protobufSerde[T proto.Message] struct{}

// Protobuf returns a Serde for the generated message type T.
func Protobuf[T proto.Message]() Serde[T] {
	return protobufSerde[T]{}
}

func (protobufSerde[T]) Serialise(_ string, value T) ([]byte, error) {
	return proto.Marshal(value)
}

func (protobufSerde[T]) Deserialise(_ string, data []byte) (T, error) {
	var zero T
	msg := zero.ProtoReflect().New().Interface().(T)
	if err := proto.Unmarshal(data, msg); err != nil {
		return zero, err
	}
	return msg, nil
}

// protobufByName decodes into messages of a type linked into the binary,
// looked up by its full name in the global registry.
type protobufByName struct {
	mt protoreflect.MessageType
}

func newProtobufByName(name string) (UntypedDeserialiser, error) {
	mt, err := protoregistry.GlobalTypes.FindMessageByName(protoreflect.FullName(name))
	if err != nil {
		return nil, fmt.Errorf("serde: protobuf message %q: %w", name, err)
	}
	return protobufByName{mt: mt}, nil
}

func (p protobufByName) Deserialise(_ string, data []byte) (any, error) {
	msg := p.mt.New().Interface()
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
