package serde

type Serde[T any] interface {
	Serialiser[T]
	Deserialiser[T]
}

type Serialiser[T any] interface {
	Serialise(topic string, value T) ([]byte, error)
}

type Deserialiser[T any] interface {
	Deserialise(topic string, data []byte) (T, error)
}

// UntypedDeserialiser is the form the engine decodes record keys and values
// with. Use ToUntypedDeserialiser to adapt a typed one.
type UntypedDeserialiser interface {
	Deserialise(topic string, data []byte) (any, error)
}

type UntypedSerialiser interface {
	Serialise(topic string, value any) ([]byte, error)
}

type UntypedSerde interface {
	UntypedSerialiser
	UntypedDeserialiser
}

// DeserialiserFunc adapts a function to an UntypedDeserialiser.
type DeserialiserFunc func(topic string, data []byte) (any, error)

func (f DeserialiserFunc) Deserialise(topic string, data []byte) (any, error) {
	return f(topic, data)
}
