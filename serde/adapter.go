package serde

import "fmt"

type deserialiserAdapter[T any] struct {
	typed Deserialiser[T]
}

func (a deserialiserAdapter[T]) Deserialise(topic string, data []byte) (any, error) {
	return a.typed.Deserialise(topic, data)
}

type serialiserAdapter[T any] struct {
	typed Serialiser[T]
}

func (a serialiserAdapter[T]) Serialise(topic string, value any) ([]byte, error) {
	typed, ok := value.(T)
	if !ok {
		return nil, fmt.Errorf("serde: expected %T, got %T", *new(T), value)
	}
	return a.typed.Serialise(topic, typed)
}

type serdeAdapter[T any] struct {
	deserialiserAdapter[T]
	serialiserAdapter[T]
}
