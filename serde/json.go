package serde

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

var errTrailingData = errors.New("trailing data after JSON value")

type jsonSerde[T any] struct{}

// JSON returns a Serde for JSON payloads. Numbers decoded into interface
// values are json.Number so large offsets and ids keep their precision.
// A payload holding more than one JSON value is rejected.
func JSON[T any]() Serde[T] {
	return jsonSerde[T]{}
}

func (jsonSerde[T]) Serialise(_ string, value T) ([]byte, error) {
	return json.Marshal(value)
}

func (jsonSerde[T]) Deserialise(_ string, data []byte) (T, error) {
	var out T

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		var zero T
		return zero, errTrailingData
	}

	return out, nil
}
