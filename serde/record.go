package serde

import (
	"fmt"

	"github.com/hugolhafner/go-consumer/kafka"
)

// RecordDecoder decodes the key and value of a record. A nil deserialiser
// leaves that part as raw bytes.
type RecordDecoder struct {
	Key   UntypedDeserialiser
	Value UntypedDeserialiser
}

// IsZero reports whether neither part is decoded.
func (d RecordDecoder) IsZero() bool {
	return d.Key == nil && d.Value == nil
}

// DecodeError names the part of the record that failed to decode.
type DecodeError struct {
	Part  string
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("serde: decode %s: %v", e.Part, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

func (d RecordDecoder) Decode(r kafka.Record) (key, value any, err error) {
	key, value = r.Key, r.Value

	if d.Key != nil && r.Key != nil {
		if key, err = d.Key.Deserialise(r.Topic, r.Key); err != nil {
			return nil, nil, &DecodeError{Part: "key", Cause: err}
		}
	}

	if d.Value != nil && r.Value != nil {
		if value, err = d.Value.Deserialise(r.Topic, r.Value); err != nil {
			return nil, nil, &DecodeError{Part: "value", Cause: err}
		}
	}

	return key, value, nil
}
