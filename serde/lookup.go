package serde

import (
	"errors"
	"fmt"
	"strings"
)

// Format names accepted by Lookup. A protobuf format names its message,
// e.g. "protobuf:google.protobuf.StringValue".
const (
	FormatNone     = ""
	FormatBytes    = "bytes"
	FormatString   = "string"
	FormatJSON     = "json"
	FormatProtobuf = "protobuf"
)

var ErrUnknownFormat = errors.New("serde: unknown format")

// Lookup returns the deserialiser for a format name. FormatNone returns nil,
// which leaves that part of the record as raw bytes. JSON decodes into
// generic values: maps, slices, strings, bools and json.Number.
func Lookup(format string) (UntypedDeserialiser, error) {
	name, arg, _ := strings.Cut(format, ":")

	switch name {
	case FormatNone:
		return nil, nil
	case FormatBytes:
		return ToUntypedDeserialiser(Bytes()), nil
	case FormatString:
		return ToUntypedDeserialiser(String()), nil
	case FormatJSON:
		return ToUntypedDeserialiser(JSON[any]()), nil
	case FormatProtobuf:
		if arg == "" {
			return nil, fmt.Errorf("%w: %q needs a message name", ErrUnknownFormat, format)
		}
		return newProtobufByName(arg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// LookupDecoder builds a RecordDecoder from key and value format names.
func LookupDecoder(key, value string) (RecordDecoder, error) {
	kd, err := Lookup(key)
	if err != nil {
		return RecordDecoder{}, fmt.Errorf("key: %w", err)
	}
	vd, err := Lookup(value)
	if err != nil {
		return RecordDecoder{}, fmt.Errorf("value: %w", err)
	}
	return RecordDecoder{Key: kd, Value: vd}, nil
}
