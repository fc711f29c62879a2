package serde

func ToUntypedDeserialiser[T any](d Deserialiser[T]) UntypedDeserialiser {
	return deserialiserAdapter[T]{typed: d}
}

func ToUntypedSerialiser[T any](s Serialiser[T]) UntypedSerialiser {
	return serialiserAdapter[T]{typed: s}
}

func ToUntyped[T any](s Serde[T]) UntypedSerde {
	return serdeAdapter[T]{
		deserialiserAdapter: deserialiserAdapter[T]{typed: s},
		serialiserAdapter:   serialiserAdapter[T]{typed: s},
	}
}
