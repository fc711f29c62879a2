package pipeline

import (
	"context"

	"github.com/hugolhafner/go-consumer/engine"
)

type decodedKey struct{}

type decoded struct {
	key, value any
}

// Decoded returns the key and value the engine decoded for the record a
// Handler is running for. Parts without a decoder are the raw []byte. ok is
// false for records read from a plain engine.
func Decoded(ctx context.Context) (key, value any, ok bool) {
	d, ok := ctx.Value(decodedKey{}).(decoded)
	return d.key, d.value, ok
}

func withDecoded(ctx context.Context, m engine.Message) context.Context {
	return context.WithValue(ctx, decodedKey{}, decoded{key: m.Key, value: m.Value})
}
