package record

import (
	"context"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/pipeline"
	"github.com/hugolhafner/go-consumer/serde"
)

type Metadata struct {
	Timestamp time.Time
	Headers   map[string][]byte

	Topic     string
	Partition int32
	Offset    int64
}

func (m Metadata) TopicPartition() kafka.TopicPartition {
	return kafka.TopicPartition{Topic: m.Topic, Partition: m.Partition}
}

// Record is a kafka.Record with its key and value decoded.
type Record[K, V any] struct {
	Key   K
	Value V
	Metadata
}

func MetadataOf(r kafka.Record) Metadata {
	var headers map[string][]byte
	if len(r.Headers) > 0 {
		headers = make(map[string][]byte, len(r.Headers))
		for _, h := range r.Headers {
			headers[h.Key] = h.Value
		}
	}

	return Metadata{
		Timestamp: r.Timestamp,
		Headers:   headers,
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
	}
}

// Decode deserialises the key and value of r. Errors are *serde.DecodeError.
func Decode[K, V any](r kafka.Record, kd serde.Deserialiser[K], vd serde.Deserialiser[V]) (Record[K, V], error) {
	key, err := kd.Deserialise(r.Topic, r.Key)
	if err != nil {
		return Record[K, V]{}, &serde.DecodeError{Part: "key", Cause: err}
	}

	value, err := vd.Deserialise(r.Topic, r.Value)
	if err != nil {
		return Record[K, V]{}, &serde.DecodeError{Part: "value", Cause: err}
	}

	return Record[K, V]{Key: key, Value: value, Metadata: MetadataOf(r)}, nil
}

// Handler is a pipeline handler over decoded records.
type Handler[K, V any] func(ctx context.Context, r Record[K, V]) error

// Handle adapts h to a pipeline.Handler. A record that fails to decode is
// returned to the pipeline's error handler without calling h.
func Handle[K, V any](kd serde.Deserialiser[K], vd serde.Deserialiser[V], h Handler[K, V]) pipeline.Handler {
	return func(ctx context.Context, r kafka.Record) error {
		rec, err := Decode(r, kd, vd)
		if err != nil {
			return err
		}
		return h(ctx, rec)
	}
}
