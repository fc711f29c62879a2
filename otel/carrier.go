package otel

import (
	"context"

	"github.com/hugolhafner/go-consumer/kafka"
	"go.opentelemetry.io/otel/propagation"
)

var _ propagation.TextMapCarrier = KafkaHeadersCarrier{}

// KafkaHeadersCarrier exposes record headers to otel propagators.
type KafkaHeadersCarrier struct {
	Headers *[]kafka.Header
}

func NewKafkaHeadersCarrier(headers *[]kafka.Header) KafkaHeadersCarrier {
	return KafkaHeadersCarrier{Headers: headers}
}

// Get returns the first header value for key.
func (c KafkaHeadersCarrier) Get(key string) string {
	v, _ := kafka.HeaderValue(*c.Headers, key)
	return string(v)
}

// Set overwrites every header named key, appending one if none exists.
func (c KafkaHeadersCarrier) Set(key, value string) {
	found := false
	for i := range *c.Headers {
		if (*c.Headers)[i].Key == key {
			(*c.Headers)[i].Value = []byte(value)
			found = true
		}
	}

	if !found {
		*c.Headers = append(*c.Headers, kafka.Header{Key: key, Value: []byte(value)})
	}
}

func (c KafkaHeadersCarrier) Keys() []string {
	keys := make([]string, len(*c.Headers))
	for i, h := range *c.Headers {
		keys[i] = h.Key
	}
	return keys
}

// ExtractRecord returns ctx enriched with the trace context carried by r's
// headers. r is not modified.
func (t *Telemetry) ExtractRecord(ctx context.Context, r kafka.Record) context.Context {
	headers := r.Headers
	return t.Propagator.Extract(ctx, NewKafkaHeadersCarrier(&headers))
}

// InjectRecord writes the trace context of ctx into r's headers.
func (t *Telemetry) InjectRecord(ctx context.Context, r *kafka.Record) {
	t.Propagator.Inject(ctx, NewKafkaHeadersCarrier(&r.Headers))
}

type tracingProducer struct {
	kafka.Producer
	telemetry *Telemetry
}

func (p tracingProducer) Produce(ctx context.Context, r kafka.Record) error {
	p.telemetry.InjectRecord(ctx, &r)
	return p.Producer.Produce(ctx, r)
}

// TracingProducer wraps p so every produced record carries the trace context
// of the Produce call. A nil p stays nil.
func (t *Telemetry) TracingProducer(p kafka.Producer) kafka.Producer {
	if p == nil {
		return nil
	}
	return tracingProducer{Producer: p, telemetry: t}
}
