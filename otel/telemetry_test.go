//go:build unit

package otel

import (
	"context"
	"testing"

	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestNewTelemetry_WithProviders(t *testing.T) {
	t.Parallel()
	tp := sdktrace.NewTracerProvider()
	mp := sdkmetric.NewMeterProvider()
	defer tp.Shutdown(context.Background())
	defer mp.Shutdown(context.Background())

	tel, err := NewTelemetry(tp, mp, nil)
	require.NoError(t, err)
	require.NotNil(t, tel.Tracer)
	require.NotNil(t, tel.Propagator)
	require.NotNil(t, tel.RecordsConsumed)
	require.NotNil(t, tel.FetchDuration)
	require.NotNil(t, tel.CommitDuration)
	require.NotNil(t, tel.CommitFailures)
	require.NotNil(t, tel.OffsetsCommitted)
	require.NotNil(t, tel.ProcessDuration)
	require.NotNil(t, tel.ProcessErrors)
	require.NotNil(t, tel.ErrorHandlerActions)
	require.NotNil(t, tel.PartitionsActive)
	require.NotNil(t, tel.Rebalances)
	require.NotNil(t, tel.Restarts)
}

func TestNewTelemetry_NilProviders(t *testing.T) {
	t.Parallel()
	tel, err := NewTelemetry(nil, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, tel.Tracer)
	require.NotNil(t, tel.Propagator)
}

func TestNoop(t *testing.T) {
	t.Parallel()
	tel := Noop()
	require.NotNil(t, tel)
	require.NotNil(t, tel.Tracer)
}

func TestTelemetry_RecordsIntoManualReader(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	tel, err := NewTelemetry(nil, mp, nil)
	require.NoError(t, err)

	ctx := context.Background()
	tel.OffsetsCommitted.Add(ctx, 3, metric.WithAttributes(AttrCommitPhase.String(CommitPhaseFinal)))
	tel.PartitionsActive.Add(ctx, 4)
	tel.PartitionsActive.Add(ctx, -1)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}

	require.Equal(t, int64(3), sums["consumer.offsets.committed"])
	require.Equal(t, int64(3), sums["consumer.partitions.active"])
}

func TestTelemetry_InjectExtractRoundTrip(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	tel, err := NewTelemetry(tp, nil, nil)
	require.NoError(t, err)

	ctx, span := tel.Tracer.Start(context.Background(), "produce")
	record := kafka.Record{Topic: "orders", Headers: []kafka.Header{{Key: "k", Value: []byte("v")}}}
	tel.InjectRecord(ctx, &record)
	span.End()

	_, ok := kafka.HeaderValue(record.Headers, "traceparent")
	require.True(t, ok)

	extracted := tel.ExtractRecord(context.Background(), record)
	sc := trace.SpanContextFromContext(extracted)
	require.True(t, sc.IsValid())
	require.Equal(t, span.SpanContext().TraceID(), sc.TraceID())

	require.Len(t, exporter.GetSpans(), 1)
	require.Equal(t, "produce", exporter.GetSpans()[0].Name)
}

type capturingProducer struct {
	records []kafka.Record
}

func (p *capturingProducer) Produce(_ context.Context, r kafka.Record) error {
	p.records = append(p.records, r)
	return nil
}

func TestTelemetry_TracingProducer(t *testing.T) {
	t.Parallel()

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	tel, err := NewTelemetry(tp, nil, nil)
	require.NoError(t, err)
	require.Nil(t, tel.TracingProducer(nil))

	inner := &capturingProducer{}
	p := tel.TracingProducer(inner)

	ctx, span := tel.Tracer.Start(context.Background(), "process")
	defer span.End()

	require.NoError(t, p.Produce(ctx, kafka.Record{Topic: "orders.dlq"}))
	require.Len(t, inner.records, 1)

	sc := trace.SpanContextFromContext(tel.ExtractRecord(context.Background(), inner.records[0]))
	require.Equal(t, span.SpanContext().TraceID(), sc.TraceID())
}
