package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/hugolhafner/go-consumer"

// Telemetry holds all OpenTelemetry instruments for the consumer.
// When no providers are configured, all instruments are noops with zero overhead
type Telemetry struct {
	Tracer     trace.Tracer
	Propagator propagation.TextMapPropagator

	// Fetch metrics
	RecordsConsumed metric.Int64Counter
	FetchDuration   metric.Float64Histogram

	// Commit metrics
	CommitDuration   metric.Float64Histogram
	CommitFailures   metric.Int64Counter
	OffsetsCommitted metric.Int64Counter

	// Processing metrics
	ProcessDuration     metric.Float64Histogram
	ProcessErrors       metric.Int64Counter
	ErrorHandlerActions metric.Int64Counter

	// Lifecycle metrics
	PartitionsActive metric.Int64UpDownCounter
	Rebalances       metric.Int64Counter
	Restarts         metric.Int64Counter
}

// NewTelemetry creates a Telemetry instance from the given providers.
// all providers are optional and defaulted to noops if nil
func NewTelemetry(tp trace.TracerProvider, mp metric.MeterProvider, prop propagation.TextMapPropagator) (
	*Telemetry, error,
) {
	if tp == nil {
		tp = traceNoop.NewTracerProvider()
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	if prop == nil {
		prop = propagation.TraceContext{}
	}

	tracer := tp.Tracer(scopeName)
	meter := mp.Meter(scopeName)

	recordsConsumed, err := meter.Int64Counter(
		"consumer.records.consumed",
		metric.WithDescription("Records delivered by partition sources"),
	)
	if err != nil {
		return nil, err
	}

	fetchDuration, err := meter.Float64Histogram(
		"consumer.fetch.duration",
		metric.WithDescription("Time per broker Fetch() call"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	commitDuration, err := meter.Float64Histogram(
		"consumer.commit.duration",
		metric.WithDescription("Time per broker commit, including retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	commitFailures, err := meter.Int64Counter(
		"consumer.commit.failures",
		metric.WithDescription("Commit attempts that returned an error"),
	)
	if err != nil {
		return nil, err
	}

	offsetsCommitted, err := meter.Int64Counter(
		"consumer.offsets.committed",
		metric.WithDescription("Partition offsets durably committed"),
	)
	if err != nil {
		return nil, err
	}

	processDuration, err := meter.Float64Histogram(
		"consumer.process.duration",
		metric.WithDescription("Record handler time including retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	processErrors, err := meter.Int64Counter(
		"consumer.process.errors",
		metric.WithDescription("Errors returned while deserializing, handling or committing records"),
	)
	if err != nil {
		return nil, err
	}

	errorHandlerActions, err := meter.Int64Counter(
		"consumer.error_handler.actions",
		metric.WithDescription("Error handler decisions"),
	)
	if err != nil {
		return nil, err
	}

	partitionsActive, err := meter.Int64UpDownCounter(
		"consumer.partitions.active",
		metric.WithDescription("Partitions currently owned by the engine"),
	)
	if err != nil {
		return nil, err
	}

	rebalances, err := meter.Int64Counter(
		"consumer.rebalances",
		metric.WithDescription("Assignment changes seen by the engine"),
	)
	if err != nil {
		return nil, err
	}

	restarts, err := meter.Int64Counter(
		"consumer.restarts",
		metric.WithDescription("Engine restarts performed by the supervisor"),
	)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Tracer:              tracer,
		Propagator:          prop,
		RecordsConsumed:     recordsConsumed,
		FetchDuration:       fetchDuration,
		CommitDuration:      commitDuration,
		CommitFailures:      commitFailures,
		OffsetsCommitted:    offsetsCommitted,
		ProcessDuration:     processDuration,
		ProcessErrors:       processErrors,
		ErrorHandlerActions: errorHandlerActions,
		PartitionsActive:    partitionsActive,
		Rebalances:          rebalances,
		Restarts:            restarts,
	}, nil
}

// Noop returns a Telemetry instance with all noop instruments
func Noop() *Telemetry {
	t, _ := NewTelemetry(nil, nil, nil)
	return t
}
