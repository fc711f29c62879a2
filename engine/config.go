package engine

import (
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-consumer/committer"
	"github.com/hugolhafner/go-consumer/control"
	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/otel"
	"github.com/hugolhafner/go-consumer/serde"
)

type Config struct {
	// BufferSize bounds the records buffered per partition source
	BufferSize int

	// FetchMaxWait is passed to Broker.Fetch
	FetchMaxWait time.Duration

	// FetchRetries bounds consecutive transient fetch failures before the
	// engine fails
	FetchRetries int
	FetchBackoff backoff.Backoff

	// OffsetReset applies to partitions without an explicit or committed
	// offset
	OffsetReset kafka.OffsetReset

	Decoder serde.RecordDecoder

	// ErrorHandler decides what happens to records that fail to decode
	ErrorHandler errorhandler.Handler

	// DLQProducer is used when ErrorHandler sends a record to a dead letter
	// topic
	DLQProducer kafka.Producer

	// GroupID is reported on spans only
	GroupID string

	ControlOptions   []control.Option
	CommitterOptions []committer.Option

	Logger    logger.Logger
	Telemetry *otel.Telemetry
}

func defaultConfig() Config {
	l := logger.NewNoopLogger()
	return Config{
		BufferSize:   256,
		FetchMaxWait: 500 * time.Millisecond,
		FetchRetries: 5,
		FetchBackoff: backoff.NewFixed(time.Second),
		OffsetReset:  kafka.OffsetResetEarliest,
		ErrorHandler: errorhandler.LogAndFail(l),
		Logger:       l,
		Telemetry:    otel.Noop(),
	}
}
