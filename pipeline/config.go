package pipeline

import (
	"time"

	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/otel"
)

type Config struct {
	Logger    logger.Logger
	Telemetry *otel.Telemetry

	// ErrorHandler decides what happens to records the handler fails on.
	// Defaults to LogAndFail over Logger.
	ErrorHandler errorhandler.Handler
	DLQProducer  kafka.Producer

	// HandlerTimeout bounds every handler call, zero disables it
	HandlerTimeout time.Duration

	// MaxPartitions bounds the partitions processed concurrently by
	// Partitioned
	MaxPartitions int

	// GroupID is reported on spans only
	GroupID string
}

func defaultConfig() Config {
	return Config{
		Logger:         logger.NewNoopLogger(),
		Telemetry:      otel.Noop(),
		HandlerTimeout: 30 * time.Second,
		MaxPartitions:  100,
	}
}
