package pipeline

import (
	"time"

	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/otel"
)

type Option interface {
	applyPipeline(*Config)
}

type loggerOption struct {
	logger logger.Logger
}

func (o loggerOption) applyPipeline(c *Config) {
	if o.logger != nil {
		c.Logger = o.logger
	}
}

func WithLogger(l logger.Logger) Option {
	return loggerOption{logger: l}
}

type telemetryOption struct {
	telemetry *otel.Telemetry
}

func (o telemetryOption) applyPipeline(c *Config) {
	if o.telemetry != nil {
		c.Telemetry = o.telemetry
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return telemetryOption{telemetry: t}
}

type errorHandlerOption struct {
	handler errorhandler.Handler
}

func (o errorHandlerOption) applyPipeline(c *Config) {
	c.ErrorHandler = o.handler
}

// WithErrorHandler sets the handler consulted when the record handler fails
func WithErrorHandler(h errorhandler.Handler) Option {
	return errorHandlerOption{handler: h}
}

type dlqProducerOption struct {
	producer kafka.Producer
}

func (o dlqProducerOption) applyPipeline(c *Config) {
	c.DLQProducer = o.producer
}

func WithDLQProducer(p kafka.Producer) Option {
	return dlqProducerOption{producer: p}
}

type handlerTimeoutOption time.Duration

func (o handlerTimeoutOption) applyPipeline(c *Config) {
	if o >= 0 {
		c.HandlerTimeout = time.Duration(o)
	}
}

// WithHandlerTimeout bounds each handler call. A call that outlives d fails
// with a *HandlerTimeoutError; zero disables the bound.
func WithHandlerTimeout(d time.Duration) Option {
	return handlerTimeoutOption(d)
}

type maxPartitionsOption int

func (o maxPartitionsOption) applyPipeline(c *Config) {
	if o > 0 {
		c.MaxPartitions = int(o)
	}
}

// WithMaxPartitions bounds how many partitions Partitioned processes at
// once. Streams beyond the limit wait for a free slot.
func WithMaxPartitions(n int) Option {
	return maxPartitionsOption(n)
}

type groupIDOption string

func (o groupIDOption) applyPipeline(c *Config) {
	c.GroupID = string(o)
}

func WithGroupID(id string) Option {
	return groupIDOption(id)
}
