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

type Option interface {
	applyEngine(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) applyEngine(c *Config) {
	f(c)
}

type loggerOption struct {
	logger logger.Logger
}

func (o loggerOption) applyEngine(c *Config) {
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

func (o telemetryOption) applyEngine(c *Config) {
	if o.telemetry != nil {
		c.Telemetry = o.telemetry
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return telemetryOption{telemetry: t}
}

type bufferSizeOption int

func (o bufferSizeOption) applyEngine(c *Config) {
	if o > 0 {
		c.BufferSize = int(o)
	}
}

// WithBufferSize sets how many records each partition source buffers ahead
// of the consumer.
func WithBufferSize(n int) Option {
	return bufferSizeOption(n)
}

type fetchMaxWaitOption time.Duration

func (o fetchMaxWaitOption) applyEngine(c *Config) {
	if o > 0 {
		c.FetchMaxWait = time.Duration(o)
	}
}

func WithFetchMaxWait(d time.Duration) Option {
	return fetchMaxWaitOption(d)
}

type fetchRetryOption struct {
	retries int
	b       backoff.Backoff
}

func (o fetchRetryOption) applyEngine(c *Config) {
	if o.retries >= 0 {
		c.FetchRetries = o.retries
	}
	if o.b != nil {
		c.FetchBackoff = o.b
	}
}

// WithFetchRetries sets how many consecutive transient fetch errors are
// retried, waiting b between attempts.
func WithFetchRetries(retries int, b backoff.Backoff) Option {
	return fetchRetryOption{retries: retries, b: b}
}

type offsetResetOption kafka.OffsetReset

func (o offsetResetOption) applyEngine(c *Config) {
	c.OffsetReset = kafka.OffsetReset(o)
}

func WithOffsetReset(r kafka.OffsetReset) Option {
	return offsetResetOption(r)
}

// WithDecoder decodes keys and values before delivery. Records that fail to
// decode go to the error handler.
func WithDecoder(key, value serde.UntypedDeserialiser) Option {
	return optionFunc(
		func(c *Config) {
			c.Decoder = serde.RecordDecoder{Key: key, Value: value}
		},
	)
}

type errorHandlerOption struct {
	handler errorhandler.Handler
}

func (o errorHandlerOption) applyEngine(c *Config) {
	if o.handler != nil {
		c.ErrorHandler = o.handler
	}
}

// WithErrorHandler sets the handler consulted for records that fail to
// decode.
func WithErrorHandler(h errorhandler.Handler) Option {
	return errorHandlerOption{handler: h}
}

func WithDLQProducer(p kafka.Producer) Option {
	return optionFunc(
		func(c *Config) {
			c.DLQProducer = p
		},
	)
}

func WithGroupID(id string) Option {
	return optionFunc(
		func(c *Config) {
			c.GroupID = id
		},
	)
}

// WithControlOptions configures the handle returned by Start.
func WithControlOptions(opts ...control.Option) Option {
	return optionFunc(
		func(c *Config) {
			c.ControlOptions = append(c.ControlOptions, opts...)
		},
	)
}

// WithCommitterOptions applies to every committer the engine creates.
func WithCommitterOptions(opts ...committer.Option) Option {
	return optionFunc(
		func(c *Config) {
			c.CommitterOptions = append(c.CommitterOptions, opts...)
		},
	)
}
