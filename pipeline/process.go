package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	consumerotel "github.com/hugolhafner/go-consumer/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.38.0"
	"go.opentelemetry.io/otel/trace"
)

// Handler is the business logic run for every record. It must honour ctx;
// a call that outlives the handler timeout is abandoned.
type Handler func(ctx context.Context, r kafka.Record) error

// Result counts what a pipeline did with the records it received.
type Result struct {
	Processed    int64
	Skipped      int64
	DeadLettered int64
}

func (r Result) Total() int64 {
	return r.Processed + r.Skipped + r.DeadLettered
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeDeadLettered
)

type tally struct {
	processed    atomic.Int64
	skipped      atomic.Int64
	deadLettered atomic.Int64
}

func (t *tally) add(o outcome) {
	switch o {
	case outcomeSkipped:
		t.skipped.Add(1)
	case outcomeDeadLettered:
		t.deadLettered.Add(1)
	default:
		t.processed.Add(1)
	}
}

func (t *tally) result() Result {
	return Result{
		Processed:    t.processed.Load(),
		Skipped:      t.skipped.Load(),
		DeadLettered: t.deadLettered.Load(),
	}
}

// emitError emits an error to the provided channel without blocking
func emitError(errCh chan<- error, l logger.Logger, err error) {
	select {
	case errCh <- err:
	default:
		l.Debug("Error channel full, dropping error", "error", err)
	}
}

type processor struct {
	handler Handler
	config  Config
	logger  logger.Logger
}

func newProcessor(h Handler, name string, opts []Option) *processor {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt.applyPipeline(&cfg)
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = errorhandler.LogAndFail(cfg.Logger)
	}

	return &processor{
		handler: h,
		config:  cfg,
		logger:  cfg.Logger.With("component", "pipeline", "pipeline", name),
	}
}

// call runs the handler under the handler timeout.
func (p *processor) call(ctx context.Context, r kafka.Record) error {
	timeout := p.config.HandlerTimeout
	if timeout <= 0 {
		return p.handler(ctx, r)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- p.handler(callCtx, r)
	}()

	timedOut := &HandlerTimeoutError{TopicPartition: r.TopicPartition(), Offset: r.Offset, Timeout: timeout}

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", timedOut, err)
		}
		return err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return timedOut
	}
}

// process runs the handler for r with tracing, metrics and the error
// handler's retry loop. A nil error means r is finished with and its offset
// may advance.
func (p *processor) process(ctx context.Context, r kafka.Record) (outcome, error) {
	tel := p.config.Telemetry
	ctx = tel.ExtractRecord(ctx, r)

	partitionID := strconv.FormatInt(int64(r.Partition), 10)
	attrs := []attribute.KeyValue{
		semconv.MessagingSystemKafka,
		semconv.MessagingOperationTypeProcess,
		semconv.MessagingDestinationName(r.Topic),
		semconv.MessagingDestinationPartitionID(partitionID),
		semconv.MessagingKafkaOffsetKey.Int64(r.Offset),
		semconv.MessagingMessageBodySize(len(r.Value)),
	}
	if p.config.GroupID != "" {
		attrs = append(attrs, semconv.MessagingConsumerGroupName(p.config.GroupID))
	}

	start := time.Now()
	ctx, span := tel.Tracer.Start(
		ctx, r.Topic+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	ec := errorhandler.NewErrorContext(r, nil).WithPhase(errorhandler.PhaseProcessing).WithStage("handler")
	recordStatus := func(status string) {
		span.SetAttributes(attribute.Int("consumer.process.retry_count", ec.Attempt-1))
		tel.ProcessDuration.Record(
			ctx, time.Since(start).Seconds(), metric.WithAttributes(
				semconv.MessagingDestinationName(r.Topic),
				semconv.MessagingDestinationPartitionID(partitionID),
				consumerotel.AttrProcessStatus.String(status),
			),
		)
	}

	for {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("Context cancelled while processing record", "offset", r.Offset, "error", err)
			span.SetStatus(codes.Error, err.Error())
			return outcomeProcessed, err
		}

		err := p.call(ctx, r)
		if err == nil {
			p.logger.Debug("Record processed", "topic", r.Topic, "partition", r.Partition, "offset", r.Offset)
			recordStatus(consumerotel.StatusSuccess)
			return outcomeProcessed, nil
		}

		if ctx.Err() != nil {
			span.SetStatus(codes.Error, ctx.Err().Error())
			return outcomeProcessed, ctx.Err()
		}

		ec = ec.WithError(err)
		span.RecordError(err)
		tel.ProcessErrors.Add(
			ctx, 1, metric.WithAttributes(
				semconv.MessagingDestinationName(r.Topic),
				consumerotel.AttrErrorPhase.String(ec.Phase.String()),
			),
		)

		action := p.config.ErrorHandler.Handle(ctx, ec)
		tel.ErrorHandlerActions.Add(
			ctx, 1, metric.WithAttributes(
				consumerotel.AttrErrorAction.String(action.Type().String()),
				consumerotel.AttrErrorPhase.String(ec.Phase.String()),
			),
		)

		switch action.Type() {
		case errorhandler.ActionTypeRetry:
			ec = ec.IncrementAttempt()
			p.logger.Debug("Retrying record", "attempt", ec.Attempt, "offset", r.Offset)

			if ec.Attempt%10 == 0 {
				p.logger.Warn(
					"Record seen high number of retry attempts, "+
						"consider sending to DLQ or allowing error handler to skip.",
					"attempt", ec.Attempt, "topic", r.Topic, "partition", r.Partition, "offset", r.Offset,
				)
			}
			continue

		case errorhandler.ActionTypeSendToDLQ:
			a, ok := action.(errorhandler.ActionSendToDLQ)
			if !ok {
				recordStatus(consumerotel.StatusFailed)
				span.SetStatus(codes.Error, "invalid action type")
				return outcomeProcessed, errors.New("invalid action type, expected ActionSendToDLQ")
			}

			if err := errorhandler.SendToDLQ(ctx, tel.TracingProducer(p.config.DLQProducer), a.Topic(), ec); err != nil {
				p.logger.Error(
					"Failed to send record to DLQ",
					"error", err,
					"original_topic", r.Topic,
					"original_partition", r.Partition,
					"original_offset", r.Offset,
				)
				recordStatus(consumerotel.StatusFailed)
				span.SetStatus(codes.Error, err.Error())
				return outcomeProcessed, fmt.Errorf("dead letter %s@%d: %w", r.TopicPartition(), r.Offset, err)
			}

			recordStatus(consumerotel.StatusDLQ)
			return outcomeDeadLettered, nil

		case errorhandler.ActionTypeContinue:
			p.logger.Debug("Skipping failed record", "offset", r.Offset)
			recordStatus(consumerotel.StatusDropped)
			return outcomeSkipped, nil

		default:
			recordStatus(consumerotel.StatusFailed)
			span.SetStatus(codes.Error, err.Error())
			return outcomeProcessed, fmt.Errorf("process %s@%d: %w", r.TopicPartition(), r.Offset, err)
		}
	}
}
