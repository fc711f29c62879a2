package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/offset"
	consumerotel "github.com/hugolhafner/go-consumer/otel"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.38.0"
	"go.opentelemetry.io/otel/trace"
)

// source fetches one partition into a bounded channel. It is not
// restartable; a reassigned partition gets a new source.
type source struct {
	tp     kafka.TopicPartition
	broker kafka.Broker
	config *Config
	ledger *offset.Ledger
	sink   offset.Sink
	fail   func(error)
	logger logger.Logger

	next int64
	out  chan Message

	cancel    context.CancelFunc
	done      chan struct{}
	revokedCh chan struct{}
	stopOnce  sync.Once
}

func newSource(
	tp kafka.TopicPartition,
	from int64,
	broker kafka.Broker,
	config *Config,
	ledger *offset.Ledger,
	sink offset.Sink,
	fail func(error),
) *source {
	return &source{
		tp:     tp,
		broker: broker,
		config: config,
		ledger: ledger,
		sink:   sink,
		fail:   fail,
		logger: config.Logger.With(
			"component", "source",
			"topic", tp.Topic,
			"partition", tp.Partition,
		),
		next:      from,
		out:       make(chan Message, config.BufferSize),
		done:      make(chan struct{}),
		revokedCh: make(chan struct{}),
	}
}

func (s *source) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

// Stop ends the fetch loop and closes the channel. With drop set, buffered
// records are discarded first so nothing of a revoked partition is delivered
// afterwards.
func (s *source) Stop(drop bool) {
	s.stopOnce.Do(
		func() {
			if drop {
				close(s.revokedCh)
			}

			if s.cancel != nil {
				s.cancel()
				<-s.done
			}

			if drop {
			discard:
				for {
					select {
					case <-s.out:
					default:
						break discard
					}
				}
			}

			close(s.out)
			s.logger.Debug("Source stopped", "dropped", drop)
		},
	)
}

func (s *source) Poll(ctx context.Context, timeout time.Duration) (Message, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m, ok := <-s.out:
		if !ok {
			return Message{}, false, ErrSourceClosed
		}
		return m, true, nil
	case <-timer.C:
		return Message{}, false, nil
	case <-ctx.Done():
		return Message{}, false, ctx.Err()
	}
}

func (s *source) run(ctx context.Context) {
	defer close(s.done)

	s.logger.Debug("Source started", "offset", s.next)

	var attempts uint
	for {
		if ctx.Err() != nil {
			return
		}

		records, err := s.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			if kafka.IsRebalanceInProgress(err) || errors.Is(err, kafka.ErrNotAssigned) {
				s.logger.Debug("Fetch paused", "reason", err)
				if !s.wait(ctx, s.config.FetchBackoff.Next(0)) {
					return
				}
				continue
			}

			if kafka.IsTransient(err) && int(attempts) < s.config.FetchRetries {
				wait := s.config.FetchBackoff.Next(attempts)
				s.logger.Warn("Fetch failed, retrying", "error", err, "attempt", attempts+1, "backoff", wait)
				attempts++
				if !s.wait(ctx, wait) {
					return
				}
				continue
			}

			s.fail(fmt.Errorf("fetch %s at %d: %w", s.tp, s.next, err))
			return
		}
		attempts = 0

		for _, r := range records {
			if r.Offset < s.next {
				continue
			}

			msg, deliver, err := s.prepare(ctx, r)
			if err != nil {
				if ctx.Err() == nil {
					s.fail(err)
				}
				return
			}

			if deliver {
				select {
				case s.out <- msg:
				case <-ctx.Done():
					return
				}
			}

			s.next = r.Offset + 1
		}
	}
}

func (s *source) fetch(ctx context.Context) ([]kafka.Record, error) {
	tel := s.config.Telemetry
	start := time.Now()

	ctx, span := tel.Tracer.Start(
		ctx, "receive",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationTypeReceive,
			semconv.MessagingDestinationName(s.tp.Topic),
			semconv.MessagingDestinationPartitionID(strconv.FormatInt(int64(s.tp.Partition), 10)),
		),
	)
	defer span.End()

	records, err := s.broker.Fetch(ctx, s.tp, s.next, s.config.FetchMaxWait)

	status := consumerotel.StatusSuccess
	if err != nil {
		status = consumerotel.StatusError
		span.RecordError(err)
	}
	tel.FetchDuration.Record(
		ctx, time.Since(start).Seconds(), metric.WithAttributes(
			consumerotel.AttrFetchStatus.String(status),
		),
	)

	if err != nil {
		return nil, err
	}

	span.SetAttributes(semconv.MessagingBatchMessageCount(len(records)))
	if len(records) > 0 {
		tel.RecordsConsumed.Add(
			ctx, int64(len(records)), metric.WithAttributes(
				semconv.MessagingDestinationName(s.tp.Topic),
				semconv.MessagingDestinationPartitionID(strconv.FormatInt(int64(s.tp.Partition), 10)),
			),
		)
	}

	return records, nil
}

// prepare records r in the ledger and decodes it. Records the error handler
// skips are not delivered; the commit of a later record covers them.
func (s *source) prepare(ctx context.Context, r kafka.Record) (Message, bool, error) {
	s.ledger.Record(s.tp, r.Offset)

	msg := Message{Record: r, Committable: offset.ForRecord(r, s.sink)}

	key, value, err := s.config.Decoder.Decode(r)
	if err == nil {
		msg.Key, msg.Value = key, value
		return msg, true, nil
	}

	ec := errorhandler.NewErrorContext(r, &DeserializationError{Record: r, Cause: err}).
		WithPhase(errorhandler.PhaseSerde).
		WithStage("decode")
	tel := s.config.Telemetry

	for {
		tel.ProcessErrors.Add(
			ctx, 1, metric.WithAttributes(
				semconv.MessagingDestinationName(r.Topic),
				consumerotel.AttrErrorPhase.String(ec.Phase.String()),
			),
		)

		action := s.config.ErrorHandler.Handle(ctx, ec)
		tel.ErrorHandlerActions.Add(
			ctx, 1, metric.WithAttributes(
				consumerotel.AttrErrorAction.String(action.Type().String()),
				consumerotel.AttrErrorPhase.String(ec.Phase.String()),
			),
		)

		switch action.Type() {
		case errorhandler.ActionTypeContinue:
			s.logger.Debug("Skipping undecodable record", "offset", r.Offset)
			return msg, false, nil

		case errorhandler.ActionTypeRetry:
			if ctx.Err() != nil {
				return msg, false, ctx.Err()
			}

			key, value, err = s.config.Decoder.Decode(r)
			if err == nil {
				msg.Key, msg.Value = key, value
				return msg, true, nil
			}
			ec = ec.WithError(&DeserializationError{Record: r, Cause: err}).IncrementAttempt()

		case errorhandler.ActionTypeSendToDLQ:
			a, ok := action.(errorhandler.ActionSendToDLQ)
			if !ok {
				return msg, false, errors.New("invalid action type, expected ActionSendToDLQ")
			}

			if err := errorhandler.SendToDLQ(ctx, s.config.DLQProducer, a.Topic(), ec); err != nil {
				return msg, false, fmt.Errorf("dead letter %s@%d to %s: %w", s.tp, r.Offset, a.Topic(), err)
			}
			return msg, false, nil

		default:
			return msg, false, ec.Error
		}
	}
}

func (s *source) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
