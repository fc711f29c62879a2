package errorhandler

import (
	"context"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-consumer/logger"
)

func recordFields(ec ErrorContext) []any {
	return []any{
		"error", ec.Error,
		"key", string(ec.Record.Key),
		"topic", ec.Record.Topic,
		"offset", ec.Record.Offset,
		"partition", ec.Record.Partition,
		"attempt", ec.Attempt,
		"stage", ec.Stage,
		"phase", ec.Phase.String(),
	}
}

// LogAndContinue logs error and continues processing
func LogAndContinue(logger logger.Logger) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			logger.Error("error processing record, skipping", recordFields(ec)...)
			return ActionContinue{}
		},
	)
}

// LogAndFail logs error and stops the consumer
func LogAndFail(logger logger.Logger) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			logger.Error("error processing record, failing", recordFields(ec)...)
			return ActionFail{}
		},
	)
}

// SilentFail fails without logging; the failure still surfaces through the
// control handle.
func SilentFail() Handler {
	return HandlerFunc(
		func(context.Context, ErrorContext) Action {
			return ActionFail{}
		},
	)
}

// WithMaxAttempts retries up to maxAttempts, waiting b between attempts, then
// defers to fallback.
func WithMaxAttempts(maxAttempts int, b backoff.Backoff, fallback Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			select {
			case <-ctx.Done():
				return ActionFail{}
			case <-time.After(b.Next(uint(ec.Attempt))):
			}

			if ec.Attempt < maxAttempts {
				return ActionRetry{}
			}

			return fallback.Handle(ctx, ec)
		},
	)
}

// WithDLQ turns every Continue decision of inner into a send to topic. A nil
// inner sends everything to the DLQ.
func WithDLQ(topic string, inner Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			var action Action = ActionContinue{}
			if inner != nil {
				action = inner.Handle(ctx, ec)
			}

			if action.Type() == ActionTypeContinue {
				return SendToDLQTopic(topic)
			}

			return action
		},
	)
}

// ActionLogger logs the decision made by next at the given level
func ActionLogger(l logger.Logger, level logger.LogLevel, next Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			action := next.Handle(ctx, ec)

			l.Log(
				level, "Error handler decision",
				append(
					[]any{"action", action.Type().String(), "releases_offset", action.Type().ReleasesOffset()},
					recordFields(ec)...,
				)...,
			)
			return action
		},
	)
}
