package pipeline

import (
	"context"
	"fmt"

	"github.com/hugolhafner/go-consumer/control"
	"github.com/hugolhafner/go-consumer/engine"
)

// AtLeastOnce returns a stage that runs h for every message of a
// committable engine and stages the message's offset once h has finished
// with it. A crash between the two redelivers the record.
//
//	h.Go("pipeline", pipeline.AtLeastOnce(e, handle))
func AtLeastOnce(e *engine.Engine, h Handler, opts ...Option) control.Stage {
	p := newProcessor(h, "at-least-once", opts)

	return func(ctx context.Context) (any, error) {
		msgs := e.Messages()
		if msgs == nil {
			return nil, fmt.Errorf("at-least-once needs a committable engine: %w", ErrWrongMode)
		}

		var t tally
		err := p.consume(ctx, msgs, &t, nil, stageOffset)
		return t.result(), err
	}
}

func stageOffset(ctx context.Context, m engine.Message) error {
	return m.Committable.Stage(ctx)
}

func commitOffset(ctx context.Context, m engine.Message) error {
	return m.Committable.Commit(ctx)
}

// consume processes msgs in order until the channel closes or ctx is done.
// before runs ahead of the handler, after once the record is finished with.
func (p *processor) consume(
	ctx context.Context,
	msgs <-chan engine.Message,
	t *tally,
	before, after func(context.Context, engine.Message) error,
) error {
	for {
		var (
			m  engine.Message
			ok bool
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok = <-msgs:
			if !ok {
				return nil
			}
		}

		if before != nil {
			if err := before(ctx, m); err != nil {
				return fmt.Errorf("before %s: %w", m.Committable, err)
			}
		}

		o, err := p.process(withDecoded(ctx, m), m.Record)
		if err != nil {
			return err
		}
		t.add(o)

		if after != nil {
			if err := after(ctx, m); err != nil {
				return fmt.Errorf("after %s: %w", m.Committable, err)
			}
		}
	}
}
