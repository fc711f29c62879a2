package pipeline

import (
	"context"
	"fmt"

	"github.com/hugolhafner/go-consumer/control"
	"github.com/hugolhafner/go-consumer/engine"
)

// AtMostOnce returns a stage that commits every message's offset before
// running h. A record whose handler fails or never finishes is not
// redelivered.
func AtMostOnce(e *engine.Engine, h Handler, opts ...Option) control.Stage {
	p := newProcessor(h, "at-most-once", opts)

	return func(ctx context.Context) (any, error) {
		msgs := e.Messages()
		if msgs == nil {
			return nil, fmt.Errorf("at-most-once needs a committable engine: %w", ErrWrongMode)
		}

		var t tally
		err := p.consume(ctx, msgs, &t, commitOffset, nil)
		return t.result(), err
	}
}
