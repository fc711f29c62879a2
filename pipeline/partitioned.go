package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/hugolhafner/go-consumer/control"
	"github.com/hugolhafner/go-consumer/engine"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
)

// Partitioned returns a stage for a partitioned engine that runs one worker
// per partition stream, at most MaxPartitions at a time. Records are
// handled in order within a partition and staged to the stream's own
// committer. A slow partition only delays itself.
func Partitioned(e *engine.Engine, h Handler, opts ...Option) control.Stage {
	p := newProcessor(h, "partitioned", opts)

	return func(ctx context.Context) (any, error) {
		streams := e.Partitions()
		if streams == nil {
			return nil, fmt.Errorf("partitioned pipeline needs a partitioned engine: %w", ErrWrongMode)
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var (
			t       tally
			wg      sync.WaitGroup
			slots   = make(chan struct{}, p.config.MaxPartitions)
			errCh   = make(chan error, 1)
			started int
		)

		wait := func() {
			wg.Wait()
			p.logger.Debug("Partition workers stopped", "workers", started)
		}

		for {
			select {
			case err := <-errCh:
				cancel()
				wait()
				return t.result(), err

			case <-ctx.Done():
				wait()
				select {
				case err := <-errCh:
					return t.result(), err
				default:
				}
				return t.result(), ctx.Err()

			case ps, ok := <-streams:
				if !ok {
					wait()
					select {
					case err := <-errCh:
						return t.result(), err
					default:
					}
					return t.result(), nil
				}

				w := newPartitionWorker(ps, p, slots, &t, errCh)
				started++
				wg.Add(1)
				go func() {
					defer wg.Done()
					w.run(ctx)
				}()
			}
		}
	}
}

// partitionWorker processes the records of a single partition stream in its
// own goroutine once it holds a slot.
type partitionWorker struct {
	stream *engine.PartitionStream
	proc   *processor
	slots  chan struct{}
	tally  *tally
	errCh  chan error
	logger logger.Logger
}

func newPartitionWorker(
	ps *engine.PartitionStream,
	p *processor,
	slots chan struct{},
	t *tally,
	errCh chan error,
) *partitionWorker {
	tp := ps.TopicPartition()

	return &partitionWorker{
		stream: ps,
		proc:   p,
		slots:  slots,
		tally:  t,
		errCh:  errCh,
		logger: p.logger.With(
			"component", "partition-worker",
			"topic", tp.Topic,
			"partition", tp.Partition,
		),
	}
}

func (w *partitionWorker) Partition() kafka.TopicPartition {
	return w.stream.TopicPartition()
}

func (w *partitionWorker) run(ctx context.Context) {
	select {
	case w.slots <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-w.slots }()

	w.logger.Debug("Partition worker started")

	if err := w.proc.consume(ctx, w.stream.Messages(), w.tally, nil, stageOffset); err != nil {
		if ctx.Err() != nil {
			w.logger.Debug("Partition worker cancelled", "error", err)
			return
		}

		w.logger.Error("Error processing partition", "error", err)
		emitError(w.errCh, w.logger, fmt.Errorf("worker %v: fatal processing error: %w", w.Partition(), err))
		return
	}

	w.logger.Debug("Partition stream ended")
}
