package engine

import (
	"context"
	"fmt"

	"github.com/hugolhafner/go-consumer/committer"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/offset"
	consumerotel "github.com/hugolhafner/go-consumer/otel"
)

type rebalancer struct {
	e *Engine
}

var _ kafka.RebalanceListener = rebalancer{}

func (r rebalancer) OnAssigned(ctx context.Context, tps []kafka.TopicPartition) {
	r.e.onAssigned(ctx, tps)
}

func (r rebalancer) OnRevoked(ctx context.Context, tps []kafka.TopicPartition) {
	r.e.onRevoked(ctx, tps)
}

// onAssigned runs the user listener, then starts one source per new
// partition at its resolved start offset.
func (e *Engine) onAssigned(ctx context.Context, tps []kafka.TopicPartition) {
	e.rebalanceMu.Lock()
	defer e.rebalanceMu.Unlock()

	e.mu.Lock()
	stopped, listener := e.stopped, e.resolved.Listener
	e.mu.Unlock()

	if stopped {
		e.logger.Debug("Ignoring assignment after intake stopped", "partitions", tps)
		return
	}

	listener.OnAssigned(ctx, tps)

	var started int
	for _, tp := range tps {
		e.mu.Lock()
		_, owned := e.sources[tp]
		e.mu.Unlock()

		if owned {
			continue
		}

		from, err := e.startOffset(ctx, tp)
		if err != nil {
			e.fail(fmt.Errorf("resolve start offset of %s: %w", tp, err))
			return
		}

		if err := e.startSource(tp, from); err != nil {
			e.fail(fmt.Errorf("start %s: %w", tp, err))
			return
		}
		started++

		e.logger.Info("Partition assigned", "topic", tp.Topic, "partition", tp.Partition, "offset", from)
	}

	e.recordRebalance(ctx, consumerotel.RebalanceAssigned, started)
}

// startOffset picks the first offset to read. An explicit offset wins,
// otherwise the highest known commit, otherwise the reset policy.
func (e *Engine) startOffset(ctx context.Context, tp kafka.TopicPartition) (int64, error) {
	if o, ok := e.resolved.StartOffset(tp); ok {
		return o, nil
	}

	from := int64(-1)
	if o, ok := e.ledger.HighestCommitted(tp); ok {
		from = o + 1
	}

	pos, ok, err := e.broker.CommittedOffset(ctx, tp)
	if err != nil {
		return 0, err
	}
	if ok && pos > from {
		from = pos
	}
	if from >= 0 {
		return from, nil
	}

	return e.broker.ListOffset(ctx, tp, e.config.OffsetReset)
}

func (e *Engine) startSource(tp kafka.TopicPartition, from int64) error {
	var (
		sink offset.Sink
		c    *committer.Committer
	)

	switch e.mode {
	case modeCommittable:
		sink = e.sink
	case modePartitioned:
		var err error
		c, err = e.newCommitter(nil)
		if err != nil {
			return err
		}
		sink = e.guard(c)
	}

	src := newSource(tp, from, e.broker, &e.config, e.ledger, sink, e.fail)

	e.mu.Lock()
	e.sources[tp] = src
	if c != nil {
		e.scoped[tp] = c
	}
	e.mu.Unlock()

	src.Start(e.runCtx)

	if e.mode == modePartitioned {
		e.mu.Lock()
		e.queue = append(e.queue, &PartitionStream{tp: tp, src: src, committer: c})
		e.mu.Unlock()

		select {
		case e.notify <- struct{}{}:
		default:
		}
		return nil
	}

	e.fanIn.Add(1)
	go e.forward(src)
	return nil
}

// onRevoked runs the user listener first so it can still commit. The
// revoked sources are then stopped, dropping anything buffered, and the
// committers flush what they hold before forgetting the partitions.
func (e *Engine) onRevoked(ctx context.Context, tps []kafka.TopicPartition) {
	e.rebalanceMu.Lock()
	defer e.rebalanceMu.Unlock()

	e.mu.Lock()
	listener := e.resolved.Listener
	e.mu.Unlock()

	listener.OnRevoked(ctx, tps)

	type revokedPartition struct {
		tp         kafka.TopicPartition
		src        *source
		committer  *committer.Committer
		unregister func()
	}

	e.mu.Lock()
	revoked := make([]revokedPartition, 0, len(tps))
	for _, tp := range tps {
		src, ok := e.sources[tp]
		if !ok {
			continue
		}

		rp := revokedPartition{tp: tp, src: src, committer: e.scoped[tp]}
		if rp.committer != nil {
			rp.unregister = e.unregister[rp.committer]
			delete(e.unregister, rp.committer)
		}
		delete(e.sources, tp)
		delete(e.scoped, tp)
		revoked = append(revoked, rp)
	}
	shared := make([]*committer.Committer, 0, len(e.shared))
	for c := range e.shared {
		shared = append(shared, c)
	}
	e.mu.Unlock()

	for _, rp := range revoked {
		rp.src.Stop(true)
	}

	for _, c := range shared {
		if err := c.FlushRevoked(ctx, tps...); err != nil {
			e.logger.Warn("Flush of revoked partitions failed", "error", err, "partitions", tps)
		}
	}

	for _, rp := range revoked {
		if rp.committer != nil {
			if err := rp.committer.FlushRevoked(ctx, rp.tp); err != nil {
				e.logger.Warn(
					"Flush of revoked partition failed",
					"error", err,
					"topic", rp.tp.Topic,
					"partition", rp.tp.Partition,
				)
			}
			_ = rp.committer.Close(ctx)
			rp.unregister()
		}

		e.logger.Info("Partition revoked", "topic", rp.tp.Topic, "partition", rp.tp.Partition)
	}

	if r, ok := e.broker.(releaser); ok {
		r.Release(tps...)
	}

	e.ledger.Forget(tps...)
	e.recordRebalance(ctx, consumerotel.RebalanceRevoked, len(revoked))
}
