package committer

import (
	"context"
	"sync"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/offset"
	consumerotel "github.com/hugolhafner/go-consumer/otel"
	"go.opentelemetry.io/otel/metric"
)

var _ offset.Sink = (*Committer)(nil)

// Store is the part of kafka.Broker a committer writes to.
type Store interface {
	Commit(ctx context.Context, positions map[kafka.TopicPartition]int64) error
}

type Stats struct {
	// Commits counts successful broker commits
	Commits int64
	// Offsets counts partition offsets written by those commits
	Offsets int64
	// Failures counts commit attempts that returned an error
	Failures int64
}

// Committer batches committables and writes them to a Store. A batch is
// flushed when it reaches MaxBatch adds, when MaxInterval elapses, on Flush
// and on Close. A failed batch stays in flight and is retried, merged with
// anything added since.
type Committer struct {
	store  Store
	ledger *offset.Ledger
	config Config
	logger logger.Logger

	mu       sync.Mutex
	pending  offset.Batch
	inflight offset.Batch
	closed   bool
	stats    Stats
	fatalErr error

	flushMu sync.Mutex

	startOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
	fatalOnce sync.Once
}

// New creates a committer writing to store. ledger may be shared with the
// engine; committed offsets are recorded in it and entries at or below them
// are never sent again.
func New(store Store, ledger *offset.Ledger, opts ...Option) *Committer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if ledger == nil {
		ledger = offset.NewLedger()
	}

	return &Committer{
		store:  store,
		ledger: ledger,
		config: cfg,
		logger: cfg.Logger.With("component", "committer"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start runs the interval trigger until ctx is done or Close is called.
func (c *Committer) Start(ctx context.Context) {
	c.startOnce.Do(
		func() {
			go c.run(ctx)
		},
	)
}

func (c *Committer) run(ctx context.Context) {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.MaxInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if !c.hasWork() {
				continue
			}

			if err := c.flush(ctx, c.config.MaxRetries, consumerotel.CommitPhaseRegular); err != nil {
				c.logger.Warn("Interval flush failed", "error", err)
			}
		}
	}
}

func (c *Committer) hasWork() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return !c.pending.IsEmpty() || !c.inflight.IsEmpty()
}

// Add merges cm into the open batch, flushing synchronously once the batch
// reaches MaxBatch adds.
func (c *Committer) Add(ctx context.Context, cm offset.Committable) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.fatalErr != nil {
		err := c.fatalErr
		c.mu.Unlock()
		return err
	}

	c.pending = c.pending.Updated(cm)
	full := c.pending.Adds()+c.inflight.Adds() >= c.config.MaxBatch
	c.mu.Unlock()

	if full {
		return c.flush(ctx, c.config.MaxRetries, consumerotel.CommitPhaseRegular)
	}

	return nil
}

// Flush commits everything added so far.
func (c *Committer) Flush(ctx context.Context) error {
	return c.flush(ctx, c.config.MaxRetries, consumerotel.CommitPhaseRegular)
}

// FlushRevoked commits everything added so far with the final retry budget,
// then drops any state left for tps.
func (c *Committer) FlushRevoked(ctx context.Context, tps ...kafka.TopicPartition) error {
	err := c.flush(ctx, c.config.FinalRetries, consumerotel.CommitPhaseRevoke)
	c.Discard(tps...)
	return err
}

// Discard drops pending and in-flight offsets of tps.
func (c *Committer) Discard(tps ...kafka.TopicPartition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = c.pending.Without(tps...)
	c.inflight = c.inflight.Without(tps...)
}

// Close stops the interval trigger and performs the completion flush with
// the final retry budget. Close is idempotent; later calls only flush what
// is left, which is normally nothing.
func (c *Committer) Close(ctx context.Context) error {
	c.mu.Lock()
	wasClosed := c.closed
	c.closed = true
	c.mu.Unlock()

	if !wasClosed {
		close(c.stopCh)
		c.startOnce.Do(func() { close(c.doneCh) })
		select {
		case <-c.doneCh:
		case <-ctx.Done():
		}
	}

	return c.flush(ctx, c.config.FinalRetries, consumerotel.CommitPhaseFinal)
}

func (c *Committer) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stats
}

// Pending returns everything not yet committed, in flight included.
func (c *Committer) Pending() offset.Batch {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.inflight.Merge(c.pending)
}

func (c *Committer) flush(ctx context.Context, retries int, phase string) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	start := time.Now()
	tel := c.config.Telemetry
	phaseAttr := metric.WithAttributes(consumerotel.AttrCommitPhase.String(phase))

	for attempt := 0; ; attempt++ {
		batch := c.takeInflight()
		if batch.IsEmpty() {
			return nil
		}

		err := c.commit(ctx, batch)
		if err == nil {
			c.mu.Lock()
			c.inflight = offset.Batch{}
			c.stats.Commits++
			c.stats.Offsets += int64(batch.Len())
			c.mu.Unlock()

			tel.CommitDuration.Record(
				ctx, time.Since(start).Seconds(), metric.WithAttributes(
					consumerotel.AttrCommitPhase.String(phase),
					consumerotel.AttrCommitStatus.String(consumerotel.StatusSuccess),
				),
			)
			tel.OffsetsCommitted.Add(ctx, int64(batch.Len()), phaseAttr)
			c.logger.Debug("Committed offsets", "partitions", batch.Len(), "attempt", attempt+1, "phase", phase)
			return nil
		}

		c.mu.Lock()
		c.stats.Failures++
		c.mu.Unlock()
		tel.CommitFailures.Add(ctx, 1, phaseAttr)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !kafka.IsTransient(err) || attempt >= retries {
			tel.CommitDuration.Record(
				ctx, time.Since(start).Seconds(), metric.WithAttributes(
					consumerotel.AttrCommitPhase.String(phase),
					consumerotel.AttrCommitStatus.String(consumerotel.StatusFailed),
				),
			)
			return c.fail(&CommitFailedError{Batch: batch, Attempts: attempt + 1, Cause: err})
		}

		wait := c.config.RetryBackoff.Next(uint(attempt))
		c.logger.Warn(
			"Commit failed, retrying", "error", err, "attempt", attempt+1, "backoff", wait, "phase", phase,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// takeInflight folds pending into the in-flight batch and returns it minus
// anything already committed.
func (c *Committer) takeInflight() offset.Batch {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inflight = c.inflight.Merge(c.pending)
	c.pending = offset.Batch{}

	c.inflight = c.inflight.Filter(
		func(tp kafka.TopicPartition, o int64) bool {
			committed, ok := c.ledger.HighestCommitted(tp)
			return !ok || o > committed
		},
	)

	return c.inflight
}

func (c *Committer) commit(ctx context.Context, batch offset.Batch) error {
	if l := c.config.CommitLock; l != nil {
		l.Lock()
		defer l.Unlock()
	}

	if err := c.store.Commit(ctx, batch.Positions()); err != nil {
		return err
	}

	for tp, o := range batch.Offsets() {
		c.ledger.MarkCommitted(tp, o)
	}

	return nil
}

func (c *Committer) fail(err *CommitFailedError) error {
	c.mu.Lock()
	if c.fatalErr == nil {
		c.fatalErr = err
	}
	c.mu.Unlock()

	c.logger.Error("Commit failed permanently", "error", err, "attempts", err.Attempts)

	c.fatalOnce.Do(
		func() {
			if c.config.OnFatal != nil {
				c.config.OnFatal(err)
			}
		},
	)

	return err
}
