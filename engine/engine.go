package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/hugolhafner/go-consumer/committer"
	"github.com/hugolhafner/go-consumer/control"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/offset"
	consumerotel "github.com/hugolhafner/go-consumer/otel"
	"github.com/hugolhafner/go-consumer/subscription"
	"go.opentelemetry.io/otel/metric"
)

type mode int

const (
	modePlain mode = iota
	modeCommittable
	modePartitioned
)

func (m mode) String() string {
	switch m {
	case modeCommittable:
		return consumerotel.EngineModeCommittable
	case modePartitioned:
		return consumerotel.EngineModePartitioned
	default:
		return consumerotel.EngineModePlain
	}
}

// releaser is implemented by brokers that hold per-partition resources in
// assignment mode.
type releaser interface {
	Release(tps ...kafka.TopicPartition)
}

// Engine owns one partition source per assigned partition and merges them
// into a single channel, or exposes them one stream per partition.
type Engine struct {
	broker kafka.Broker
	sub    subscription.Subscription
	mode   mode
	config Config
	logger logger.Logger

	ledger *offset.Ledger

	// commitMu serialises broker commits across committers
	commitMu sync.Mutex

	// rebalanceMu orders assign, revoke and intake stop
	rebalanceMu sync.Mutex

	mu         sync.Mutex
	started    bool
	stopped    bool
	resolved   subscription.Resolved
	handle     *control.Handle
	sources    map[kafka.TopicPartition]*source
	shared     map[*committer.Committer]struct{}
	scoped     map[kafka.TopicPartition]*committer.Committer
	unregister map[*committer.Committer]func()
	queue      []*PartitionStream

	runCtx context.Context
	cancel context.CancelFunc
	abort  chan struct{}
	notify chan struct{}
	fanIn  sync.WaitGroup

	records    chan kafka.Record
	messages   chan Message
	partitions chan *PartitionStream

	sink offset.Sink
}

func newEngine(broker kafka.Broker, sub subscription.Subscription, m mode, opts []Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt.applyEngine(&cfg)
	}

	return &Engine{
		broker:     broker,
		sub:        sub,
		mode:       m,
		config:     cfg,
		logger:     cfg.Logger.With("component", "engine", "mode", m.String()),
		ledger:     offset.NewLedger(),
		sources:    make(map[kafka.TopicPartition]*source),
		shared:     make(map[*committer.Committer]struct{}),
		scoped:     make(map[kafka.TopicPartition]*committer.Committer),
		unregister: make(map[*committer.Committer]func()),
		abort:      make(chan struct{}),
		notify:     make(chan struct{}, 1),
	}
}

// NewPlain creates an engine delivering bare records on Records. Offsets are
// left to the caller.
func NewPlain(broker kafka.Broker, sub subscription.Subscription, opts ...Option) *Engine {
	e := newEngine(broker, sub, modePlain, opts)
	e.records = make(chan kafka.Record)
	return e
}

// NewCommittable creates an engine delivering records with a committable
// bound to a shared committer on Messages.
func NewCommittable(broker kafka.Broker, sub subscription.Subscription, opts ...Option) *Engine {
	e := newEngine(broker, sub, modeCommittable, opts)
	e.messages = make(chan Message)
	return e
}

// NewPartitioned creates an engine delivering one PartitionStream per
// assigned partition on Partitions. Each stream has its own committer.
func NewPartitioned(broker kafka.Broker, sub subscription.Subscription, opts ...Option) *Engine {
	e := newEngine(broker, sub, modePartitioned, opts)
	e.partitions = make(chan *PartitionStream)
	return e
}

// Records is nil unless the engine was built with NewPlain.
func (e *Engine) Records() <-chan kafka.Record {
	return e.records
}

// Messages is nil unless the engine was built with NewCommittable.
func (e *Engine) Messages() <-chan Message {
	return e.messages
}

// Partitions is nil unless the engine was built with NewPartitioned.
func (e *Engine) Partitions() <-chan *PartitionStream {
	return e.partitions
}

// Ledger exposes the offsets seen and committed in this engine's lifetime.
func (e *Engine) Ledger() *offset.Ledger {
	return e.ledger
}

// Assignment returns the partitions the engine currently consumes.
func (e *Engine) Assignment() []kafka.TopicPartition {
	e.mu.Lock()
	defer e.mu.Unlock()

	return kafka.SortTopicPartitions(slices.Collect(maps.Keys(e.sources)))
}

// Start resolves the subscription and begins consuming. The handle is
// returned immediately; explicit assignments are applied before Start
// returns, topic subscriptions as the group hands out partitions.
// Cancelling ctx drains the engine.
func (e *Engine) Start(ctx context.Context) (*control.Handle, error) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	e.started = true
	e.mu.Unlock()

	resolved, err := subscription.Resolve(e.sub)
	if err != nil {
		return nil, fmt.Errorf("resolve subscription: %w", err)
	}

	controlOpts := append([]control.Option{control.WithLogger(e.config.Logger)}, e.config.ControlOptions...)
	h := control.New(ctx, controlOpts...)

	e.mu.Lock()
	e.resolved = resolved
	e.handle = h
	e.runCtx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	e.mu.Unlock()

	h.OnStop(e.broker.Close)
	h.OnStop(func() { close(e.abort) })
	h.OnStopIntake(e.stopIntake)

	switch e.mode {
	case modePlain:
		go e.closeWhenDrained(func() { close(e.records) })
	case modeCommittable:
		c, err := e.NewCommitter()
		if err != nil {
			_ = h.Shutdown(ctx)
			return nil, err
		}
		e.sink = e.guard(c)
		go e.closeWhenDrained(func() { close(e.messages) })
	case modePartitioned:
		go e.emitStreams()
	}

	e.logger.Info("Engine started", "subscription", resolved.Kind.String())

	if resolved.IsAssignment() {
		e.onAssigned(e.runCtx, resolved.Partitions)
		return h, nil
	}

	if err := e.broker.Subscribe(resolved.Topics, rebalancer{e: e}); err != nil {
		_ = h.Shutdown(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("subscribe to %v: %w", resolved.Topics, err)
	}

	return h, nil
}

// NewCommitter creates a committer writing to the engine's broker, sharing
// its ledger and commit lock. It is flushed for revoked partitions on every
// rebalance and closed by the handle on drain or shutdown.
func (e *Engine) NewCommitter(opts ...committer.Option) (*committer.Committer, error) {
	c, err := e.newCommitter(opts)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.shared[c] = struct{}{}
	e.mu.Unlock()

	return c, nil
}

func (e *Engine) newCommitter(opts []committer.Option) (*committer.Committer, error) {
	e.mu.Lock()
	h, runCtx, stopped := e.handle, e.runCtx, e.stopped
	e.mu.Unlock()

	if h == nil {
		return nil, ErrNotStarted
	}
	if stopped {
		return nil, ErrStopped
	}

	all := []committer.Option{
		committer.WithLogger(e.config.Logger),
		committer.WithTelemetry(e.config.Telemetry),
		committer.WithCommitLock(&e.commitMu),
		committer.WithFinalRetries(h.FinalFlushRetries()),
		committer.WithOnFatal(h.Fail),
	}
	all = append(all, e.config.CommitterOptions...)
	all = append(all, opts...)

	c := committer.New(e.broker, e.ledger, all...)
	c.Start(runCtx)

	unregister := h.Register(c)

	e.mu.Lock()
	e.unregister[c] = unregister
	e.mu.Unlock()

	return c, nil
}

func (e *Engine) fail(err error) {
	e.mu.Lock()
	h := e.handle
	e.mu.Unlock()

	if h != nil {
		h.Fail(err)
	}
}

// guard wraps a sink so committables of partitions no longer assigned are
// dropped instead of committed.
func (e *Engine) guard(s offset.Sink) offset.Sink {
	return ownedSink{e: e, sink: s}
}

func (e *Engine) owns(tp kafka.TopicPartition) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.sources[tp]
	return ok || e.stopped
}

type ownedSink struct {
	e    *Engine
	sink offset.Sink
}

func (s ownedSink) Add(ctx context.Context, c offset.Committable) error {
	if !s.e.owns(c.TopicPartition) {
		s.e.logger.Debug("Dropping committable of unassigned partition", "committable", c.String())
		return nil
	}

	return s.sink.Add(ctx, c)
}

func (s ownedSink) Flush(ctx context.Context) error {
	return s.sink.Flush(ctx)
}

func (e *Engine) stopIntake() {
	e.rebalanceMu.Lock()
	defer e.rebalanceMu.Unlock()

	e.mu.Lock()
	e.stopped = true
	srcs := slices.Collect(maps.Values(e.sources))
	e.mu.Unlock()

	e.logger.Info("Stopping intake", "partitions", len(srcs))

	for _, s := range srcs {
		s.Stop(false)
	}

	e.cancel()

	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// closeWhenDrained closes the merged channel once intake has stopped and
// every forwarder has delivered what its source buffered.
func (e *Engine) closeWhenDrained(closeFn func()) {
	select {
	case <-e.runCtx.Done():
	case <-e.abort:
	}

	e.fanIn.Wait()
	closeFn()
}

func (e *Engine) forward(s *source) {
	defer e.fanIn.Done()

	for m := range s.out {
		if e.mode == modePlain {
			select {
			case e.records <- m.Record:
			case <-s.revokedCh:
			case <-e.abort:
				return
			}
			continue
		}

		select {
		case e.messages <- m:
		case <-s.revokedCh:
		case <-e.abort:
			return
		}
	}
}

func (e *Engine) emitStreams() {
	defer close(e.partitions)

	for {
		e.mu.Lock()
		if len(e.queue) > 0 {
			ps := e.queue[0]
			e.queue = e.queue[1:]
			e.mu.Unlock()

			select {
			case e.partitions <- ps:
			case <-e.abort:
				return
			}
			continue
		}
		stopped := e.stopped
		e.mu.Unlock()

		if stopped {
			return
		}

		select {
		case <-e.notify:
		case <-e.abort:
			return
		}
	}
}

func (e *Engine) recordRebalance(ctx context.Context, kind string, n int) {
	tel := e.config.Telemetry
	modeAttr := consumerotel.AttrEngineMode.String(e.mode.String())

	tel.Rebalances.Add(
		ctx, 1, metric.WithAttributes(
			consumerotel.AttrRebalanceKind.String(kind),
			modeAttr,
		),
	)

	delta := int64(n)
	if kind == consumerotel.RebalanceRevoked {
		delta = -delta
	}
	tel.PartitionsActive.Add(ctx, delta, metric.WithAttributes(modeAttr))
}
