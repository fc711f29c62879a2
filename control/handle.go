package control

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hugolhafner/go-consumer/logger"
)

// Stage is a unit of downstream work supervised by a Handle. The first
// non-nil result of any stage becomes the handle's result. A returned error
// fails the handle unless it is the cancellation the handle itself caused.
type Stage func(ctx context.Context) (any, error)

// Flusher holds offsets that must be persisted before the handle stops.
// committer.Committer implements it.
type Flusher interface {
	Close(ctx context.Context) error
}

// Handle is the lifecycle of one running engine. It is returned by
// engine.Start and is the only way to stop it.
type Handle struct {
	config Config
	logger logger.Logger

	mu       sync.Mutex
	state    State
	result   any
	err      error
	flushers map[uint64]Flusher
	nextID   uint64
	intake   []func()
	closers  []func()
	running  int

	stageCtx     context.Context
	cancelStages context.CancelFunc
	stages       sync.WaitGroup

	intakeOnce sync.Once
	hardCh     chan struct{}
	done       chan struct{}
	stopWatch  func() bool
}

// New returns a Running handle. Cancelling ctx starts a drain.
func New(ctx context.Context, opts ...Option) *Handle {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	stageCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	h := &Handle{
		config:       cfg,
		logger:       cfg.Logger.With("component", "control"),
		state:        Running,
		flushers:     make(map[uint64]Flusher),
		stageCtx:     stageCtx,
		cancelStages: cancel,
		hardCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}

	h.stopWatch = context.AfterFunc(
		ctx, func() {
			h.logger.Info("Parent context cancelled, draining")
			_, _ = h.DrainAndShutdown(context.Background())
		},
	)

	return h
}

// Go runs fn as a stage. Stages receive a context cancelled on hard
// shutdown; a drain waits for them to return on their own.
func (h *Handle) Go(name string, fn Stage) error {
	h.mu.Lock()
	if h.state != Running {
		h.mu.Unlock()
		return ErrNotRunning
	}
	h.stages.Add(1)
	h.running++
	h.mu.Unlock()

	go func() {
		defer h.stages.Done()

		res, err := fn(h.stageCtx)

		h.mu.Lock()
		h.running--
		if res != nil && h.result == nil {
			h.result = res
		}
		h.mu.Unlock()

		if err == nil {
			return
		}

		if errors.Is(err, context.Canceled) && h.stageCtx.Err() != nil {
			h.logger.Debug("Stage cancelled", "stage", name)
			return
		}

		h.Fail(fmt.Errorf("stage %s: %w", name, err))
	}()

	return nil
}

// OnStopIntake registers fn to run once when the handle stops accepting new
// records, on either drain or shutdown.
func (h *Handle) OnStopIntake(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.intake = append(h.intake, fn)
}

// OnStop registers fn to run when the handle reaches Stopped, after the
// final flush. Functions run in reverse registration order.
func (h *Handle) OnStop(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closers = append(h.closers, fn)
}

// Register adds f to the final flush. The returned function removes it.
func (h *Handle) Register(f Flusher) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	h.flushers[id] = f

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		delete(h.flushers, id)
	}
}

// Fail records err as the fatal cause, if none was recorded yet, and starts
// a hard shutdown in the background.
func (h *Handle) Fail(err error) {
	if err == nil {
		return
	}

	h.mu.Lock()
	if h.state == Stopped {
		h.mu.Unlock()
		return
	}
	first := h.err == nil
	if first {
		h.err = err
	}
	h.mu.Unlock()

	if first {
		h.logger.Error("Fatal error, shutting down", "error", err)
	}

	go func() {
		_ = h.Shutdown(context.Background())
	}()
}

// DrainAndShutdown stops intake, waits up to StopTimeout for stages to
// finish, flushes every registered committer and closes the broker. It
// returns the first stage result and the first fatal error. Calling it again,
// or after Shutdown, returns the same outcome.
func (h *Handle) DrainAndShutdown(ctx context.Context) (any, error) {
	h.mu.Lock()
	owner := h.transitionLocked(Draining) == nil
	h.mu.Unlock()

	if owner {
		h.logger.Info("Draining")
		h.stopIntake()
		h.drain(ctx)
	}

	return h.Wait(ctx)
}

// Shutdown cancels every stage, makes a best-effort flush bounded by
// StopTimeout and closes the broker. Offsets not yet committed are lost. It
// returns the first fatal error, if any.
func (h *Handle) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	from := h.state
	_ = h.transitionLocked(ShuttingDown)
	h.mu.Unlock()

	// a drain in progress notices hardCh and finishes the teardown itself
	if from == Running {
		h.logger.Info("Shutting down")
		h.stopIntake()
		h.hardStop()
	}

	_, err := h.Wait(ctx)
	return err
}

// Wait blocks until the handle is Stopped or ctx is done.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.outcome()
	default:
	}

	select {
	case <-h.done:
		return h.outcome()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle) outcome() (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.result, h.err
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the first fatal error recorded so far.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.err
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.state
}

// IsShutdown reports whether the handle reached Stopped.
func (h *Handle) IsShutdown() bool {
	return h.State() == Stopped
}

func (h *Handle) StopTimeout() time.Duration {
	return h.config.StopTimeout
}

func (h *Handle) FinalFlushRetries() int {
	return h.config.FinalFlushRetries
}

func (h *Handle) stopIntake() {
	h.intakeOnce.Do(
		func() {
			h.mu.Lock()
			fns := slices.Clone(h.intake)
			h.mu.Unlock()

			for _, fn := range fns {
				fn()
			}
		},
	)
}

func (h *Handle) stagesDone() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		h.stages.Wait()
		close(ch)
	}()
	return ch
}

func (h *Handle) drain(ctx context.Context) {
	timer := time.NewTimer(h.config.StopTimeout)
	defer timer.Stop()

	select {
	case <-h.stagesDone():
		if err := h.flushAll(ctx); err != nil {
			h.recordErr(err)
		}
		h.finish()
		return

	case <-h.hardCh:
		h.logger.Info("Shutdown requested during drain")

	case <-timer.C:
		h.mu.Lock()
		pending := h.running
		h.mu.Unlock()

		h.logger.Warn(
			"Drain timed out, forcing shutdown",
			"error", &ShutdownTimeoutError{Timeout: h.config.StopTimeout, Pending: pending},
		)
		h.forceShuttingDown()
		h.hardStopAfter(false)
		return

	case <-ctx.Done():
		h.logger.Warn("Drain context done, forcing shutdown", "error", ctx.Err())
		h.forceShuttingDown()
	}

	h.hardStop()
}

func (h *Handle) forceShuttingDown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	_ = h.transitionLocked(ShuttingDown)
}

func (h *Handle) transitionLocked(next State) error {
	if err := ValidateTransition(h.state, next); err != nil {
		return err
	}

	h.state = next
	if next == ShuttingDown {
		close(h.hardCh)
	}
	return nil
}

func (h *Handle) hardStop() {
	h.hardStopAfter(true)
}

// hardStopAfter cancels every stage and flushes with a fresh StopTimeout
// budget. When waitStages is false the stop timeout was already spent
// waiting, so the flush runs without waiting for stages again.
func (h *Handle) hardStopAfter(waitStages bool) {
	h.cancelStages()

	if waitStages {
		timer := time.NewTimer(h.config.StopTimeout)
		select {
		case <-h.stagesDone():
		case <-timer.C:
			h.logger.Warn("Stages did not stop before the stop timeout")
		}
		timer.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.StopTimeout)
	defer cancel()

	if err := h.flushAll(ctx); err != nil {
		h.logger.Warn("Best-effort flush failed", "error", err)
	}

	h.finish()
}

func (h *Handle) flushAll(ctx context.Context) error {
	h.mu.Lock()
	ids := make([]uint64, 0, len(h.flushers))
	for id := range h.flushers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	flushers := make([]Flusher, 0, len(ids))
	for _, id := range ids {
		flushers = append(flushers, h.flushers[id])
	}
	h.mu.Unlock()

	var errs []error
	for _, f := range flushers {
		if err := f.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (h *Handle) recordErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.err == nil {
		h.err = err
	}
}

func (h *Handle) finish() {
	h.stopWatch()
	h.cancelStages()

	h.mu.Lock()
	closers := slices.Clone(h.closers)
	h.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}

	h.mu.Lock()
	if err := h.transitionLocked(Stopped); err != nil {
		h.logger.Error("Unexpected state on stop", "error", err)
		h.state = Stopped
	}
	h.mu.Unlock()

	close(h.done)
	h.logger.Info("Stopped")
}
