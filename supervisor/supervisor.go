package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hugolhafner/go-consumer/control"
	"github.com/hugolhafner/go-consumer/logger"
)

// Factory builds and starts a fresh engine. It is called once per run; the
// handle it returns is owned by the supervisor.
type Factory func(ctx context.Context) (*control.Handle, error)

// Supervisor restarts the engine built by its Factory whenever a run fails,
// waiting an exponentially growing, jittered delay between attempts.
type Supervisor struct {
	factory Factory
	config  Config
	logger  logger.Logger

	mu       sync.Mutex
	state    State
	running  bool
	handle   *control.Handle
	attempts int
	restarts int

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

func New(factory Factory, opts ...Option) *Supervisor {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Supervisor{
		factory:    factory,
		config:     cfg,
		logger:     cfg.Logger.With("component", "supervisor"),
		shutdownCh: make(chan struct{}),
	}
}

// Run starts the engine and keeps it running until ctx is cancelled,
// Shutdown is called or a run ends without error. Cancelling ctx drains the
// current run. It returns a *RestartsExhaustedError when MaxRestarts
// consecutive restarts failed.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.startRunning(); err != nil {
		return err
	}
	defer s.setState(Stopped)

	bo := s.config.newBackOff()

	for {
		if s.stopping(ctx) {
			return nil
		}

		s.setState(Starting)
		started := time.Now()

		err := s.runOnce(ctx)
		if s.stopping(ctx) {
			if err != nil {
				s.logger.Warn("Run ended with error while stopping", "error", err)
			}
			return nil
		}
		if err == nil {
			s.logger.Info("Run completed")
			return nil
		}

		s.setState(Failed)
		if time.Since(started) >= s.config.ResetAfter {
			s.logger.Debug("Run was healthy, resetting attempts", "uptime", time.Since(started))
			bo.Reset()
			s.setAttempts(0)
		}

		attempts := s.Attempts()
		if s.config.MaxRestarts > 0 && attempts >= s.config.MaxRestarts {
			s.logger.Error("Restarts exhausted", "restarts", attempts, "error", err)
			return &RestartsExhaustedError{Restarts: attempts, Err: err}
		}

		delay := bo.NextBackOff()
		s.setAttempts(attempts + 1)
		s.setState(BackingOff)

		s.logger.Warn(
			"Run failed, restarting",
			"error", err,
			"attempt", attempts+1,
			"backoff", delay,
		)

		if !s.wait(ctx, delay) {
			return nil
		}

		s.mu.Lock()
		s.restarts++
		s.mu.Unlock()
		s.config.Telemetry.Restarts.Add(ctx, 1)
	}
}

// runOnce builds one engine and blocks until its handle stops. It returns
// the fatal error of the run, if any.
func (s *Supervisor) runOnce(ctx context.Context) error {
	h, err := s.factory(ctx)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	s.mu.Lock()
	s.handle = h
	s.state = Running
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.handle = nil
		s.mu.Unlock()
	}()

	s.logger.Info("Engine running")

	select {
	case <-h.Done():
	case <-s.shutdownCh:
		return h.Shutdown(context.Background())
	case <-ctx.Done():
		s.logger.Info("Context cancelled, draining engine")
		_, err := h.DrainAndShutdown(context.Background())
		return err
	}

	return h.Err()
}

func (s *Supervisor) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.shutdownCh:
		s.logger.Debug("Shutdown during backoff")
		return false
	case <-ctx.Done():
		s.logger.Debug("Context cancelled during backoff")
		return false
	}
}

// Shutdown cancels any pending backoff and shuts the current run down. Run
// then returns nil.
func (s *Supervisor) Shutdown() {
	s.shutdownOnce.Do(
		func() {
			s.logger.Info("Shutting down")
			close(s.shutdownCh)
		},
	)

	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()

	if h != nil {
		_ = h.Shutdown(context.Background())
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Attempts is the number of consecutive failed runs since the last healthy
// one.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.attempts
}

// Restarts is the total number of restarts performed.
func (s *Supervisor) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.restarts
}

func (s *Supervisor) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}

	select {
	case <-s.shutdownCh:
		return true
	default:
		return false
	}
}

func (s *Supervisor) startRunning() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	s.running = true
	return nil
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = st
}

func (s *Supervisor) setAttempts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts = n
}
