package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hugolhafner/go-consumer/control"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/supervisor"
)

const Version = "v0.1.0" // x-release-please-version

var (
	ErrAlreadyRunning = errors.New("application is already running")
	ErrClosed         = errors.New("application is closed")
)

// Application runs a Pipeline under a restart supervisor. Every run gets a
// fresh broker, subscription and engine.
type Application struct {
	brokers   BrokerFactory
	subscribe SubscriptionFactory
	pipeline  Pipeline
	config    Config

	logger logger.Logger

	mu         sync.Mutex
	running    bool
	supervisor *supervisor.Supervisor
	closeOnce  sync.Once
	closedCh   chan struct{}
}

func NewApplication(
	brokers BrokerFactory, subscribe SubscriptionFactory, pipeline Pipeline, opts ...ConfigOption,
) *Application {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return NewApplicationWithConfig(brokers, subscribe, pipeline, config)
}

func NewApplicationWithConfig(
	brokers BrokerFactory, subscribe SubscriptionFactory, pipeline Pipeline, config Config,
) *Application {
	if config.Logger == nil {
		config.Logger = logger.NewNoopLogger()
	}

	return &Application{
		brokers:   brokers,
		subscribe: subscribe,
		pipeline:  pipeline,
		config:    config,
		logger:    config.Logger.With("component", "application"),
		closedCh:  make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled, Close is called or the supervisor gives
// up. Cancelling ctx or calling Close drains the current run.
func (a *Application) Run(ctx context.Context) error {
	if err := a.startRunning(); err != nil {
		return err
	}
	defer a.Close()

	opts := append(
		[]supervisor.Option{supervisor.WithLogger(a.config.Logger)},
		a.config.SupervisorOptions...,
	)
	s := supervisor.New(a.start, opts...)

	a.mu.Lock()
	a.supervisor = s
	a.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.closedCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	a.logger.Info("Application starting", "version", Version)
	return s.Run(runCtx)
}

// start is the supervisor's factory: it builds and starts one run.
func (a *Application) start(ctx context.Context) (*control.Handle, error) {
	b, err := a.brokers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create broker: %w", err)
	}

	sub, err := a.subscribe(ctx)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	e, stage := a.pipeline(b, sub, a.config.EngineOptions...)

	h, err := e.Start(ctx)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	if err := h.Go("pipeline", stage); err != nil {
		_ = h.Shutdown(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}

	return h, nil
}

// Supervisor returns the supervisor of the current Run, or nil before Run.
func (a *Application) Supervisor() *supervisor.Supervisor {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.supervisor
}

func (a *Application) Close() {
	a.closeOnce.Do(
		func() {
			a.mu.Lock()
			defer a.mu.Unlock()

			a.running = false
			close(a.closedCh)
		},
	)
}

func (a *Application) startRunning() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return ErrAlreadyRunning
	}

	select {
	case <-a.closedCh:
		return ErrClosed
	default:
	}

	a.running = true
	return nil
}
