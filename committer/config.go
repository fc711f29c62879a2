package committer

import (
	"sync"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/otel"
)

type Config struct {
	// MaxBatch flushes once this many committables were added since the last
	// flush
	MaxBatch int

	// MaxInterval flushes on a timer started by Start
	MaxInterval time.Duration

	// MaxRetries bounds retries of a regular flush after transient errors
	MaxRetries int

	// FinalRetries bounds retries of the flush done by Close
	FinalRetries int

	RetryBackoff backoff.Backoff

	// OnFatal is called once with the first CommitFailedError
	OnFatal func(error)

	// CommitLock serializes broker commits shared across committers
	CommitLock sync.Locker

	Logger    logger.Logger
	Telemetry *otel.Telemetry
}

func defaultConfig() Config {
	return Config{
		MaxBatch:     100,
		MaxInterval:  5 * time.Second,
		MaxRetries:   3,
		FinalRetries: 5,
		RetryBackoff: backoff.NewFixed(200 * time.Millisecond),
		Logger:       logger.NewNoopLogger(),
		Telemetry:    otel.Noop(),
	}
}

type Option func(*Config)

func WithMaxBatch(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxBatch = n
		}
	}
}

func WithMaxInterval(d time.Duration) Option {
	return func(cfg *Config) {
		if d > 0 {
			cfg.MaxInterval = d
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(cfg *Config) {
		if n >= 0 {
			cfg.MaxRetries = n
		}
	}
}

// WithFinalRetries sets the retry budget of the completion flush done by
// Close.
func WithFinalRetries(n int) Option {
	return func(cfg *Config) {
		if n >= 0 {
			cfg.FinalRetries = n
		}
	}
}

func WithRetryBackoff(b backoff.Backoff) Option {
	return func(cfg *Config) {
		if b != nil {
			cfg.RetryBackoff = b
		}
	}
}

func WithOnFatal(fn func(error)) Option {
	return func(cfg *Config) {
		cfg.OnFatal = fn
	}
}

func WithCommitLock(l sync.Locker) Option {
	return func(cfg *Config) {
		cfg.CommitLock = l
	}
}

func WithLogger(l logger.Logger) Option {
	return func(cfg *Config) {
		if l != nil {
			cfg.Logger = l
		}
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return func(cfg *Config) {
		if t != nil {
			cfg.Telemetry = t
		}
	}
}
