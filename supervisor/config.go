package supervisor

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/otel"
)

type Config struct {
	// MinBackoff is the delay before the first restart
	MinBackoff time.Duration
	// MaxBackoff caps the delay between restarts
	MaxBackoff time.Duration
	// Jitter randomises each delay by up to this fraction, in [0, 1]
	Jitter float64
	// ResetAfter is how long a run must stay up for the attempt counter to
	// start over
	ResetAfter time.Duration
	// MaxRestarts bounds the consecutive restarts, 0 means unbounded
	MaxRestarts int

	Logger    logger.Logger
	Telemetry *otel.Telemetry
}

func defaultConfig() Config {
	return Config{
		MinBackoff: time.Second,
		MaxBackoff: 30 * time.Second,
		Jitter:     0.2,
		ResetAfter: time.Minute,
		Logger:     logger.NewNoopLogger(),
		Telemetry:  otel.Noop(),
	}
}

// newBackOff returns min(MaxBackoff, MinBackoff*2^attempt) randomised by
// Jitter. It never gives up on its own.
func (c Config) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.MinBackoff
	b.MaxInterval = c.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = c.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

type Option func(*Config)

// WithBackoff sets the restart delay bounds and jitter. Invalid values keep
// the defaults.
func WithBackoff(minBackoff, maxBackoff time.Duration, jitter float64) Option {
	return func(c *Config) {
		if minBackoff > 0 {
			c.MinBackoff = minBackoff
		}
		if maxBackoff >= c.MinBackoff {
			c.MaxBackoff = maxBackoff
		}
		if jitter >= 0 && jitter <= 1 {
			c.Jitter = jitter
		}
	}
}

func WithResetAfter(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ResetAfter = d
		}
	}
}

func WithMaxRestarts(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.MaxRestarts = n
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return func(c *Config) {
		if t != nil {
			c.Telemetry = t
		}
	}
}
