package control

import (
	"time"

	"github.com/hugolhafner/go-consumer/logger"
)

type Config struct {
	// StopTimeout bounds the wait for stages during a drain and the
	// best-effort flush of a hard shutdown
	StopTimeout time.Duration

	// FinalFlushRetries is the retry budget committers created for this
	// handle use for their completion flush
	FinalFlushRetries int

	Logger logger.Logger
}

func defaultConfig() Config {
	return Config{
		StopTimeout:       30 * time.Second,
		FinalFlushRetries: 5,
		Logger:            logger.NewNoopLogger(),
	}
}

type Option func(*Config)

func WithStopTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.StopTimeout = d
		}
	}
}

func WithFinalFlushRetries(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.FinalFlushRetries = n
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
