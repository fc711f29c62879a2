package consumer

import (
	"github.com/hugolhafner/go-consumer/engine"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/supervisor"
)

type Config struct {
	Logger logger.Logger

	// EngineOptions are passed to every engine the application builds
	EngineOptions []engine.Option

	SupervisorOptions []supervisor.Option
}

type ConfigOption func(*Config)

func WithLogger(logger logger.Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

func WithEngineOptions(opts ...engine.Option) ConfigOption {
	return func(c *Config) {
		c.EngineOptions = append(c.EngineOptions, opts...)
	}
}

func WithSupervisorOptions(opts ...supervisor.Option) ConfigOption {
	return func(c *Config) {
		c.SupervisorOptions = append(c.SupervisorOptions, opts...)
	}
}

func defaultConfig() Config {
	return Config{
		Logger: logger.NewNoopLogger(),
	}
}
