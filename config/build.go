package config

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/hugolhafner/dskit/backoff"
	consumer "github.com/hugolhafner/go-consumer"
	"github.com/hugolhafner/go-consumer/committer"
	"github.com/hugolhafner/go-consumer/control"
	"github.com/hugolhafner/go-consumer/engine"
	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/otel"
	"github.com/hugolhafner/go-consumer/pipeline"
	"github.com/hugolhafner/go-consumer/serde"
	"github.com/hugolhafner/go-consumer/subscription"
	"github.com/hugolhafner/go-consumer/supervisor"
)

// Broker is what the consumer needs from a client: the engine's broker
// interface plus a producer for dead letters.
type Broker interface {
	kafka.Broker
	kafka.Producer
}

// NewBroker builds the client selected by c.Client.
func NewBroker(c BrokerConfig, l logger.Logger) (Broker, error) {
	reset, _ := kafka.ParseOffsetReset(c.OffsetReset)

	switch c.Client {
	case ClientFranz, "":
		opts := []kafka.KgoOption{
			kafka.WithBootstrapServers(c.Brokers...),
			kafka.WithSessionTimeout(c.SessionTimeout),
			kafka.WithHeartbeatInterval(c.HeartbeatInterval),
			kafka.WithOffsetReset(reset),
			kafka.WithLogger(l),
		}
		if c.GroupID != "" {
			opts = append(opts, kafka.WithGroupID(c.GroupID))
		}
		if c.ClientID != "" {
			opts = append(opts, kafka.WithClientID(c.ClientID))
		}

		b, err := kafka.NewKgoBroker(opts...)
		if err != nil {
			return nil, fmt.Errorf("franz client: %w", err)
		}
		return b, nil

	case ClientSarama:
		opts := []kafka.SaramaOption{
			kafka.WithSaramaBootstrapServers(c.Brokers...),
			kafka.WithSaramaGroupID(c.GroupID),
			kafka.WithSaramaLogger(l),
		}
		if c.SaramaVersion != "" {
			v, err := sarama.ParseKafkaVersion(c.SaramaVersion)
			if err != nil {
				return nil, fmt.Errorf("%w: broker.sarama_version: %w", ErrInvalid, err)
			}
			opts = append(opts, kafka.WithSaramaVersion(v))
		}
		if c.ClientID != "" {
			clientID := c.ClientID
			opts = append(opts, kafka.WithSaramaConfig(func(sc *sarama.Config) { sc.ClientID = clientID }))
		}

		b, err := kafka.NewSaramaBroker(opts...)
		if err != nil {
			return nil, fmt.Errorf("sarama client: %w", err)
		}
		return b, nil

	default:
		return nil, fmt.Errorf("%w: broker.client %q", ErrInvalid, c.Client)
	}
}

// Partitions lists the explicitly assigned partitions.
func (c SubscriptionConfig) Partitions() []kafka.TopicPartition {
	tps := make([]kafka.TopicPartition, 0, len(c.Assign))
	for _, p := range c.Assign {
		tps = append(tps, kafka.TopicPartition{Topic: p.Topic, Partition: p.Partition})
	}
	return tps
}

// Subscription builds the subscription described by c. An assignment whose
// entries all carry an offset starts there; otherwise every partition resumes
// from its committed offset.
func (c SubscriptionConfig) Subscription() (subscription.Subscription, error) {
	var sub subscription.Subscription
	switch {
	case len(c.Topics) > 0:
		sub = subscription.Topics(c.Topics...)

	case len(c.Assign) > 0:
		explicit := make(map[kafka.TopicPartition]int64)
		for _, p := range c.Assign {
			if p.Offset != nil {
				explicit[kafka.TopicPartition{Topic: p.Topic, Partition: p.Partition}] = *p.Offset
			}
		}

		if len(explicit) == len(c.Assign) {
			sub = subscription.AssignmentWithOffsets(explicit)
		} else {
			sub = subscription.Assignment(c.Partitions()...)
		}

	default:
		return nil, fmt.Errorf("%w: empty subscription", ErrInvalid)
	}

	if _, err := subscription.Resolve(sub); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return sub, nil
}

// EngineOptions maps the engine, committer and control sections onto engine
// options.
func (c Config) EngineOptions(l logger.Logger, t *otel.Telemetry) []engine.Option {
	reset, _ := kafka.ParseOffsetReset(c.Broker.OffsetReset)

	opts := []engine.Option{
		engine.WithLogger(l),
		engine.WithTelemetry(t),
		engine.WithGroupID(c.Broker.GroupID),
		engine.WithBufferSize(c.Engine.BufferSize),
		engine.WithFetchMaxWait(c.Engine.FetchMaxWait),
		engine.WithFetchRetries(c.Engine.FetchRetries, backoff.NewFixed(c.Engine.FetchBackoff)),
		engine.WithOffsetReset(reset),
		engine.WithControlOptions(
			control.WithStopTimeout(c.Control.StopTimeout),
			control.WithFinalFlushRetries(c.Committer.FinalRetries),
		),
		engine.WithCommitterOptions(
			committer.WithMaxBatch(c.Committer.MaxBatch),
			committer.WithMaxInterval(c.Committer.MaxInterval),
			committer.WithMaxRetries(c.Committer.MaxRetries),
			committer.WithFinalRetries(c.Committer.FinalRetries),
			committer.WithRetryBackoff(backoff.NewFixed(c.Committer.RetryBackoff)),
		),
	}

	// validated by Load
	if d, err := serde.LookupDecoder(c.Engine.Decoder.Key, c.Engine.Decoder.Value); err == nil && !d.IsZero() {
		opts = append(opts, engine.WithDecoder(d.Key, d.Value))
	}

	return opts
}

func (c Config) SupervisorOptions(l logger.Logger, t *otel.Telemetry) []supervisor.Option {
	return []supervisor.Option{
		supervisor.WithLogger(l),
		supervisor.WithTelemetry(t),
		supervisor.WithBackoff(c.Supervisor.MinBackoff, c.Supervisor.MaxBackoff, c.Supervisor.Jitter),
		supervisor.WithResetAfter(c.Supervisor.ResetAfter),
		supervisor.WithMaxRestarts(c.Supervisor.MaxRestarts),
	}
}

// ErrorHandler retries a failing record up to MaxAttempts times, then fails
// the run or skips the record.
func (c PipelineConfig) ErrorHandler(l logger.Logger) errorhandler.Handler {
	fallback := errorhandler.LogAndFail(l)
	if c.OnError == OnErrorSkip {
		fallback = errorhandler.LogAndContinue(l)
	}

	if c.MaxAttempts <= 1 {
		return fallback
	}
	return errorhandler.WithMaxAttempts(c.MaxAttempts, backoff.NewFixed(c.RetryBackoff), fallback)
}

func (c Config) PipelineOptions(l logger.Logger, t *otel.Telemetry) []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithLogger(l),
		pipeline.WithErrorHandler(c.Pipeline.ErrorHandler(l)),
		pipeline.WithTelemetry(t),
		pipeline.WithGroupID(c.Broker.GroupID),
		pipeline.WithHandlerTimeout(c.Pipeline.HandlerTimeout),
		pipeline.WithMaxPartitions(c.Pipeline.MaxPartitions),
	}
}

// BuildPipeline picks the pipeline matching the configured semantics and engine
// mode. store is only used by the external-store semantics.
func (c Config) BuildPipeline(store pipeline.OffsetStore, h pipeline.Handler, opts ...pipeline.Option) consumer.Pipeline {
	switch {
	case c.Pipeline.Semantics == SemanticsExternalStore:
		return consumer.ExternalStore(store, h, opts...)
	case c.Pipeline.Semantics == SemanticsAtMostOnce:
		return consumer.AtMostOnce(h, opts...)
	case c.Engine.Mode == ModePartitioned:
		return consumer.Partitioned(h, opts...)
	default:
		return consumer.AtLeastOnce(h, opts...)
	}
}

// Subscribe returns the subscription factory for the configured
// semantics. With an external store the assigned partitions resume after
// the offsets saved in store.
func (c Config) Subscribe(store pipeline.OffsetStore) (consumer.SubscriptionFactory, error) {
	if c.Pipeline.Semantics == SemanticsExternalStore {
		return consumer.FromStore(store, c.Subscription.Partitions()...), nil
	}

	sub, err := c.Subscription.Subscription()
	if err != nil {
		return nil, err
	}
	return consumer.Static(sub), nil
}

// Brokers returns a broker factory building a new client for every run.
func (c Config) Brokers(l logger.Logger) consumer.BrokerFactory {
	return func(context.Context) (kafka.Broker, error) {
		return NewBroker(c.Broker, l)
	}
}
