package consumer

import (
	"context"

	"github.com/hugolhafner/go-consumer/control"
	"github.com/hugolhafner/go-consumer/engine"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/pipeline"
	"github.com/hugolhafner/go-consumer/subscription"
)

// BrokerFactory returns a fresh broker for every run. The engine closes it
// when the run stops.
type BrokerFactory func(ctx context.Context) (kafka.Broker, error)

// SubscriptionFactory returns the subscription for a run. It is called once
// per run so restarts can pick up offsets saved in the meantime.
type SubscriptionFactory func(ctx context.Context) (subscription.Subscription, error)

// Pipeline builds the engine for one run together with the stage that
// consumes it.
type Pipeline func(b kafka.Broker, sub subscription.Subscription, opts ...engine.Option) (*engine.Engine, control.Stage)

// Static always returns sub.
func Static(sub subscription.Subscription) SubscriptionFactory {
	return func(context.Context) (subscription.Subscription, error) {
		return sub, nil
	}
}

// FromStore assigns tps starting after the offsets saved in store.
func FromStore(store pipeline.OffsetStore, tps ...kafka.TopicPartition) SubscriptionFactory {
	return func(ctx context.Context) (subscription.Subscription, error) {
		return pipeline.SeedSubscription(ctx, store, tps...)
	}
}

// AtLeastOnce commits each record's offset after h returns.
func AtLeastOnce(h pipeline.Handler, opts ...pipeline.Option) Pipeline {
	return func(b kafka.Broker, sub subscription.Subscription, engineOpts ...engine.Option) (
		*engine.Engine, control.Stage,
	) {
		e := engine.NewCommittable(b, sub, engineOpts...)
		return e, pipeline.AtLeastOnce(e, h, opts...)
	}
}

// AtMostOnce commits each record's offset before h runs.
func AtMostOnce(h pipeline.Handler, opts ...pipeline.Option) Pipeline {
	return func(b kafka.Broker, sub subscription.Subscription, engineOpts ...engine.Option) (
		*engine.Engine, control.Stage,
	) {
		e := engine.NewCommittable(b, sub, engineOpts...)
		return e, pipeline.AtMostOnce(e, h, opts...)
	}
}

// Partitioned handles every partition in its own worker and commits each
// partition independently.
func Partitioned(h pipeline.Handler, opts ...pipeline.Option) Pipeline {
	return func(b kafka.Broker, sub subscription.Subscription, engineOpts ...engine.Option) (
		*engine.Engine, control.Stage,
	) {
		e := engine.NewPartitioned(b, sub, engineOpts...)
		return e, pipeline.Partitioned(e, h, opts...)
	}
}

// ExternalStore saves offsets to store instead of the broker. Pair it with
// FromStore.
func ExternalStore(store pipeline.OffsetStore, h pipeline.Handler, opts ...pipeline.Option) Pipeline {
	return func(b kafka.Broker, sub subscription.Subscription, engineOpts ...engine.Option) (
		*engine.Engine, control.Stage,
	) {
		e := engine.NewPlain(b, sub, engineOpts...)
		return e, pipeline.ExternalStore(e, store, h, opts...)
	}
}
