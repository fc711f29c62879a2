package config

import (
	"errors"
	"fmt"

	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/serde"
)

var ErrInvalid = errors.New("config: invalid")

// Validate reports every problem in c at once.
func (c Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch c.Broker.Client {
	case ClientFranz, ClientSarama:
	default:
		invalid("broker.client %q (want %s or %s)", c.Broker.Client, ClientFranz, ClientSarama)
	}
	if len(c.Broker.Brokers) == 0 {
		invalid("broker.brokers is empty")
	}
	if _, ok := kafka.ParseOffsetReset(c.Broker.OffsetReset); !ok {
		invalid("broker.offset_reset %q (want earliest or latest)", c.Broker.OffsetReset)
	}

	hasTopics := len(c.Subscription.Topics) > 0
	hasAssign := len(c.Subscription.Assign) > 0
	switch {
	case hasTopics && hasAssign:
		invalid("subscription.topics and subscription.assign are mutually exclusive")
	case !hasTopics && !hasAssign:
		invalid("subscription needs topics or assign")
	case hasTopics && c.Broker.GroupID == "":
		invalid("subscription.topics needs broker.group_id")
	case hasTopics && c.Broker.Client == ClientSarama:
		invalid("the sarama client only supports subscription.assign")
	}
	withOffset := 0
	for i, p := range c.Subscription.Assign {
		if p.Offset != nil {
			withOffset++
		}
		if p.Topic == "" {
			invalid("subscription.assign[%d].topic is empty", i)
		}
		if p.Partition < 0 {
			invalid("subscription.assign[%d].partition is negative", i)
		}
		if p.Offset != nil && *p.Offset < 0 {
			invalid("subscription.assign[%d].offset is negative", i)
		}
	}
	if withOffset > 0 && withOffset < len(c.Subscription.Assign) {
		invalid("subscription.assign sets offset on some partitions only")
	}

	switch c.Engine.Mode {
	case ModePlain, ModeCommittable, ModePartitioned:
	default:
		invalid("engine.mode %q", c.Engine.Mode)
	}
	if c.Engine.BufferSize < 0 {
		invalid("engine.buffer_size is negative")
	}
	if !c.Engine.Decoder.IsZero() {
		if c.Engine.Mode == ModePlain {
			invalid("engine.decoder needs engine.mode committable or partitioned")
		}
		if _, err := serde.LookupDecoder(c.Engine.Decoder.Key, c.Engine.Decoder.Value); err != nil {
			invalid("engine.decoder %v", err)
		}
	}

	switch c.Pipeline.Semantics {
	case SemanticsAtLeastOnce:
		if c.Engine.Mode == ModePlain {
			invalid("at-least-once needs engine.mode committable or partitioned")
		}
	case SemanticsAtMostOnce:
		if c.Engine.Mode != ModeCommittable {
			invalid("at-most-once needs engine.mode committable")
		}
	case SemanticsExternalStore:
		if c.Engine.Mode != ModePlain {
			invalid("external-store needs engine.mode plain")
		}
		if hasTopics {
			invalid("external-store needs subscription.assign")
		}
	default:
		invalid("pipeline.semantics %q", c.Pipeline.Semantics)
	}
	if c.Pipeline.OnError != OnErrorFail && c.Pipeline.OnError != OnErrorSkip {
		invalid("pipeline.on_error %q (want %s or %s)", c.Pipeline.OnError, OnErrorFail, OnErrorSkip)
	}
	if c.Pipeline.MaxAttempts < 1 {
		invalid("pipeline.max_attempts must be at least 1")
	}
	if c.Pipeline.MaxPartitions < 1 {
		invalid("pipeline.max_partitions must be at least 1")
	}

	if c.Committer.MaxBatch < 1 {
		invalid("committer.max_batch must be at least 1")
	}
	if c.Supervisor.Jitter < 0 || c.Supervisor.Jitter > 1 {
		invalid("supervisor.jitter %v not in [0, 1]", c.Supervisor.Jitter)
	}
	if c.Supervisor.MaxBackoff < c.Supervisor.MinBackoff {
		invalid("supervisor.max_backoff is below supervisor.min_backoff")
	}
	if c.Supervisor.MaxRestarts < 0 {
		invalid("supervisor.max_restarts is negative")
	}

	return errors.Join(errs...)
}
