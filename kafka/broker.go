package kafka

import (
	"context"
	"time"
)

// Broker is the narrow contract the consumer core needs from a Kafka client.
// Offsets passed to Commit are positions, the offset of the next record to
// read, which is one past the last processed record.
type Broker interface {
	// Fetch returns records of tp starting at from, waiting up to maxWait when
	// none are available. An empty result with a nil error means no data yet.
	Fetch(ctx context.Context, tp TopicPartition, from int64, maxWait time.Duration) ([]Record, error)

	// Commit durably stores positions in the broker's offset store.
	Commit(ctx context.Context, positions map[TopicPartition]int64) error

	// CommittedOffset returns the committed position for tp, false when the
	// group has never committed for it.
	CommittedOffset(ctx context.Context, tp TopicPartition) (int64, bool, error)

	// ListOffset resolves the earliest or latest available offset of tp.
	ListOffset(ctx context.Context, tp TopicPartition, reset OffsetReset) (int64, error)

	// Subscribe joins the group for topics. l is invoked synchronously on
	// every assignment change and must return before the change proceeds.
	Subscribe(topics []string, l RebalanceListener) error

	// Assignment lists the partitions currently owned by this instance.
	Assignment() []TopicPartition

	Close()
}

// Producer writes records, used for dead-letter routing.
type Producer interface {
	Produce(ctx context.Context, record Record) error
}

type RebalanceListener interface {
	OnAssigned(ctx context.Context, partitions []TopicPartition)
	OnRevoked(ctx context.Context, partitions []TopicPartition)
}

// RebalanceListenerFuncs adapts plain functions to a RebalanceListener. Nil
// fields are skipped.
type RebalanceListenerFuncs struct {
	Assigned func(ctx context.Context, partitions []TopicPartition)
	Revoked  func(ctx context.Context, partitions []TopicPartition)
}

var _ RebalanceListener = RebalanceListenerFuncs{}

func (f RebalanceListenerFuncs) OnAssigned(ctx context.Context, partitions []TopicPartition) {
	if f.Assigned != nil {
		f.Assigned(ctx, partitions)
	}
}

func (f RebalanceListenerFuncs) OnRevoked(ctx context.Context, partitions []TopicPartition) {
	if f.Revoked != nil {
		f.Revoked(ctx, partitions)
	}
}
