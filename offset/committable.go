package offset

import (
	"context"
	"errors"
	"fmt"

	"github.com/hugolhafner/go-consumer/kafka"
)

var ErrNoCommitter = errors.New("offset: committable has no committer")

// Sink accepts committables and persists them. committer.Committer is the
// implementation used by the engine.
type Sink interface {
	Add(ctx context.Context, c Committable) error
	Flush(ctx context.Context) error
}

// Committable is a token for one processed record. Committing it stores
// Offset+1 as the partition's position. An offset N supersedes every earlier
// offset of the same partition.
type Committable struct {
	TopicPartition kafka.TopicPartition
	Offset         int64

	sink Sink
}

func NewCommittable(tp kafka.TopicPartition, offset int64, sink Sink) Committable {
	return Committable{TopicPartition: tp, Offset: offset, sink: sink}
}

// ForRecord returns the committable for r bound to sink.
func ForRecord(r kafka.Record, sink Sink) Committable {
	return NewCommittable(r.TopicPartition(), r.Offset, sink)
}

// Position is the broker commit value, the next offset to read.
func (c Committable) Position() int64 {
	return c.Offset + 1
}

// Commit hands the offset to its committer and forces a flush.
func (c Committable) Commit(ctx context.Context) error {
	if c.sink == nil {
		return ErrNoCommitter
	}

	if err := c.sink.Add(ctx, c); err != nil {
		return err
	}

	return c.sink.Flush(ctx)
}

// Stage adds the offset to its committer's batch without forcing a flush.
func (c Committable) Stage(ctx context.Context) error {
	if c.sink == nil {
		return ErrNoCommitter
	}

	return c.sink.Add(ctx, c)
}

func (c Committable) String() string {
	return fmt.Sprintf("%s@%d", c.TopicPartition, c.Offset)
}
