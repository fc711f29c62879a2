package engine

import (
	"context"
	"time"

	"github.com/hugolhafner/go-consumer/committer"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/offset"
)

// Message is a delivered record with its commit token. Key and Value hold
// the decoded forms when a decoder is configured, otherwise the raw bytes.
type Message struct {
	Record      kafka.Record
	Key         any
	Value       any
	Committable offset.Committable
}

// PartitionStream is the record sequence of one assigned partition in
// partitioned mode. Its channel is closed when the partition is revoked or
// the engine stops.
type PartitionStream struct {
	tp        kafka.TopicPartition
	src       *source
	committer *committer.Committer
}

func (s *PartitionStream) TopicPartition() kafka.TopicPartition {
	return s.tp
}

func (s *PartitionStream) Messages() <-chan Message {
	return s.src.out
}

// Poll waits up to timeout for the next message. It returns false with a nil
// error on timeout and ErrSourceClosed once the stream has ended.
func (s *PartitionStream) Poll(ctx context.Context, timeout time.Duration) (Message, bool, error) {
	return s.src.Poll(ctx, timeout)
}

// Committer is the committer scoped to this partition. It is flushed and
// closed when the partition is revoked.
func (s *PartitionStream) Committer() *committer.Committer {
	return s.committer
}
