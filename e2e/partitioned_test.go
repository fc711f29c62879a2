//go:build e2e

package e2e

import (
	"context"
	"testing"
	"time"

	consumer "github.com/hugolhafner/go-consumer"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/pipeline"
	"github.com/hugolhafner/go-consumer/subscription"
	"github.com/stretchr/testify/assert"
)

// TestE2E_Partitioned_SlowPartitionDoesNotBlockOthers blocks partition 0 and
// verifies the other nine keep processing and committing.
func TestE2E_Partitioned_SlowPartitionDoesNotBlockOthers(t *testing.T) {
	broker := ensureContainer(t)

	topic := testTopicName(t, "input")
	groupID := testGroupID(t, "partitioned")

	createTopics(t, broker, 10, topic)
	for p := range int32(10) {
		produceToPartition(t, broker, topic, p, 3)
	}

	release := make(chan struct{})
	s := newSeen()

	app := consumer.NewApplication(
		kgoBrokers(broker, groupID),
		consumer.Static(subscription.Topics(topic)),
		consumer.Partitioned(
			func(ctx context.Context, r kafka.Record) error {
				if r.Partition == 0 {
					select {
					case <-release:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				s.add(r)
				return nil
			},
			pipeline.WithMaxPartitions(100),
			pipeline.WithHandlerTimeout(time.Minute),
		),
		consumer.WithEngineOptions(engineOptions(groupID, 1)...),
	)

	cancel, errCh := runApp(t, app)
	defer func() {
		cancel()
		waitForShutdown(t, errCh, shutdownWait)
	}()

	eventually(t, func() bool { return s.count() == 27 }, consumeWait, "unblocked partitions not consumed")
	eventually(
		t, func() bool {
			for p := int32(1); p < 10; p++ {
				if committedAt(t, broker, groupID, topic, p) != 3 {
					return false
				}
			}
			return true
		}, eventualWait, "unblocked partitions not committed",
	)
	assert.Empty(t, s.offsets(kafka.TopicPartition{Topic: topic, Partition: 0}))

	close(release)

	eventually(t, func() bool { return s.count() == 30 }, consumeWait, "slow partition not consumed")
	eventually(
		t, func() bool { return committedAt(t, broker, groupID, topic, 0) == 3 },
		eventualWait, "slow partition not committed",
	)
}
