//go:build e2e

package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	consumer "github.com/hugolhafner/go-consumer"
	"github.com/hugolhafner/go-consumer/committer"
	"github.com/hugolhafner/go-consumer/engine"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	startupWait  = 2 * time.Second
	shutdownWait = 10 * time.Second
	consumeWait  = 30 * time.Second
	eventualWait = 15 * time.Second
)

var (
	testContainer  *redpanda.Container
	bootstrapAddr  string
	containerOnce  sync.Once
	containerError error
)

func TestMain(m *testing.M) {
	code := m.Run()

	if testContainer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = testContainer.Terminate(ctx)
	}

	os.Exit(code)
}

func ensureContainer(t *testing.T) string {
	t.Helper()

	containerOnce.Do(
		func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			container, err := redpanda.Run(
				ctx,
				"docker.redpanda.com/redpandadata/redpanda:v24.2.1",
				redpanda.WithAutoCreateTopics(),
			)
			if err != nil {
				containerError = fmt.Errorf("failed to start redpanda container: %w", err)
				return
			}

			testContainer = container

			addr, err := container.KafkaSeedBroker(ctx)
			if err != nil {
				containerError = fmt.Errorf("failed to get kafka seed broker: %w", err)
				return
			}

			bootstrapAddr = addr
		},
	)

	require.NoError(t, containerError, "container initialization failed")
	require.NotEmpty(t, bootstrapAddr, "bootstrap address not set")

	return bootstrapAddr
}

func testTopicName(_ *testing.T, suffix string) string {
	return fmt.Sprintf("e2e-test-%s-%d", suffix, time.Now().UnixNano())
}

func testGroupID(t *testing.T, suffix string) string {
	return testTopicName(t, suffix+"-group")
}

func createTopics(t *testing.T, broker string, numPartitions int32, topics ...string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := kgo.NewClient(kgo.SeedBrokers(broker))
	require.NoError(t, err)
	defer client.Close()

	admin := kadm.NewClient(client)

	resp, err := admin.CreateTopics(ctx, numPartitions, 1, nil, topics...)
	require.NoError(t, err)

	for _, topic := range topics {
		topicResp, ok := resp[topic]
		require.True(t, ok, "topic %s not in response", topic)

		if topicResp.Err != nil && topicResp.Err.Error() != "TOPIC_ALREADY_EXISTS" {
			require.NoError(t, topicResp.Err, "failed to create topic %s", topic)
		}
	}

	t.Cleanup(
		func() {
			cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cleanupCancel()

			cleanupClient, err := kgo.NewClient(kgo.SeedBrokers(broker))
			if err != nil {
				return
			}
			defer cleanupClient.Close()

			cleanupAdmin := kadm.NewClient(cleanupClient)
			_, _ = cleanupAdmin.DeleteTopics(cleanupCtx, topics...)
		},
	)
}

func waitForShutdown(t *testing.T, errCh <-chan error, timeout time.Duration) {
	t.Helper()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			require.NoError(t, err)
		}
	case <-time.After(timeout):
		t.Fatal("timeout waiting for application shutdown")
	}
}

func waitForGroupMembers(t *testing.T, broker, groupID string, expectedCount int, timeout time.Duration) {
	t.Helper()

	eventually(
		t, func() bool {
			return getConsumerGroupMembers(t, broker, groupID) == expectedCount
		}, timeout, fmt.Sprintf("expected %d members in consumer group", expectedCount),
	)
}

// produceToPartition writes n records with keys key-0..key-n-1 to partition.
func produceToPartition(t *testing.T, broker, topic string, partition int32, n int) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := kgo.NewClient(kgo.SeedBrokers(broker), kgo.RecordPartitioner(kgo.ManualPartitioner()))
	require.NoError(t, err)
	defer client.Close()

	for i := range n {
		record := &kgo.Record{
			Topic:     topic,
			Partition: partition,
			Key:       []byte(fmt.Sprintf("key-%d", i)),
			Value:     []byte(fmt.Sprintf("value-%d", i)),
		}
		results := client.ProduceSync(ctx, record)
		require.NoError(t, results.FirstErr(), "failed to produce record %d", i)
	}
}

func newKgoBroker(t *testing.T, broker, groupID string) *kafka.KgoBroker {
	t.Helper()

	b, err := kgoBrokers(broker, groupID)(context.Background())
	require.NoError(t, err)
	return b.(*kafka.KgoBroker)
}

// kgoBrokers builds a new franz-go broker per application run.
func kgoBrokers(broker, groupID string) consumer.BrokerFactory {
	return func(context.Context) (kafka.Broker, error) {
		return kafka.NewKgoBroker(
			kafka.WithBootstrapServers(broker),
			kafka.WithGroupID(groupID),
			kafka.WithFetchMaxWait(100*time.Millisecond),
			kafka.WithSessionTimeout(6*time.Second),
			kafka.WithHeartbeatInterval(500*time.Millisecond),
		)
	}
}

// commitCounter wraps a broker and counts its successful commits.
type commitCounter struct {
	kafka.Broker

	mu      sync.Mutex
	commits int
}

func (c *commitCounter) Commit(ctx context.Context, positions map[kafka.TopicPartition]int64) error {
	if err := c.Broker.Commit(ctx, positions); err != nil {
		return err
	}

	c.mu.Lock()
	c.commits++
	c.mu.Unlock()
	return nil
}

func (c *commitCounter) Commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.commits
}

func engineOptions(groupID string, maxBatch int) []engine.Option {
	return []engine.Option{
		engine.WithGroupID(groupID),
		engine.WithFetchMaxWait(100 * time.Millisecond),
		engine.WithCommitterOptions(committer.WithMaxBatch(maxBatch), committer.WithMaxInterval(time.Second)),
	}
}

// seen records handled keys, safe for concurrent handlers.
type seen struct {
	mu   sync.Mutex
	keys map[kafka.TopicPartition][]int64
	n    int
}

func newSeen() *seen {
	return &seen{keys: make(map[kafka.TopicPartition][]int64)}
}

func (s *seen) add(r kafka.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tp := r.TopicPartition()
	s.keys[tp] = append(s.keys[tp], r.Offset)
	s.n++
}

func (s *seen) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.n
}

func (s *seen) offsets(tp kafka.TopicPartition) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]int64(nil), s.keys[tp]...)
}

func eventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}

		select {
		case <-ticker.C:
			if time.Now().After(deadline) {
				t.Fatalf("condition not met within %v: %s", timeout, msg)
			}
		}
	}
}

func getConsumerGroupMembers(t *testing.T, broker, groupID string) int {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := kgo.NewClient(kgo.SeedBrokers(broker))
	require.NoError(t, err)
	defer client.Close()

	admin := kadm.NewClient(client)

	groups, err := admin.DescribeGroups(ctx, groupID)
	if err != nil {
		return 0
	}

	group, ok := groups[groupID]
	if !ok {
		return 0
	}

	return len(group.Members)
}

func getCommittedOffsets(t *testing.T, broker, groupID string) map[string]map[int32]int64 {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := kgo.NewClient(kgo.SeedBrokers(broker))
	require.NoError(t, err)
	defer client.Close()

	admin := kadm.NewClient(client)

	offsets, err := admin.FetchOffsets(ctx, groupID)
	if err != nil {
		return nil
	}

	result := make(map[string]map[int32]int64)
	offsets.Each(
		func(o kadm.OffsetResponse) {
			if _, ok := result[o.Topic]; !ok {
				result[o.Topic] = make(map[int32]int64)
			}
			result[o.Topic][o.Partition] = o.Offset.At
		},
	)

	return result
}
