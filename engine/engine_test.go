//go:build unit

package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-consumer/committer"
	"github.com/hugolhafner/go-consumer/control"
	"github.com/hugolhafner/go-consumer/engine"
	"github.com/hugolhafner/go-consumer/kafka"
	mockkafka "github.com/hugolhafner/go-consumer/kafka/mock"
	"github.com/hugolhafner/go-consumer/offset"
	"github.com/hugolhafner/go-consumer/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const group = "group"

var (
	tp0 = kafka.TopicPartition{Topic: "orders", Partition: 0}
	tp1 = kafka.TopicPartition{Topic: "orders", Partition: 1}
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setup(t *testing.T) (*mockkafka.Cluster, *mockkafka.Client) {
	t.Helper()

	cluster := mockkafka.NewCluster()
	cluster.CreateTopic("orders", 2)
	return cluster, cluster.NewClient(group)
}

func fastOptions(opts ...engine.Option) []engine.Option {
	return append(
		[]engine.Option{
			engine.WithFetchMaxWait(10 * time.Millisecond),
			engine.WithFetchRetries(3, backoff.NewFixed(time.Millisecond)),
		},
		opts...,
	)
}

// stageAll stages every message and returns how many it saw once the
// channel closes.
func stageAll(e *engine.Engine, seen chan<- engine.Message) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		var n int
		for m := range e.Messages() {
			if err := m.Committable.Stage(ctx); err != nil {
				return n, err
			}
			n++
			if seen != nil {
				seen <- m
			}
		}
		return n, nil
	}
}

func TestEngine_CommittableDrainCommitsEverything(t *testing.T) {
	t.Parallel()

	cluster, client := setup(t)
	cluster.Append("orders", 0, mockkafka.NumberedRecords(10)...)

	e := engine.NewCommittable(
		client,
		subscription.Assignment(tp0),
		fastOptions(engine.WithCommitterOptions(committer.WithMaxBatch(1)))...,
	)

	h, err := e.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Go("pipeline", stageAll(e, nil)))

	require.Eventually(
		t, func() bool {
			pos, ok := cluster.Committed(group, tp0)
			return ok && pos == 10
		}, time.Second, 5*time.Millisecond,
	)

	res, err := h.DrainAndShutdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, res)

	cluster.AssertCommitCount(t, group, 10)
	cluster.AssertCommitsMonotonic(t, group)
	client.AssertClosed(t)
}

func TestEngine_DrainFlushesStagedOffsets(t *testing.T) {
	t.Parallel()

	cluster, client := setup(t)
	cluster.Append("orders", 0, mockkafka.NumberedRecords(4)...)
	cluster.Append("orders", 1, mockkafka.NumberedRecords(3)...)

	e := engine.NewCommittable(
		client,
		subscription.Assignment(tp0, tp1),
		fastOptions(engine.WithCommitterOptions(committer.WithMaxBatch(1000), committer.WithMaxInterval(time.Hour)))...,
	)

	h, err := e.Start(context.Background())
	require.NoError(t, err)

	seen := make(chan engine.Message, 16)
	require.NoError(t, h.Go("pipeline", stageAll(e, seen)))

	for range 7 {
		<-seen
	}
	cluster.AssertCommitCount(t, group, 0)

	res, err := h.DrainAndShutdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, res)

	cluster.AssertCommitted(t, group, tp0, 4)
	cluster.AssertCommitted(t, group, tp1, 3)
}

func TestEngine_PlainDeliversInPartitionOrder(t *testing.T) {
	t.Parallel()

	cluster, client := setup(t)
	cluster.Append("orders", 0, mockkafka.NumberedRecords(5)...)
	cluster.Append("orders", 1, mockkafka.NumberedRecords(5)...)

	e := engine.NewPlain(client, subscription.Assignment(tp0, tp1), fastOptions()...)
	assert.Nil(t, e.Messages())
	assert.Nil(t, e.Partitions())

	h, err := e.Start(context.Background())
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		offsets = make(map[kafka.TopicPartition][]int64)
		total   int
	)
	require.NoError(
		t, h.Go(
			"pipeline", func(ctx context.Context) (any, error) {
				for r := range e.Records() {
					mu.Lock()
					offsets[r.TopicPartition()] = append(offsets[r.TopicPartition()], r.Offset)
					total++
					mu.Unlock()
				}
				return nil, nil
			},
		),
	)

	require.Eventually(
		t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return total == 10
		}, time.Second, 5*time.Millisecond,
	)

	_, err = h.DrainAndShutdown(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 1, 2, 3, 4}, offsets[tp0])
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, offsets[tp1])
	cluster.AssertCommitCount(t, group, 0)
}

func TestEngine_PartitionedStreamsCommitIndependently(t *testing.T) {
	t.Parallel()

	cluster, client := setup(t)
	cluster.Append("orders", 0, mockkafka.NumberedRecords(5)...)
	cluster.Append("orders", 1, mockkafka.NumberedRecords(3)...)

	e := engine.NewPartitioned(
		client,
		subscription.Topics("orders"),
		fastOptions(engine.WithCommitterOptions(committer.WithMaxBatch(1)))...,
	)

	h, err := e.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []kafka.TopicPartition{tp0, tp1}, e.Assignment())

	require.NoError(
		t, h.Go(
			"pipeline", func(ctx context.Context) (any, error) {
				var wg sync.WaitGroup
				for ps := range e.Partitions() {
					assert.NotNil(t, ps.Committer())
					wg.Add(1)
					go func() {
						defer wg.Done()
						for m := range ps.Messages() {
							assert.Equal(t, ps.TopicPartition(), m.Record.TopicPartition())
							_ = m.Committable.Stage(ctx)
						}
					}()
				}
				wg.Wait()
				return nil, nil
			},
		),
	)

	require.Eventually(
		t, func() bool {
			p0, ok0 := cluster.Committed(group, tp0)
			p1, ok1 := cluster.Committed(group, tp1)
			return ok0 && ok1 && p0 == 5 && p1 == 3
		}, time.Second, 5*time.Millisecond,
	)

	_, err = h.DrainAndShutdown(context.Background())
	require.NoError(t, err)
	cluster.AssertCommitsMonotonic(t, group)
}

func TestEngine_StartTwice(t *testing.T) {
	t.Parallel()

	_, client := setup(t)
	e := engine.NewPlain(client, subscription.Assignment(tp0), fastOptions()...)

	h, err := e.Start(context.Background())
	require.NoError(t, err)
	defer func() { _ = h.Shutdown(context.Background()) }()

	_, err = e.Start(context.Background())
	require.ErrorIs(t, err, engine.ErrAlreadyStarted)
}

func TestEngine_NewCommitterBeforeStart(t *testing.T) {
	t.Parallel()

	_, client := setup(t)
	e := engine.NewCommittable(client, subscription.Assignment(tp0))

	_, err := e.NewCommitter()
	require.ErrorIs(t, err, engine.ErrNotStarted)
}

func TestEngine_NewCommitterIsFlushedOnDrain(t *testing.T) {
	t.Parallel()

	cluster, client := setup(t)
	cluster.Append("orders", 0, mockkafka.NumberedRecords(3)...)

	e := engine.NewPlain(client, subscription.Assignment(tp0), fastOptions()...)
	h, err := e.Start(context.Background())
	require.NoError(t, err)

	c, err := e.NewCommitter(committer.WithMaxBatch(1000), committer.WithMaxInterval(time.Hour))
	require.NoError(t, err)

	done := make(chan struct{})
	require.NoError(
		t, h.Go(
			"pipeline", func(ctx context.Context) (any, error) {
				var n int
				for r := range e.Records() {
					if err := c.Add(ctx, offset.ForRecord(r, c)); err != nil {
						return nil, err
					}
					n++
					if n == 3 {
						close(done)
					}
				}
				return n, nil
			},
		),
	)

	<-done
	cluster.AssertCommitCount(t, group, 0)

	res, err := h.DrainAndShutdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res)
	cluster.AssertCommitted(t, group, tp0, 3)
}

func TestEngine_InvalidSubscription(t *testing.T) {
	t.Parallel()

	_, client := setup(t)
	e := engine.NewPlain(client, subscription.Topics())

	_, err := e.Start(context.Background())
	require.ErrorIs(t, err, subscription.ErrNoTopics)
}

func TestEngine_StartOffsets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		sub   func() subscription.Subscription
		prep  func(*mockkafka.Cluster)
		reset kafka.OffsetReset
		want  int64
	}{
		{
			name:  "committed position",
			sub:   func() subscription.Subscription { return subscription.Assignment(tp0) },
			prep:  func(c *mockkafka.Cluster) { c.SetCommitted(group, tp0, 3) },
			reset: kafka.OffsetResetEarliest,
			want:  3,
		},
		{
			name: "explicit offset wins over committed",
			sub: func() subscription.Subscription {
				return subscription.AssignmentWithOffsets(map[kafka.TopicPartition]int64{tp0: 5})
			},
			prep:  func(c *mockkafka.Cluster) { c.SetCommitted(group, tp0, 2) },
			reset: kafka.OffsetResetEarliest,
			want:  5,
		},
		{
			name:  "earliest without commit",
			sub:   func() subscription.Subscription { return subscription.Assignment(tp0) },
			prep:  func(*mockkafka.Cluster) {},
			reset: kafka.OffsetResetEarliest,
			want:  0,
		},
		{
			name:  "latest without commit",
			sub:   func() subscription.Subscription { return subscription.Assignment(tp0) },
			prep:  func(*mockkafka.Cluster) {},
			reset: kafka.OffsetResetLatest,
			want:  8,
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()

				cluster, client := setup(t)
				cluster.Append("orders", 0, mockkafka.NumberedRecords(8)...)
				tt.prep(cluster)

				e := engine.NewPlain(client, tt.sub(), fastOptions(engine.WithOffsetReset(tt.reset))...)
				h, err := e.Start(context.Background())
				require.NoError(t, err)

				// latest only sees what arrives after the start
				cluster.Append("orders", 0, mockkafka.NumberedRecords(1)...)

				select {
				case r := <-e.Records():
					assert.Equal(t, tt.want, r.Offset)
				case <-time.After(time.Second):
					t.Fatal("no record delivered")
				}

				require.NoError(t, h.Shutdown(context.Background()))
			},
		)
	}
}

func TestEngine_ParentCancelDrains(t *testing.T) {
	t.Parallel()

	cluster, client := setup(t)
	cluster.Append("orders", 0, mockkafka.NumberedRecords(2)...)

	ctx, cancel := context.WithCancel(context.Background())
	e := engine.NewCommittable(
		client,
		subscription.Assignment(tp0),
		fastOptions(engine.WithCommitterOptions(committer.WithMaxBatch(1000)))...,
	)

	h, err := e.Start(ctx)
	require.NoError(t, err)

	seen := make(chan engine.Message, 2)
	require.NoError(t, h.Go("pipeline", stageAll(e, seen)))
	<-seen
	<-seen

	cancel()

	res, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res)
	cluster.AssertCommitted(t, group, tp0, 2)
}

func TestEngine_DrainTimeoutStillFlushesStagedOffsets(t *testing.T) {
	t.Parallel()

	const stopTimeout = 200 * time.Millisecond

	cluster, client := setup(t)
	cluster.Append("orders", 0, mockkafka.NumberedRecords(5)...)

	e := engine.NewCommittable(
		client,
		subscription.Assignment(tp0),
		fastOptions(
			engine.WithControlOptions(control.WithStopTimeout(stopTimeout)),
			engine.WithCommitterOptions(committer.WithMaxBatch(1000), committer.WithMaxInterval(time.Hour)),
		)...,
	)
	h, err := e.Start(context.Background())
	require.NoError(t, err)

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	staged := make(chan struct{})
	require.NoError(
		t, h.Go(
			"stuck-after-three", func(ctx context.Context) (any, error) {
				for range 3 {
					m := <-e.Messages()
					if err := m.Committable.Stage(ctx); err != nil {
						return nil, err
					}
				}
				close(staged)
				<-release
				return nil, nil
			},
		),
	)

	<-staged
	cluster.AssertNotCommitted(t, group, tp0)

	start := time.Now()
	_, err = h.DrainAndShutdown(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*stopTimeout)

	cluster.AssertCommitted(t, group, tp0, 3)
}

func TestEngine_ShutdownDropsUnflushedWork(t *testing.T) {
	t.Parallel()

	cluster, client := setup(t)
	cluster.Append("orders", 0, mockkafka.NumberedRecords(3)...)

	e := engine.NewCommittable(client, subscription.Assignment(tp0), fastOptions()...)
	h, err := e.Start(context.Background())
	require.NoError(t, err)

	// a stage that never reads blocks delivery until the hard stop
	require.NoError(
		t, h.Go(
			"stuck", func(ctx context.Context) (any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		),
	)

	require.NoError(t, h.Shutdown(context.Background()))
	assert.True(t, h.IsShutdown())
	cluster.AssertNotCommitted(t, group, tp0)

	// the channel is closed once forwarders observe the stop
	for range e.Messages() {
	}
}
