//go:build unit

package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hugolhafner/go-consumer/committer"
	"github.com/hugolhafner/go-consumer/engine"
	"github.com/hugolhafner/go-consumer/kafka"
	mockkafka "github.com/hugolhafner/go-consumer/kafka/mock"
	"github.com/hugolhafner/go-consumer/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.log = append(e.log, s)
}

func (e *events) get() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]string(nil), e.log...)
}

func TestRebalance_ListenerRunsBeforeRevokeFlush(t *testing.T) {
	t.Parallel()

	cluster, client := setup(t)
	cluster.Append("orders", 0, mockkafka.NumberedRecords(3)...)

	var ev events
	client.SetCommitErrorFunc(
		func(map[kafka.TopicPartition]int64) error {
			ev.add("commit")
			return nil
		},
	)

	sub := subscription.Topics("orders").WithListener(
		kafka.RebalanceListenerFuncs{
			Revoked: func(context.Context, []kafka.TopicPartition) { ev.add("listener") },
		},
	)

	e := engine.NewCommittable(
		client, sub,
		fastOptions(engine.WithCommitterOptions(committer.WithMaxBatch(1000), committer.WithMaxInterval(time.Hour)))...,
	)
	h, err := e.Start(context.Background())
	require.NoError(t, err)
	defer func() { _ = h.Shutdown(context.Background()) }()

	for range 3 {
		m := <-e.Messages()
		require.NoError(t, m.Committable.Stage(context.Background()))
	}

	client.TriggerRevoke(tp0)

	assert.Equal(t, []string{"listener", "commit"}, ev.get())
	cluster.AssertCommitted(t, group, tp0, 3)
	assert.Equal(t, []kafka.TopicPartition{tp1}, e.Assignment())
}

func TestRebalance_StagingRevokedPartitionIsDropped(t *testing.T) {
	t.Parallel()

	cluster, client := setup(t)
	cluster.Append("orders", 0, mockkafka.NumberedRecords(1)...)

	e := engine.NewCommittable(
		client, subscription.Topics("orders"),
		fastOptions(engine.WithCommitterOptions(committer.WithMaxBatch(1)))...,
	)
	h, err := e.Start(context.Background())
	require.NoError(t, err)

	m := <-e.Messages()
	client.TriggerRevoke(tp0)

	require.NoError(t, m.Committable.Stage(context.Background()))
	cluster.AssertNotCommitted(t, group, tp0)

	require.NoError(t, h.Shutdown(context.Background()))
	cluster.AssertNotCommitted(t, group, tp0)
}

func TestRebalance_ReassignResumesFromCommitted(t *testing.T) {
	t.Parallel()

	cluster, client := setup(t)
	cluster.Append("orders", 0, mockkafka.NumberedRecords(5)...)

	var assigned events
	sub := subscription.Topics("orders").WithListener(
		kafka.RebalanceListenerFuncs{
			Assigned: func(_ context.Context, tps []kafka.TopicPartition) { assigned.add(tps[0].String()) },
		},
	)

	e := engine.NewCommittable(
		client, sub,
		fastOptions(engine.WithCommitterOptions(committer.WithMaxBatch(1)))...,
	)
	h, err := e.Start(context.Background())
	require.NoError(t, err)

	var offsets []int64
	for range 5 {
		m := <-e.Messages()
		require.NoError(t, m.Committable.Stage(context.Background()))
		offsets = append(offsets, m.Record.Offset)
	}
	cluster.AssertCommitted(t, group, tp0, 5)

	cluster.Rebalance(group)
	assert.Equal(t, []string{"orders-0", "orders-0"}, assigned.get())

	cluster.Append("orders", 0, mockkafka.NumberedRecords(2)...)
	for range 2 {
		select {
		case m := <-e.Messages():
			require.NoError(t, m.Committable.Stage(context.Background()))
			offsets = append(offsets, m.Record.Offset)
		case <-time.After(time.Second):
			t.Fatal("no record after reassignment")
		}
	}

	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6}, offsets)

	_, err = h.DrainAndShutdown(context.Background())
	require.NoError(t, err)
	cluster.AssertCommitted(t, group, tp0, 7)
	cluster.AssertCommitsMonotonic(t, group)
}

func TestRebalance_PartitionStreamClosesOnRevoke(t *testing.T) {
	t.Parallel()

	_, client := setup(t)

	e := engine.NewPartitioned(client, subscription.Topics("orders"), fastOptions()...)
	h, err := e.Start(context.Background())
	require.NoError(t, err)
	defer func() { _ = h.Shutdown(context.Background()) }()

	streams := make(map[kafka.TopicPartition]*engine.PartitionStream)
	for range 2 {
		ps := <-e.Partitions()
		streams[ps.TopicPartition()] = ps
	}

	client.TriggerRevoke(tp1)

	_, ok, err := streams[tp1].Poll(context.Background(), time.Second)
	require.ErrorIs(t, err, engine.ErrSourceClosed)
	assert.False(t, ok)

	_, ok, err = streams[tp0].Poll(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	client.TriggerAssign(tp1)

	select {
	case ps := <-e.Partitions():
		assert.Equal(t, tp1, ps.TopicPartition())
		assert.NotSame(t, streams[tp1], ps)
	case <-time.After(time.Second):
		t.Fatal("reassigned partition not emitted")
	}
}

func TestRebalance_ExplicitAssignmentReleasesOnClose(t *testing.T) {
	t.Parallel()

	cluster, client := setup(t)
	cluster.Append("orders", 1, mockkafka.NumberedRecords(2)...)

	e := engine.NewPlain(client, subscription.Assignment(tp1), fastOptions()...)
	h, err := e.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []kafka.TopicPartition{tp1}, e.Assignment())
	r := <-e.Records()
	assert.Equal(t, tp1, r.TopicPartition())

	require.NoError(t, h.Shutdown(context.Background()))
	assert.True(t, client.IsClosed())
}
