package mockkafka

import (
	"bytes"
	"testing"

	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/stretchr/testify/require"
)

// AssertProducedCount verifies that exactly n records were produced.
func (c *Client) AssertProducedCount(tb testing.TB, expected int) {
	tb.Helper()

	actual := len(c.ProducedRecords())
	require.Equal(tb, expected, actual, "expected %d records, got %d", expected, actual)
}

// AssertProduced verifies that a record with the given key and value was produced to the topic.
func (c *Client) AssertProduced(tb testing.TB, topic string, key, value []byte) {
	tb.Helper()

	for _, r := range c.ProducedRecordsForTopic(topic) {
		if bytes.Equal(r.Key, key) && bytes.Equal(r.Value, value) {
			return
		}
	}

	tb.Errorf(
		"expected record with key=%q value=%q to be produced to topic %q, but it was not found",
		string(key), string(value), topic,
	)
}

// AssertProducedString is a convenience method for string keys and values.
func (c *Client) AssertProducedString(tb testing.TB, topic, key, value string) {
	tb.Helper()
	c.AssertProduced(tb, topic, []byte(key), []byte(value))
}

// AssertHeader verifies that a produced record has a specific header.
func (c *Client) AssertHeader(tb testing.TB, topic string, key []byte, headerKey string, headerValue []byte) {
	tb.Helper()

	for _, r := range c.ProducedRecordsForTopic(topic) {
		if bytes.Equal(r.Key, key) {
			actual, ok := kafka.HeaderValue(r.Headers, headerKey)
			require.True(tb, ok, "record with key=%q missing header %q", string(key), headerKey)
			require.Equal(
				tb, string(headerValue), string(actual), "record with key=%q has unexpected header %q",
				string(key), headerKey,
			)
			return
		}
	}

	tb.Errorf("no record with key=%q found in topic %q", string(key), topic)
}

// AssertAssigned verifies that the given partitions are currently assigned.
func (c *Client) AssertAssigned(tb testing.TB, partitions ...kafka.TopicPartition) {
	tb.Helper()

	assigned := make(map[kafka.TopicPartition]bool)
	for _, p := range c.Assignment() {
		assigned[p] = true
	}

	for _, p := range partitions {
		if !assigned[p] {
			tb.Errorf("expected partition %s to be assigned, but it is not", p)
		}
	}
}

// AssertClosed verifies that Close() was called.
func (c *Client) AssertClosed(tb testing.TB) {
	tb.Helper()

	require.True(tb, c.IsClosed(), "expected client to be closed")
}

// AssertCommitted verifies the group's committed position for tp. The
// position is the next offset to read, one past the last processed record.
func (c *Cluster) AssertCommitted(tb testing.TB, groupID string, tp kafka.TopicPartition, position int64) {
	tb.Helper()

	actual, ok := c.Committed(groupID, tp)
	require.True(tb, ok, "expected position %d to be committed for %s, but none found", position, tp)
	require.Equal(tb, position, actual, "unexpected committed position for %s", tp)
}

// AssertNotCommitted verifies that groupID never committed for tp.
func (c *Cluster) AssertNotCommitted(tb testing.TB, groupID string, tp kafka.TopicPartition) {
	tb.Helper()

	actual, ok := c.Committed(groupID, tp)
	require.False(tb, ok, "expected no commit for %s, got position %d", tp, actual)
}

// AssertCommitCount verifies the number of successful commits for groupID.
func (c *Cluster) AssertCommitCount(tb testing.TB, groupID string, expected int) {
	tb.Helper()

	actual := len(c.CommitHistory(groupID))
	require.Equal(tb, expected, actual, "expected %d commits for group %q, got %d", expected, groupID, actual)
}

// AssertCommitsMonotonic verifies that no commit for groupID moved a
// partition's position backwards.
func (c *Cluster) AssertCommitsMonotonic(tb testing.TB, groupID string) {
	tb.Helper()

	last := make(map[kafka.TopicPartition]int64)
	for i, commit := range c.CommitHistory(groupID) {
		for tp, pos := range commit {
			if prev, ok := last[tp]; ok && pos < prev {
				tb.Errorf("commit %d moved %s back from %d to %d", i, tp, prev, pos)
			}
			last[tp] = pos
		}
	}
}
