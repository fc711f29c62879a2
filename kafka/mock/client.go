package mockkafka

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
)

var (
	_ kafka.Broker   = (*Client)(nil)
	_ kafka.Producer = (*Client)(nil)
)

// Client is one consumer instance attached to a Cluster. It implements
// kafka.Broker and kafka.Producer.
type Client struct {
	cluster *Cluster
	groupID string

	mu         sync.Mutex
	topics     []string
	listener   kafka.RebalanceListener
	subscribed bool
	assigned   map[kafka.TopicPartition]struct{}
	produced   []kafka.Record
	closed     bool

	maxFetchRecords int
	fetchDelay      time.Duration

	fetchErr     func(tp kafka.TopicPartition, from int64) error
	commitErr    func(positions map[kafka.TopicPartition]int64) error
	committedErr func(tp kafka.TopicPartition) error
	listErr      func(tp kafka.TopicPartition) error
	produceErr   func(record kafka.Record) error

	fetchCalls  atomic.Int64
	commitCalls atomic.Int64
}

// NewClient creates a client in groupID. An empty group id gives a client
// that can only fetch explicit assignments and cannot commit.
func (c *Cluster) NewClient(groupID string, opts ...Option) *Client {
	cl := &Client{
		cluster:         c,
		groupID:         groupID,
		assigned:        make(map[kafka.TopicPartition]struct{}),
		maxFetchRecords: 10,
	}

	for _, opt := range opts {
		opt(cl)
	}

	return cl
}

func (c *Client) Fetch(
	ctx context.Context, tp kafka.TopicPartition, from int64, maxWait time.Duration,
) ([]kafka.Record, error) {
	c.fetchCalls.Add(1)

	c.mu.Lock()
	closed, subscribed := c.closed, c.subscribed
	_, owned := c.assigned[tp]
	fetchErr, delay, limit := c.fetchErr, c.fetchDelay, c.maxFetchRecords
	c.mu.Unlock()

	if closed {
		return nil, kafka.ErrClosed
	}

	if subscribed && !owned {
		return nil, kafka.ErrNotAssigned
	}

	if fetchErr != nil {
		if err := fetchErr(tp, from); err != nil {
			return nil, err
		}
	}

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	for {
		records, more, err := c.cluster.fetch(tp, from, limit)
		if err != nil {
			return nil, err
		}

		if len(records) > 0 {
			return records, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-more:
		}
	}
}

func (c *Client) Commit(ctx context.Context, positions map[kafka.TopicPartition]int64) error {
	c.commitCalls.Add(1)

	c.mu.Lock()
	closed, commitErr := c.closed, c.commitErr
	c.mu.Unlock()

	if closed {
		return kafka.ErrClosed
	}

	if c.groupID == "" {
		return kafka.ErrNoGroup
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if commitErr != nil {
		if err := commitErr(positions); err != nil {
			return err
		}
	}

	if len(positions) == 0 {
		return nil
	}

	c.cluster.commit(c.groupID, positions)
	return nil
}

func (c *Client) CommittedOffset(_ context.Context, tp kafka.TopicPartition) (int64, bool, error) {
	c.mu.Lock()
	hook := c.committedErr
	c.mu.Unlock()

	if hook != nil {
		if err := hook(tp); err != nil {
			return 0, false, err
		}
	}

	if c.groupID == "" {
		return 0, false, nil
	}

	pos, ok := c.cluster.Committed(c.groupID, tp)
	return pos, ok, nil
}

func (c *Client) ListOffset(_ context.Context, tp kafka.TopicPartition, reset kafka.OffsetReset) (int64, error) {
	c.mu.Lock()
	hook := c.listErr
	c.mu.Unlock()

	if hook != nil {
		if err := hook(tp); err != nil {
			return 0, err
		}
	}

	end, err := c.cluster.endOffset(tp)
	if err != nil {
		return 0, err
	}

	if reset == kafka.OffsetResetLatest {
		return end, nil
	}
	return 0, nil
}

// Subscribe joins the group. The join rebalances synchronously, so l has
// already seen this client's first assignment when Subscribe returns.
func (c *Client) Subscribe(topics []string, l kafka.RebalanceListener) error {
	if c.groupID == "" {
		return kafka.ErrNoGroup
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return kafka.ErrClosed
	}
	if c.subscribed {
		c.mu.Unlock()
		return kafka.ErrSubscribed
	}
	c.subscribed = true
	c.topics = slices.Clone(topics)
	c.listener = l
	c.mu.Unlock()

	c.cluster.join(c.groupID, c)
	return nil
}

func (c *Client) Assignment() []kafka.TopicPartition {
	c.mu.Lock()
	defer c.mu.Unlock()

	return kafka.SortTopicPartitions(slices.Collect(maps.Keys(c.assigned)))
}

func (c *Client) Produce(_ context.Context, record kafka.Record) error {
	c.mu.Lock()
	hook := c.produceErr
	c.mu.Unlock()

	if hook != nil {
		if err := hook(record); err != nil {
			return err
		}
	}

	if _, err := c.cluster.produce(record.Copy()); err != nil {
		return err
	}

	c.mu.Lock()
	c.produced = append(c.produced, record.Copy())
	c.mu.Unlock()
	return nil
}

// Close revokes this client's partitions, leaves the group and rebalances
// the remaining members.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	subscribed := c.subscribed
	c.mu.Unlock()

	if subscribed {
		c.revokeAll()
		c.cluster.leave(c.groupID, c)
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// TriggerAssign adds partitions to the assignment and notifies the listener,
// as if the group coordinator had handed them out.
func (c *Client) TriggerAssign(partitions ...kafka.TopicPartition) {
	c.assign(partitions)
}

// TriggerRevoke notifies the listener and removes partitions from the
// assignment.
func (c *Client) TriggerRevoke(partitions ...kafka.TopicPartition) {
	c.mu.Lock()
	l := c.listener
	var revoked []kafka.TopicPartition
	for _, tp := range partitions {
		if _, ok := c.assigned[tp]; ok {
			revoked = append(revoked, tp)
		}
	}
	c.mu.Unlock()

	if len(revoked) == 0 {
		return
	}

	kafka.SortTopicPartitions(revoked)
	if l != nil {
		l.OnRevoked(context.Background(), revoked)
	}

	c.mu.Lock()
	for _, tp := range revoked {
		delete(c.assigned, tp)
	}
	c.mu.Unlock()
}

func (c *Client) subscribedTopics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.topics)
}

// revokeAll calls the listener before dropping ownership, matching the
// broker clients where fetches for a revoking partition still succeed while
// the listener flushes.
func (c *Client) revokeAll() {
	c.mu.Lock()
	l := c.listener
	revoked := kafka.SortTopicPartitions(slices.Collect(maps.Keys(c.assigned)))
	c.mu.Unlock()

	if len(revoked) == 0 {
		return
	}

	if l != nil {
		l.OnRevoked(context.Background(), revoked)
	}

	c.mu.Lock()
	clear(c.assigned)
	c.mu.Unlock()
}

func (c *Client) assign(partitions []kafka.TopicPartition) {
	if len(partitions) == 0 {
		return
	}

	c.mu.Lock()
	l := c.listener
	for _, tp := range partitions {
		c.assigned[tp] = struct{}{}
	}
	c.mu.Unlock()

	if l != nil {
		l.OnAssigned(context.Background(), kafka.SortTopicPartitions(slices.Clone(partitions)))
	}
}

// GroupID returns the group this client commits for.
func (c *Client) GroupID() string {
	return c.groupID
}

// Subscriptions returns the topics passed to Subscribe.
func (c *Client) Subscriptions() []string {
	return c.subscribedTopics()
}

// ProducedRecords returns every record produced through this client.
func (c *Client) ProducedRecords() []kafka.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.produced)
}

// ProducedRecordsForTopic returns the records produced to topic.
func (c *Client) ProducedRecordsForTopic(topic string) []kafka.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []kafka.Record
	for _, r := range c.produced {
		if r.Topic == topic {
			out = append(out, r)
		}
	}
	return out
}

func (c *Client) FetchCalls() int64 {
	return c.fetchCalls.Load()
}

func (c *Client) CommitCalls() int64 {
	return c.commitCalls.Load()
}

func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// SetFetchErrorFunc installs a hook consulted before every Fetch. A nil
// return lets the fetch proceed.
func (c *Client) SetFetchErrorFunc(fn func(tp kafka.TopicPartition, from int64) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fetchErr = fn
}

// SetCommitErrorFunc installs a hook consulted before every Commit.
func (c *Client) SetCommitErrorFunc(fn func(positions map[kafka.TopicPartition]int64) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.commitErr = fn
}

func (c *Client) SetCommittedOffsetErrorFunc(fn func(tp kafka.TopicPartition) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.committedErr = fn
}

func (c *Client) SetListOffsetErrorFunc(fn func(tp kafka.TopicPartition) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listErr = fn
}

func (c *Client) SetProduceErrorFunc(fn func(record kafka.Record) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.produceErr = fn
}

// FailCommits makes the next n Commit calls return err.
func (c *Client) FailCommits(n int, err error) {
	var remaining atomic.Int64
	remaining.Store(int64(n))

	c.SetCommitErrorFunc(func(map[kafka.TopicPartition]int64) error {
		if remaining.Add(-1) >= 0 {
			return err
		}
		return nil
	})
}

// FailFetches makes the next n Fetch calls return err.
func (c *Client) FailFetches(n int, err error) {
	var remaining atomic.Int64
	remaining.Store(int64(n))

	c.SetFetchErrorFunc(func(kafka.TopicPartition, int64) error {
		if remaining.Add(-1) >= 0 {
			return err
		}
		return nil
	})
}
