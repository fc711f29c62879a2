package mockkafka

import (
	"fmt"
	"hash/fnv"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
)

// Cluster is an in-memory stand-in for a Kafka cluster: partitioned topic
// logs, per-group committed positions, and eager round-robin rebalancing of
// the partitions of subscribed topics across group members.
type Cluster struct {
	mu sync.Mutex

	topics map[string][][]kafka.Record
	groups map[string]*group

	// appended is closed and replaced whenever a record is appended so
	// blocked fetches can wake up.
	appended chan struct{}
}

type group struct {
	committed  map[kafka.TopicPartition]int64
	history    []map[kafka.TopicPartition]int64
	members    []*Client
	generation int
}

func NewCluster() *Cluster {
	return &Cluster{
		topics:   make(map[string][][]kafka.Record),
		groups:   make(map[string]*group),
		appended: make(chan struct{}),
	}
}

// CreateTopic creates topic with n partitions. Existing topics are left as is.
func (c *Cluster) CreateTopic(topic string, partitions int32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.topics[topic]; ok {
		return
	}

	c.topics[topic] = make([][]kafka.Record, partitions)
}

// Partitions lists the partitions of topic.
func (c *Cluster) Partitions(topic string) []kafka.TopicPartition {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.partitionsLocked(topic)
}

func (c *Cluster) partitionsLocked(topic string) []kafka.TopicPartition {
	logs := c.topics[topic]
	tps := make([]kafka.TopicPartition, len(logs))
	for i := range logs {
		tps[i] = kafka.TopicPartition{Topic: topic, Partition: int32(i)}
	}
	return tps
}

// Append adds records to topic/partition, assigning consecutive offsets,
// and returns the offset of the last record. The topic is created with
// partition+1 partitions if missing.
func (c *Cluster) Append(topic string, partition int32, records ...kafka.Record) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.appendLocked(topic, partition, records...)
}

func (c *Cluster) appendLocked(topic string, partition int32, records ...kafka.Record) int64 {
	logs := c.topics[topic]
	for int32(len(logs)) <= partition {
		logs = append(logs, nil)
	}

	log := logs[partition]
	for _, r := range records {
		r.Topic = topic
		r.Partition = partition
		r.Offset = int64(len(log))
		if r.Timestamp.IsZero() {
			r.Timestamp = time.Now()
		}
		log = append(log, r)
	}
	logs[partition] = log
	c.topics[topic] = logs

	close(c.appended)
	c.appended = make(chan struct{})

	return int64(len(log)) - 1
}

// AppendStrings appends key/value string pairs to topic/partition.
func (c *Cluster) AppendStrings(topic string, partition int32, keyValuePairs ...string) int64 {
	return c.Append(topic, partition, SimpleRecords(keyValuePairs...)...)
}

// Records returns a copy of the log of topic/partition.
func (c *Cluster) Records(topic string, partition int32) []kafka.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	logs := c.topics[topic]
	if int(partition) >= len(logs) {
		return nil
	}
	return slices.Clone(logs[partition])
}

// Committed returns the position committed by groupID for tp.
func (c *Cluster) Committed(groupID string, tp kafka.TopicPartition) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.groups[groupID]
	if !ok {
		return 0, false
	}

	pos, ok := g.committed[tp]
	return pos, ok
}

// SetCommitted seeds a committed position for groupID.
func (c *Cluster) SetCommitted(groupID string, tp kafka.TopicPartition, position int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.groupLocked(groupID).committed[tp] = position
}

// CommitHistory returns every successful commit for groupID in order.
func (c *Cluster) CommitHistory(groupID string) []map[kafka.TopicPartition]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.groups[groupID]
	if !ok {
		return nil
	}

	out := make([]map[kafka.TopicPartition]int64, len(g.history))
	for i, h := range g.history {
		out[i] = maps.Clone(h)
	}
	return out
}

// Generation returns how many rebalances groupID has gone through.
func (c *Cluster) Generation(groupID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if g, ok := c.groups[groupID]; ok {
		return g.generation
	}
	return 0
}

func (c *Cluster) groupLocked(groupID string) *group {
	g, ok := c.groups[groupID]
	if !ok {
		g = &group{committed: make(map[kafka.TopicPartition]int64)}
		c.groups[groupID] = g
	}
	return g
}

func (c *Cluster) commit(groupID string, positions map[kafka.TopicPartition]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.groupLocked(groupID)
	for tp, pos := range positions {
		g.committed[tp] = pos
	}
	g.history = append(g.history, maps.Clone(positions))
}

func (c *Cluster) produce(record kafka.Record) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logs, ok := c.topics[record.Topic]
	if !ok || len(logs) == 0 {
		logs = make([][]kafka.Record, 1)
		c.topics[record.Topic] = logs
	}

	partition := int32(0)
	if len(record.Key) > 0 {
		h := fnv.New32a()
		_, _ = h.Write(record.Key)
		partition = int32(h.Sum32() % uint32(len(logs)))
	}

	return c.appendLocked(record.Topic, partition, record), nil
}

// fetch returns up to max records of tp starting at from, plus a channel
// that is closed when more data arrives.
func (c *Cluster) fetch(tp kafka.TopicPartition, from int64, max int) ([]kafka.Record, <-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logs, ok := c.topics[tp.Topic]
	if !ok || int(tp.Partition) >= len(logs) {
		return nil, nil, fmt.Errorf("fetch %s: unknown topic or partition", tp)
	}

	log := logs[tp.Partition]
	if from < 0 || from > int64(len(log)) {
		return nil, nil, fmt.Errorf("fetch %s: offset %d out of range [0, %d]", tp, from, len(log))
	}

	end := min(int64(len(log)), from+int64(max))
	return slices.Clone(log[from:end]), c.appended, nil
}

func (c *Cluster) endOffset(tp kafka.TopicPartition) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logs, ok := c.topics[tp.Topic]
	if !ok || int(tp.Partition) >= len(logs) {
		return 0, fmt.Errorf("list offsets %s: unknown topic or partition", tp)
	}

	return int64(len(logs[tp.Partition])), nil
}

type rebalanceStep struct {
	client     *Client
	assignment []kafka.TopicPartition
}

// join adds m to groupID and rebalances. Listener callbacks run after the
// cluster lock is released.
func (c *Cluster) join(groupID string, m *Client) {
	c.mu.Lock()
	g := c.groupLocked(groupID)
	g.members = append(g.members, m)
	steps := c.planRebalanceLocked(g)
	c.mu.Unlock()

	runRebalance(steps)
}

func (c *Cluster) leave(groupID string, m *Client) {
	c.mu.Lock()
	g, ok := c.groups[groupID]
	if !ok {
		c.mu.Unlock()
		return
	}

	g.members = slices.DeleteFunc(g.members, func(other *Client) bool { return other == m })
	steps := c.planRebalanceLocked(g)
	c.mu.Unlock()

	runRebalance(steps)
}

// Rebalance forces a new generation for groupID, revoking and reassigning
// every member's partitions.
func (c *Cluster) Rebalance(groupID string) {
	c.mu.Lock()
	g, ok := c.groups[groupID]
	if !ok {
		c.mu.Unlock()
		return
	}
	steps := c.planRebalanceLocked(g)
	c.mu.Unlock()

	runRebalance(steps)
}

// planRebalanceLocked spreads the partitions of every subscribed topic
// round-robin over members in join order.
func (c *Cluster) planRebalanceLocked(g *group) []rebalanceStep {
	g.generation++

	topics := make(map[string]struct{})
	for _, m := range g.members {
		for _, t := range m.subscribedTopics() {
			topics[t] = struct{}{}
		}
	}

	var all []kafka.TopicPartition
	for _, t := range slices.Sorted(maps.Keys(topics)) {
		all = append(all, c.partitionsLocked(t)...)
	}

	assignments := make([][]kafka.TopicPartition, len(g.members))
	for i, tp := range all {
		if len(g.members) == 0 {
			break
		}
		idx := i % len(g.members)
		assignments[idx] = append(assignments[idx], tp)
	}

	steps := make([]rebalanceStep, len(g.members))
	for i, m := range g.members {
		steps[i] = rebalanceStep{client: m, assignment: assignments[i]}
	}

	return steps
}

// runRebalance revokes everything first, then assigns, mirroring the eager
// protocol where no partition is owned twice.
func runRebalance(steps []rebalanceStep) {
	for _, s := range steps {
		s.client.revokeAll()
	}
	for _, s := range steps {
		s.client.assign(s.assignment)
	}
}
