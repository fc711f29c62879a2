package kafka

import (
	"cmp"
	"slices"
	"strconv"
	"time"
)

// Header represents a single Kafka record header
// kafka needs to support multiple headers with duplicate keys
type Header struct {
	Key   string
	Value []byte
}

// HeaderValue returns the value of the first header matching the given key
// Returns (nil, false) if no header with that key exists
func HeaderValue(headers []Header, key string) ([]byte, bool) {
	for _, h := range headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return nil, false
}

// Record is a single consumed record. Records handed out by a Broker are
// never mutated afterwards; use Copy before retaining one beyond the handler.
type Record struct {
	Key         []byte
	Value       []byte
	Headers     []Header
	Topic       string
	Partition   int32
	Offset      int64
	LeaderEpoch int32
	Timestamp   time.Time
}

func (r Record) TopicPartition() TopicPartition {
	return TopicPartition{
		Topic:     r.Topic,
		Partition: r.Partition,
	}
}

func (r Record) Copy() Record {
	headersCopy := make([]Header, len(r.Headers))
	for i, h := range r.Headers {
		headersCopy[i] = Header{Key: h.Key, Value: slices.Clone(h.Value)}
	}

	return Record{
		Key:         slices.Clone(r.Key),
		Value:       slices.Clone(r.Value),
		Headers:     headersCopy,
		Topic:       r.Topic,
		Partition:   r.Partition,
		Offset:      r.Offset,
		LeaderEpoch: r.LeaderEpoch,
		Timestamp:   r.Timestamp,
	}
}

type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return tp.Topic + "-" + strconv.FormatInt(int64(tp.Partition), 10)
}

// Compare orders partitions by topic, then partition number.
func (tp TopicPartition) Compare(other TopicPartition) int {
	if c := cmp.Compare(tp.Topic, other.Topic); c != 0 {
		return c
	}
	return cmp.Compare(tp.Partition, other.Partition)
}

// SortTopicPartitions sorts tps in place and returns it.
func SortTopicPartitions(tps []TopicPartition) []TopicPartition {
	slices.SortFunc(tps, TopicPartition.Compare)
	return tps
}

// OffsetReset selects where to start a partition that has no committed offset.
type OffsetReset int

const (
	OffsetResetEarliest OffsetReset = iota
	OffsetResetLatest
)

func (o OffsetReset) String() string {
	switch o {
	case OffsetResetEarliest:
		return "earliest"
	case OffsetResetLatest:
		return "latest"
	default:
		return "unknown"
	}
}

// ParseOffsetReset accepts "earliest" or "latest".
func ParseOffsetReset(s string) (OffsetReset, bool) {
	switch s {
	case "earliest", "":
		return OffsetResetEarliest, true
	case "latest":
		return OffsetResetLatest, true
	default:
		return OffsetResetEarliest, false
	}
}
