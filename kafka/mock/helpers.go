package mockkafka

import (
	"strconv"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
)

// RecordBuilder provides a fluent interface for building Records.
type RecordBuilder struct {
	record kafka.Record
}

// Record creates a new RecordBuilder with the given key and value.
func Record(key, value string) *RecordBuilder {
	return RecordBytes([]byte(key), []byte(value))
}

// RecordBytes creates a new RecordBuilder with byte slices for key and value.
func RecordBytes(key, value []byte) *RecordBuilder {
	return &RecordBuilder{
		record: kafka.Record{
			Key:       key,
			Value:     value,
			Timestamp: time.Now(),
		},
	}
}

// WithTopicPartition sets where the record lives. Cluster.Append overrides
// both, so this matters only for records handed to code directly.
func (b *RecordBuilder) WithTopicPartition(tp kafka.TopicPartition) *RecordBuilder {
	b.record.Topic = tp.Topic
	b.record.Partition = tp.Partition
	return b
}

// WithOffset sets the record's offset.
func (b *RecordBuilder) WithOffset(offset int64) *RecordBuilder {
	b.record.Offset = offset
	return b
}

func (b *RecordBuilder) WithTimestamp(ts time.Time) *RecordBuilder {
	b.record.Timestamp = ts
	return b
}

// WithHeader appends a header; duplicate keys are kept.
func (b *RecordBuilder) WithHeader(key string, value []byte) *RecordBuilder {
	b.record.Headers = append(b.record.Headers, kafka.Header{Key: key, Value: value})
	return b
}

func (b *RecordBuilder) WithLeaderEpoch(epoch int32) *RecordBuilder {
	b.record.LeaderEpoch = epoch
	return b
}

// Build returns the constructed Record.
func (b *RecordBuilder) Build() kafka.Record {
	return b.record
}

// SimpleRecord creates a Record with just key and value as strings.
func SimpleRecord(key, value string) kafka.Record {
	return Record(key, value).Build()
}

// SimpleRecords creates multiple Records from key, value argument pairs.
func SimpleRecords(keyValuePairs ...string) []kafka.Record {
	if len(keyValuePairs)%2 != 0 {
		panic("SimpleRecords requires an even number of arguments (key-value pairs)")
	}

	records := make([]kafka.Record, 0, len(keyValuePairs)/2)
	for i := 0; i < len(keyValuePairs); i += 2 {
		records = append(records, SimpleRecord(keyValuePairs[i], keyValuePairs[i+1]))
	}
	return records
}

// NumberedRecords creates n records with keys key-0..key-n-1 and matching
// values.
func NumberedRecords(n int) []kafka.Record {
	records := make([]kafka.Record, n)
	for i := range n {
		records[i] = SimpleRecord("key-"+strconv.Itoa(i), "value-"+strconv.Itoa(i))
	}
	return records
}
