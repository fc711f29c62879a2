package errorhandler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
)

// Headers added to every dead-lettered record.
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderErrorTimestamp    = "x-error-timestamp"
	HeaderErrorAttempt      = "x-error-attempt"
	HeaderErrorPhase        = "x-error-phase"
	HeaderErrorMessage      = "x-error-message"
	HeaderErrorStage        = "x-error-stage"
)

var ErrNoProducer = errors.New("errorhandler: dead letter requested without a producer")

// SendToDLQ produces a copy of the failed record to topic, preserving key,
// value and headers and appending the failure metadata headers.
func SendToDLQ(ctx context.Context, producer kafka.Producer, topic string, ec ErrorContext) error {
	if producer == nil {
		return ErrNoProducer
	}

	record := ec.Record.Copy()
	headers := make([]kafka.Header, len(record.Headers), len(record.Headers)+8)
	copy(headers, record.Headers)

	headers = append(
		headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(record.Topic)},
		kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.FormatInt(int64(record.Partition), 10))},
		kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(record.Offset, 10))},
		kafka.Header{Key: HeaderErrorTimestamp, Value: []byte(time.Now().Format(time.RFC3339))},
		kafka.Header{Key: HeaderErrorAttempt, Value: []byte(strconv.Itoa(ec.Attempt))},
		kafka.Header{Key: HeaderErrorPhase, Value: []byte(ec.Phase.String())},
	)

	if ec.Error != nil {
		headers = append(headers, kafka.Header{Key: HeaderErrorMessage, Value: []byte(ec.Error.Error())})
	}
	if ec.Stage != "" {
		headers = append(headers, kafka.Header{Key: HeaderErrorStage, Value: []byte(ec.Stage)})
	}

	return producer.Produce(
		ctx, kafka.Record{
			Topic:     topic,
			Key:       record.Key,
			Value:     record.Value,
			Headers:   headers,
			Timestamp: time.Now(),
		},
	)
}
