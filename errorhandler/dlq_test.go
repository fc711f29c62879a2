//go:build unit

package errorhandler_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/kafka"
	mockkafka "github.com/hugolhafner/go-consumer/kafka/mock"
	"github.com/hugolhafner/go-consumer/logger"
	mocklogger "github.com/hugolhafner/go-consumer/logger/mock"
	"github.com/stretchr/testify/require"
)

func TestSendToDLQ_AddsFailureHeaders(t *testing.T) {
	t.Parallel()

	cluster := mockkafka.NewCluster()
	cluster.CreateTopic("orders.dlq", 1)
	producer := cluster.NewClient("")

	record := mockkafka.Record("order-1", "payload").
		WithTopicPartition(kafka.TopicPartition{Topic: "orders", Partition: 2}).
		WithOffset(41).
		WithHeader("trace", []byte("abc")).
		Build()

	ec := errorhandler.NewErrorContext(record, errors.New("bad payload")).
		WithPhase(errorhandler.PhaseProcessing).
		WithStage("billing").
		WithAttempt(3)

	require.NoError(t, errorhandler.SendToDLQ(context.Background(), producer, "orders.dlq", ec))

	producer.AssertProducedString(t, "orders.dlq", "order-1", "payload")
	producer.AssertHeader(t, "orders.dlq", []byte("order-1"), "trace", []byte("abc"))
	producer.AssertHeader(t, "orders.dlq", []byte("order-1"), errorhandler.HeaderOriginalTopic, []byte("orders"))
	producer.AssertHeader(t, "orders.dlq", []byte("order-1"), errorhandler.HeaderOriginalPartition, []byte("2"))
	producer.AssertHeader(t, "orders.dlq", []byte("order-1"), errorhandler.HeaderOriginalOffset, []byte("41"))
	producer.AssertHeader(t, "orders.dlq", []byte("order-1"), errorhandler.HeaderErrorAttempt, []byte("3"))
	producer.AssertHeader(t, "orders.dlq", []byte("order-1"), errorhandler.HeaderErrorPhase, []byte("processing"))
	producer.AssertHeader(t, "orders.dlq", []byte("order-1"), errorhandler.HeaderErrorMessage, []byte("bad payload"))
	producer.AssertHeader(t, "orders.dlq", []byte("order-1"), errorhandler.HeaderErrorStage, []byte("billing"))

	require.Len(t, record.Headers, 1, "original record must not be modified")
}

func TestSendToDLQ_NilProducer(t *testing.T) {
	t.Parallel()

	ec := errorhandler.NewErrorContext(kafka.Record{}, errors.New("x"))
	err := errorhandler.SendToDLQ(context.Background(), nil, "dlq", ec)
	require.ErrorIs(t, err, errorhandler.ErrNoProducer)
}

func TestSendToDLQ_ProducerError(t *testing.T) {
	t.Parallel()

	boom := errors.New("broker down")
	producer := mockkafka.NewCluster().NewClient("", mockkafka.WithProduceError(boom))

	ec := errorhandler.NewErrorContext(kafka.Record{Topic: "orders"}, errors.New("x"))
	err := errorhandler.SendToDLQ(context.Background(), producer, "dlq", ec)
	require.ErrorIs(t, err, boom)
	producer.AssertProducedCount(t, 0)
}

func TestWithDLQ(t *testing.T) {
	t.Parallel()

	ec := errorhandler.NewErrorContext(kafka.Record{}, errors.New("x"))

	action := errorhandler.WithDLQ("dlq", nil).Handle(context.Background(), ec)
	require.Equal(t, errorhandler.ActionTypeSendToDLQ, action.Type())
	require.Equal(t, "dlq", action.(errorhandler.ActionSendToDLQ).Topic())

	action = errorhandler.WithDLQ("dlq", errorhandler.SilentFail()).Handle(context.Background(), ec)
	require.Equal(t, errorhandler.ActionFail{}, action)
}

func TestActionLogger(t *testing.T) {
	t.Parallel()

	l := mocklogger.New()
	h := errorhandler.ActionLogger(l, logger.WarnLevel, errorhandler.SilentFail())

	ec := errorhandler.NewErrorContext(kafka.Record{Topic: "orders"}, errors.New("x")).
		WithPhase(errorhandler.PhaseCommit)
	action := h.Handle(context.Background(), ec)

	require.Equal(t, errorhandler.ActionFail{}, action)
	l.AssertCalledWithLevelAndMessage(t, logger.WarnLevel, "Error handler decision")
	l.AssertMessageHasKV(t, "Error handler decision", "action", "Fail")
	l.AssertMessageHasKV(t, "Error handler decision", "phase", "commit")
}
