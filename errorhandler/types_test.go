//go:build unit

package errorhandler_test

import (
	"context"
	"testing"

	"github.com/hugolhafner/go-consumer/errorhandler"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	mocklogger "github.com/hugolhafner/go-consumer/logger/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionType_ReleasesOffset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		action   errorhandler.Action
		name     string
		releases bool
	}{
		{errorhandler.ActionContinue{}, "Continue", true},
		{errorhandler.ActionRetry{}, "Retry", false},
		{errorhandler.ActionFail{}, "Fail", false},
		{errorhandler.SendToDLQTopic("orders.dlq"), "SendToDLQ", true},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()

				assert.Equal(t, tt.name, tt.action.Type().String())
				assert.Equal(t, tt.releases, tt.action.Type().ReleasesOffset())
			},
		)
	}

	assert.Equal(t, "Unknown", errorhandler.ActionType(42).String())
	assert.False(t, errorhandler.ActionType(42).ReleasesOffset())
}

func TestWithDLQ_CarriesTopic(t *testing.T) {
	t.Parallel()

	h := errorhandler.WithDLQ("orders.dlq", errorhandler.HandlerFunc(
		func(context.Context, errorhandler.ErrorContext) errorhandler.Action {
			return errorhandler.ActionContinue{}
		},
	))

	action := h.Handle(context.Background(), errorhandler.NewErrorContext(kafka.Record{Topic: "orders"}, nil))
	dlq, ok := action.(errorhandler.ActionSendToDLQ)
	require.True(t, ok)
	assert.Equal(t, "orders.dlq", dlq.Topic())
}

func TestActionLogger_LogsWhetherOffsetIsReleased(t *testing.T) {
	t.Parallel()

	log := mocklogger.New()
	h := errorhandler.ActionLogger(log, logger.WarnLevel, errorhandler.SilentFail())

	action := h.Handle(context.Background(), errorhandler.NewErrorContext(kafka.Record{Topic: "orders"}, nil))
	require.Equal(t, errorhandler.ActionTypeFail, action.Type())

	log.AssertCalledWithLevelAndMessage(t, logger.WarnLevel, "Error handler decision")
	log.AssertMessageHasKV(t, "Error handler decision", "releases_offset", false)
}
