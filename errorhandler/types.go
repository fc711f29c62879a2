package errorhandler

import (
	"context"
)

// Handler decides what happens to a record that failed to decode or process.
// It runs on the partition's goroutine, so a slow handler holds back only
// that partition.
type Handler interface {
	Handle(ctx context.Context, ec ErrorContext) Action
}

type HandlerFunc func(ctx context.Context, ec ErrorContext) Action

func (f HandlerFunc) Handle(ctx context.Context, ec ErrorContext) Action {
	return f(ctx, ec)
}

// ActionType is the decision a Handler returns for a failed record.
type ActionType int

const (
	// ActionTypeContinue drops the record and releases its offset.
	ActionTypeContinue ActionType = iota
	// ActionTypeRetry runs the failed step again with Attempt incremented.
	ActionTypeRetry
	// ActionTypeFail stops the stream; the offset is never committed.
	ActionTypeFail
	// ActionTypeSendToDLQ produces the record to a dead letter topic and
	// releases its offset once the produce succeeds.
	ActionTypeSendToDLQ
)

var actionNames = map[ActionType]string{
	ActionTypeContinue:  "Continue",
	ActionTypeRetry:     "Retry",
	ActionTypeFail:      "Fail",
	ActionTypeSendToDLQ: "SendToDLQ",
}

func (a ActionType) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "Unknown"
}

// ReleasesOffset reports whether the record's committable is handed to the
// committer after this decision.
func (a ActionType) ReleasesOffset() bool {
	return a == ActionTypeContinue || a == ActionTypeSendToDLQ
}

type Action interface {
	Type() ActionType
}

var (
	_ Action = ActionContinue{}
	_ Action = ActionRetry{}
	_ Action = ActionFail{}
	_ Action = ActionSendToDLQ{}
)

type ActionContinue struct{}

func (ActionContinue) Type() ActionType { return ActionTypeContinue }

type ActionRetry struct{}

func (ActionRetry) Type() ActionType { return ActionTypeRetry }

type ActionFail struct{}

func (ActionFail) Type() ActionType { return ActionTypeFail }

// ActionSendToDLQ carries the dead letter topic. Build it with SendToDLQTopic.
type ActionSendToDLQ struct {
	topic string
}

// SendToDLQTopic returns the decision to dead-letter a record to topic.
func SendToDLQTopic(topic string) ActionSendToDLQ {
	return ActionSendToDLQ{topic: topic}
}

func (ActionSendToDLQ) Type() ActionType { return ActionTypeSendToDLQ }

func (a ActionSendToDLQ) Topic() string {
	return a.topic
}
