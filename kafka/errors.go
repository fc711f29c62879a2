package kafka

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/twmb/franz-go/pkg/kerr"
)

var (
	// ErrRebalanceInProgress signals that the group is rebalancing. Callers
	// pause the affected partitions instead of treating it as a failure.
	ErrRebalanceInProgress = errors.New("kafka: rebalance in progress")

	ErrNotAssigned  = errors.New("kafka: partition not assigned")
	ErrClosed       = errors.New("kafka: broker closed")
	ErrNoGroup      = errors.New("kafka: no consumer group configured")
	ErrSubscribed   = errors.New("kafka: already subscribed")
	ErrModeConflict = errors.New("kafka: cannot mix group subscription and direct assignment")
	ErrUnsupported  = errors.New("kafka: operation not supported by this broker")
)

// TransientError marks a broker failure that is expected to clear on retry.
type TransientError struct {
	Op    string
	Cause error
}

func (e *TransientError) Error() string {
	return "kafka: transient " + e.Op + " error: " + e.Cause.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

func NewTransientError(op string, cause error) error {
	return &TransientError{Op: op, Cause: cause}
}

func AsTransientError(err error) (*TransientError, bool) {
	var te *TransientError
	if errors.As(err, &te) {
		return te, true
	}

	return nil, false
}

// IsRebalanceInProgress reports whether err stems from an ongoing group
// rebalance, either ours or the protocol's equivalent codes.
func IsRebalanceInProgress(err error) bool {
	return errors.Is(err, ErrRebalanceInProgress) ||
		errors.Is(err, kerr.RebalanceInProgress) ||
		errors.Is(err, kerr.IllegalGeneration) ||
		errors.Is(err, kerr.UnknownMemberID)
}

// IsTransient reports whether err is worth retrying with backoff.
// Authorization failures and anything unrecognised are fatal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if IsFatal(err) {
		return false
	}

	if _, ok := AsTransientError(err); ok {
		return true
	}

	if IsRebalanceInProgress(err) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return kerr.IsRetriable(err)
}

// IsFatal reports errors that can never succeed on retry.
func IsFatal(err error) bool {
	return errors.Is(err, kerr.TopicAuthorizationFailed) ||
		errors.Is(err, kerr.GroupAuthorizationFailed) ||
		errors.Is(err, kerr.ClusterAuthorizationFailed) ||
		errors.Is(err, kerr.SaslAuthenticationFailed) ||
		errors.Is(err, kerr.FencedInstanceID) ||
		errors.Is(err, ErrClosed) ||
		errors.Is(err, ErrNoGroup) ||
		errors.Is(err, ErrUnsupported)
}
