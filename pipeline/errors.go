package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
)

var (
	ErrWrongMode = errors.New("pipeline: engine mode does not match pipeline")
	ErrNilStore  = errors.New("pipeline: nil offset store")
)

// HandlerTimeoutError is returned when a handler call outlives the
// configured handler timeout. The call is abandoned, not interrupted.
type HandlerTimeoutError struct {
	TopicPartition kafka.TopicPartition
	Offset         int64
	Timeout        time.Duration
}

func (e *HandlerTimeoutError) Error() string {
	return fmt.Sprintf("pipeline: handler for %s@%d exceeded %s", e.TopicPartition, e.Offset, e.Timeout)
}

func AsHandlerTimeoutError(err error) (*HandlerTimeoutError, bool) {
	var te *HandlerTimeoutError
	if errors.As(err, &te) {
		return te, true
	}

	return nil, false
}
