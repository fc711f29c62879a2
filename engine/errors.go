package engine

import (
	"errors"
	"fmt"

	"github.com/hugolhafner/go-consumer/kafka"
)

var (
	// ErrSourceClosed ends the record sequence of a revoked partition or a
	// stopped engine.
	ErrSourceClosed = errors.New("engine: partition source closed")

	ErrAlreadyStarted = errors.New("engine: already started")
	ErrNotStarted     = errors.New("engine: not started")
	ErrStopped        = errors.New("engine: stopped")
)

// DeserializationError is handed to the error handler when a record cannot
// be decoded. It becomes fatal when the handler fails the record.
type DeserializationError struct {
	Record kafka.Record
	Cause  error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf(
		"engine: deserialize %s@%d: %v", e.Record.TopicPartition(), e.Record.Offset, e.Cause,
	)
}

func (e *DeserializationError) Unwrap() error {
	return e.Cause
}

func AsDeserializationError(err error) (*DeserializationError, bool) {
	var de *DeserializationError
	if errors.As(err, &de) {
		return de, true
	}

	return nil, false
}
