package errorhandler

import (
	"github.com/hugolhafner/go-consumer/kafka"
)

// ErrorContext carries everything a Handler needs to decide what to do
// with a failed record.
type ErrorContext struct {
	// Record is a copy of the record that failed
	Record kafka.Record

	Error error

	// Attempt starts at 1 and is incremented on every retry
	Attempt int

	// Stage names the pipeline step that failed, empty when unknown
	Stage string

	Phase ErrorPhase
}

func NewErrorContext(record kafka.Record, err error) ErrorContext {
	return ErrorContext{
		Record:  record.Copy(),
		Error:   err,
		Attempt: 1,
	}
}

func (ec ErrorContext) WithError(err error) ErrorContext {
	ec.Error = err
	return ec
}

func (ec ErrorContext) WithAttempt(attempt int) ErrorContext {
	ec.Attempt = attempt
	return ec
}

func (ec ErrorContext) WithStage(name string) ErrorContext {
	ec.Stage = name
	return ec
}

func (ec ErrorContext) WithPhase(phase ErrorPhase) ErrorContext {
	ec.Phase = phase
	return ec
}

func (ec ErrorContext) IncrementAttempt() ErrorContext {
	ec.Attempt++
	return ec
}
