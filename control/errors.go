package control

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidTransition = errors.New("control: invalid state transition")
	ErrNotRunning        = errors.New("control: handle is not running")
)

// ShutdownTimeoutError is logged when a drain does not finish within the
// stop timeout and the handle falls back to a hard stop.
type ShutdownTimeoutError struct {
	Timeout time.Duration
	// Pending is the number of stages still running when the timeout hit
	Pending int
}

func (e *ShutdownTimeoutError) Error() string {
	return fmt.Sprintf("control: drain did not finish within %s, %d stage(s) still running", e.Timeout, e.Pending)
}

func AsShutdownTimeoutError(err error) (*ShutdownTimeoutError, bool) {
	var ste *ShutdownTimeoutError
	if errors.As(err, &ste) {
		return ste, true
	}

	return nil, false
}
