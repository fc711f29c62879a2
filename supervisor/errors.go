package supervisor

import (
	"errors"
	"fmt"
)

var ErrAlreadyRunning = errors.New("supervisor: already running")

// RestartsExhaustedError is returned by Run once MaxRestarts consecutive
// restarts have failed.
type RestartsExhaustedError struct {
	Restarts int
	Err      error
}

func (e *RestartsExhaustedError) Error() string {
	return fmt.Sprintf("supervisor: giving up after %d restart(s): %v", e.Restarts, e.Err)
}

func (e *RestartsExhaustedError) Unwrap() error {
	return e.Err
}

func AsRestartsExhaustedError(err error) (*RestartsExhaustedError, bool) {
	var ree *RestartsExhaustedError
	if errors.As(err, &ree) {
		return ree, true
	}

	return nil, false
}
