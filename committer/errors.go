package committer

import (
	"errors"
	"fmt"

	"github.com/hugolhafner/go-consumer/offset"
)

var ErrClosed = errors.New("committer: closed")

// CommitFailedError is returned once a batch could not be committed within
// the retry budget, or failed with a non-retriable error.
type CommitFailedError struct {
	Batch    offset.Batch
	Attempts int
	Cause    error
}

func (e *CommitFailedError) Error() string {
	return fmt.Sprintf(
		"commit of %d partition(s) failed after %d attempt(s): %v", e.Batch.Len(), e.Attempts, e.Cause,
	)
}

func (e *CommitFailedError) Unwrap() error {
	return e.Cause
}

func AsCommitFailedError(err error) (*CommitFailedError, bool) {
	var cfe *CommitFailedError
	if errors.As(err, &cfe) {
		return cfe, true
	}

	return nil, false
}
