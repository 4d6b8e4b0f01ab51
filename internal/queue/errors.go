package queue

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("job not found")
	ErrValidation = errors.New("invalid download request")
	ErrJobActive  = errors.New("job is already running")
	ErrClosed     = errors.New("queue is shut down")
)

// DuplicateError is returned when the same source and format is already queued or
// running.
type DuplicateError struct {
	ExistingID string
	SourceURL  string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s is already queued as job %s", e.SourceURL, e.ExistingID)
}
