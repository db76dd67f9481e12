package models

import "fmt"

// ConflictError reports an attempt to move a job out of a terminal state.
type ConflictError struct {
	From JobStatus
	To   JobStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("Job status cannot be updated from %s to %s.", e.From, e.To)
}
