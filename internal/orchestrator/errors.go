package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrRunInProgress rejects a generate or retry while another is in flight.
	ErrRunInProgress = errors.New("generation already in progress")
	// ErrAllFailed accompanies a fully populated Result in which no job completed.
	ErrAllFailed = errors.New("all transcription jobs failed")
	// ErrNoSession is returned by operations that need a current session.
	ErrNoSession = errors.New("no transcription session")
)

// ValidationError rejects a request before any job is created.
type ValidationError struct {
	Field   string
	Message string
}

// Error formats the rejected field.
func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
