package session

import (
	"errors"
	"fmt"
)

// Domain Errors
var (
	ErrNoQuestions       = errors.New("no questions available")
	ErrInvalidTimeLimit  = errors.New("time limit must be positive")
	ErrDuplicateQuestion = errors.New("duplicate question id")
	ErrAlreadyStarted    = errors.New("session already started")
	ErrNotRunning        = errors.New("session is not running")
	ErrUnknownQuestion   = errors.New("unknown question")
	ErrUnknownOption     = errors.New("unknown option")
	ErrSubmitInProgress  = errors.New("submission already in progress")
	ErrAlreadyCompleted  = errors.New("session already completed")
)

// LoadError means the paper could not be turned into a running session.
// It is terminal: the caller returns the user to the listing view.
type LoadError struct {
	PaperID string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load paper %s: %v", e.PaperID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SubmissionError wraps a failed call to the submission endpoint.
// The session keeps its answers and accepts a manual retry.
type SubmissionError struct {
	PaperID string
	Err     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit paper %s: %v", e.PaperID, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
