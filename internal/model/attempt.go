package model

import "time"

// SessionStatus enumerates test session states.
type SessionStatus string

const (
	SessionStatusLoading    SessionStatus = "LOADING"
	SessionStatusRunning    SessionStatus = "RUNNING"
	SessionStatusSubmitting SessionStatus = "SUBMITTING"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusFailed     SessionStatus = "FAILED"
)

// Terminal reports whether no further answer mutations are accepted.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed
}

// Score is the graded outcome of an attempt.
type Score struct {
	Correct     int     `json:"correct"`
	Wrong       int     `json:"wrong"`
	Unattempted int     `json:"unattempted"`
	Total       float64 `json:"total"`
	MaxTotal    float64 `json:"max_total"`
}

// SubmissionPayload is what the submission endpoint accepts.
type SubmissionPayload struct {
	PaperID          string            `json:"paper_id"`
	Answers          map[string]string `json:"answers"`
	TimeTakenSeconds int               `json:"time_taken_seconds"`
	Auto             bool              `json:"auto"`
}

// SubmissionReceipt is returned by the submission endpoint.
type SubmissionReceipt struct {
	ResultID string `json:"result_id"`
	Score    *Score `json:"score,omitempty"`
}

// Result is the outcome of a completed attempt.
type Result struct {
	ResultID         string    `json:"result_id"`
	Score            Score     `json:"score"`
	TimeTakenSeconds int       `json:"time_taken_seconds"`
	Auto             bool      `json:"auto"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// SessionState is a read-only view of a test session for rendering.
type SessionState struct {
	PaperID          string               `json:"paper_id"`
	Status           SessionStatus        `json:"status"`
	TimeLimitSeconds int                  `json:"time_limit_seconds"`
	RemainingSeconds int                  `json:"remaining_seconds"`
	StartedAt        time.Time            `json:"started_at"`
	Questions        []QuestionForStudent `json:"questions"`
	Answers          map[string]string    `json:"answers"`
	Flags            map[string]bool      `json:"flags"`
	Result           *Result              `json:"result,omitempty"`
	LastError        string               `json:"last_error,omitempty"`
}

// LastAttempt is the single "last test taken" blob cached per student.
// It is overwritten on every run.
type LastAttempt struct {
	PaperID          string            `json:"paper_id"`
	Title            string            `json:"title"`
	Status           SessionStatus     `json:"status"`
	TimeLimitSeconds int               `json:"time_limit_seconds"`
	StartedAt        time.Time         `json:"started_at"`
	Answers          map[string]string `json:"answers,omitempty"`
	Result           *Result           `json:"result,omitempty"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// StartAttemptRequest is the payload for starting a test attempt.
type StartAttemptRequest struct {
	PaperID string `json:"paper_id" binding:"required,min=1,max=64"`
}

// AnswerRequest is the payload for selecting an answer.
type AnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,min=1,max=64"`
	Option     string `json:"option" binding:"required,option_label"`
}
