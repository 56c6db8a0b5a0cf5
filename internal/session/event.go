package session

import "github.com/stemsi/exstem-attempt/internal/model"

// EventType identifies what happened to a session.
type EventType string

const (
	EventTick         EventType = "tick"
	EventStatus       EventType = "status"
	EventGraded       EventType = "graded"
	EventSubmitFailed EventType = "submit_failed"
)

// Event is emitted to the session listener on every tick and transition.
type Event struct {
	Type      EventType           `json:"type"`
	PaperID   string              `json:"paper_id"`
	Status    model.SessionStatus `json:"status"`
	Remaining int                 `json:"remaining_seconds"`
	Auto      bool                `json:"auto,omitempty"`
	Result    *model.Result       `json:"result,omitempty"`
	Error     string              `json:"error,omitempty"`
}
