package websocket

import (
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionClear  Action = "clear"
	ActionFlag   Action = "flag"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// Request is a client frame. Only the fields its action needs are set.
type Request struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id,omitempty"`
	Option     string `json:"option,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState        Event = "state"
	EventTick         Event = "tick"
	EventStatus       Event = "status"
	EventGraded       Event = "graded"
	EventSubmitFailed Event = "submit_failed"
	EventAck          Event = "ack"
	EventError        Event = "error"
	EventPong         Event = "pong"
)

// StateResponse carries the full attempt snapshot, sent on connect.
type StateResponse struct {
	Event Event              `json:"event"`
	State model.SessionState `json:"state"`
}

// SessionResponse relays a session event: a tick, a status change, a
// grade or a failed submission.
type SessionResponse struct {
	Event     Event               `json:"event"`
	PaperID   string              `json:"paper_id"`
	Status    model.SessionStatus `json:"status"`
	Remaining int                 `json:"remaining_seconds"`
	Auto      bool                `json:"auto,omitempty"`
	Result    *model.Result       `json:"result,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// AckResponse confirms a mutating action.
type AckResponse struct {
	Event      Event  `json:"event"`
	Action     Action `json:"action"`
	QuestionID string `json:"question_id,omitempty"`
	Flagged    *bool  `json:"flagged,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// FromSession maps a session event to its wire frame.
func FromSession(ev session.Event) SessionResponse {
	return SessionResponse{
		Event:     Event(ev.Type),
		PaperID:   ev.PaperID,
		Status:    ev.Status,
		Remaining: ev.Remaining,
		Auto:      ev.Auto,
		Result:    ev.Result,
		Error:     ev.Error,
	}
}
