package websocket

import (
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/violation"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionSignal Action = "signal"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// RequestPayload is the union of every client action.
type RequestPayload struct {
	Action Action `json:"action"`

	// answer
	QuestionID string             `json:"question_id,omitempty"`
	Answer     *model.AnswerValue `json:"answer,omitempty"`

	// signal
	Signal *violation.Signal `json:"signal,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSnapshot Event = "snapshot"
	EventNotice   Event = "notice"
	EventVerdict  Event = "verdict"
	EventSuccess  Event = "success"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

type SnapshotEvent struct {
	Event    Event            `json:"event"`
	Snapshot session.Snapshot `json:"snapshot"`
}

type NoticeEvent struct {
	Event  Event          `json:"event"`
	Notice session.Notice `json:"notice"`
}

// VerdictResponse tells the page whether to cancel the default action of
// the signal it just reported.
type VerdictResponse struct {
	Event Event               `json:"event"`
	Block bool                `json:"block"`
	Type  model.ViolationType `json:"type,omitempty"`
}

type SuccessResponse struct {
	Event  Event  `json:"event"`
	Action Action `json:"action"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
