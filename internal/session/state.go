package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// State is a Controller lifecycle state.
type State string

const (
	StateUninitialized    State = "UNINITIALIZED"
	StateLoading          State = "LOADING"
	StateActive           State = "ACTIVE"
	StateAutoSubmitting   State = "AUTO_SUBMITTING"
	StateManualSubmitting State = "MANUAL_SUBMITTING"
	StateSubmitted        State = "SUBMITTED"
	StateExpired          State = "EXPIRED"
	StateFailed           State = "FAILED"
)

// Terminal reports whether no further transition is possible. FAILED is
// terminal unless the failure was transient, see Controller.Load.
func (s State) Terminal() bool {
	return s == StateSubmitted || s == StateExpired || s == StateFailed
}

// Submitting reports whether a submit-exam call is in flight.
func (s State) Submitting() bool {
	return s == StateAutoSubmitting || s == StateManualSubmitting
}

// NoticeKind grades a Notice for display.
type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeWarning NoticeKind = "warning"
	NoticeError   NoticeKind = "error"
)

// Notice codes.
const (
	CodeViolationWarning    = "VIOLATION_WARNING"
	CodeViolationThreshold  = "VIOLATION_THRESHOLD"
	CodeTimeUp              = "TIME_UP"
	CodeAnswerNotSaved      = "ANSWER_NOT_SAVED"
	CodeSubmitFailed        = "SUBMIT_FAILED"
	CodeSubmitted           = "SUBMITTED"
	CodeSessionExpired      = "SESSION_EXPIRED"
	CodeExamNotStarted      = "EXAM_NOT_STARTED"
	CodeExamClosed          = "EXAM_CLOSED"
	CodeExamNotAvailable    = "EXAM_NOT_AVAILABLE"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeLoadFailed          = "LOAD_FAILED"
)

// Notice is a user-visible message.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Code    string     `json:"code"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// Snapshot is the render state pushed to the UI.
type Snapshot struct {
	State       State              `json:"state"`
	ExamID      uuid.UUID          `json:"exam_id"`
	SessionID   uuid.UUID          `json:"session_id"`
	RemainingMs int64              `json:"remaining_ms"`
	Violations  int                `json:"violations"`
	Threshold   int                `json:"threshold"`
	Answered    map[uuid.UUID]bool `json:"answered"`
	Submitting  bool               `json:"submitting"`
	Result      *model.ResultRef   `json:"result,omitempty"`
	Notice      *Notice            `json:"notice,omitempty"`
}

// View is a Snapshot plus the reference data the UI renders once.
type View struct {
	Snapshot
	Exam      *model.Exam                     `json:"exam,omitempty"`
	Questions []model.Question                `json:"questions"`
	Answers   map[uuid.UUID]model.AnswerValue `json:"answers"`
	// ViolationLog lists every detected violation, including those past
	// the threshold.
	ViolationLog []model.ViolationEvent `json:"violation_log"`
}

// Observer receives every published snapshot and notice. Calls are made
// from the controller goroutine and must not block.
type Observer interface {
	OnSnapshot(s Snapshot)
	OnNotice(n Notice)
}

type nopObserver struct{}

func (nopObserver) OnSnapshot(Snapshot) {}
func (nopObserver) OnNotice(Notice)     {}
