package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates the Backend Service's view of a session.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
)

// ExamSession is one timed attempt at an exam as issued by the Backend Service.
type ExamSession struct {
	ID         uuid.UUID     `json:"id"`
	ExamID     uuid.UUID     `json:"exam_id"`
	StudentID  int           `json:"student_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Status     SessionStatus `json:"status"`
	FinalScore *float64      `json:"final_score,omitempty"`

	// Baseline is the server-issued remaining time captured once at load.
	Baseline time.Duration `json:"-"`
}

// ResultRef points at the final result of a submitted session. The backend
// embeds one in forced-submission errors and returns one from submit-exam.
type ResultRef struct {
	SessionID  uuid.UUID `json:"session_id"`
	FinalScore *float64  `json:"final_score,omitempty"`
}

// Result is the final score breakdown of a session.
type Result struct {
	SessionID  uuid.UUID         `json:"session_id"`
	ExamID     uuid.UUID         `json:"exam_id"`
	Score      float64           `json:"score"`
	Correct    int               `json:"correct"`
	Total      int               `json:"total"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Breakdown  []QuestionOutcome `json:"breakdown,omitempty"`
}

// QuestionOutcome is the graded outcome of a single question.
type QuestionOutcome struct {
	QuestionID uuid.UUID `json:"question_id"`
	Correct    bool      `json:"correct"`
	Points     float64   `json:"points"`
}
