package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam is the exam metadata delivered alongside the question set.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	QuestionCount   int        `json:"question_count"`
}

// ExamPaper is the response of get-session-questions.
type ExamPaper struct {
	Exam            Exam       `json:"exam"`
	Questions       []Question `json:"questions"`
	RemainingTimeMs int64      `json:"remaining_time_ms"`
}

// Remaining returns the server baseline as a duration, never negative.
func (p *ExamPaper) Remaining() time.Duration {
	if p.RemainingTimeMs <= 0 {
		return 0
	}
	return time.Duration(p.RemainingTimeMs) * time.Millisecond
}
