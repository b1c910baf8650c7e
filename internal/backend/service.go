// Package backend is the client of the exstem Backend Service.
package backend

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrSessionNotFound is returned by GetCurrentSession when the student has
// not joined the exam yet.
var ErrSessionNotFound = errors.New("session not found")

// Service is the set of Backend Service operations the runtime consumes.
type Service interface {
	StartSession(ctx context.Context, examID uuid.UUID) (*model.ExamSession, error)
	GetCurrentSession(ctx context.Context, examID uuid.UUID) (*model.ExamSession, error)
	GetSessionQuestions(ctx context.Context, sessionID uuid.UUID) (*model.ExamPaper, error)
	SubmitAnswer(ctx context.Context, sessionID uuid.UUID, req AnswerRequest) error
	GetSessionAnswers(ctx context.Context, sessionID uuid.UUID) ([]model.PersistedAnswer, error)
	SubmitExam(ctx context.Context, sessionID uuid.UUID) (*model.ResultRef, error)
	GetSessionResult(ctx context.Context, sessionID uuid.UUID) (*model.Result, error)
	LogViolation(ctx context.Context, sessionID uuid.UUID, req ViolationRequest) error
}

// AnswerRequest is the body of submit-answer.
type AnswerRequest struct {
	QuestionID uuid.UUID `json:"-"`
	model.AnswerValue
	Seq uint64 `json:"seq"`
}

// ViolationRequest is the body of log-violation.
type ViolationRequest struct {
	Type        model.ViolationType `json:"type"`
	Description string              `json:"description"`
	Severity    model.Severity      `json:"severity"`
	Metadata    map[string]any      `json:"metadata,omitempty"`
	RecordedAt  int64               `json:"recorded_at"`
}
