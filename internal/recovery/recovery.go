// Package recovery classifies Backend Service failures into the runtime's
// error taxonomy.
package recovery

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/stemsi/exstem-proctor/internal/backend"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Reason explains a ValidationError.
type Reason string

const (
	ReasonExamNotStarted      Reason = "EXAM_NOT_STARTED"
	ReasonExamClosed          Reason = "EXAM_CLOSED"
	ReasonExamNotAvailable    Reason = "EXAM_NOT_AVAILABLE"
	ReasonInsufficientBalance Reason = "INSUFFICIENT_BALANCE"
)

// ValidationError is terminal: the exam cannot be taken right now and
// retrying will not help.
type ValidationError struct {
	Reason Reason
	Err    error
}

func (e *ValidationError) Error() string {
	return "validation: " + string(e.Reason) + ": " + e.Err.Error()
}
func (e *ValidationError) Unwrap() error { return e.Err }

// SessionExpiredError means the server closed the session on its own.
// Result is set when the server force-submitted it.
type SessionExpiredError struct {
	Result *model.ResultRef
	Err    error
}

func (e *SessionExpiredError) Error() string { return "session expired: " + e.Err.Error() }
func (e *SessionExpiredError) Unwrap() error { return e.Err }

// TransientError is safe to retry manually.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// ErrSubmitInFlight is the concurrency-guard rejection of a second submit.
// It never reaches the user.
var ErrSubmitInFlight = errors.New("submit already in flight")

var (
	expiredKeywords = []string{"expired", "kedaluwarsa", "waktu habis", "time is up", "already submitted", "sudah dikumpulkan"}
	notStartKeyword = []string{"not yet open", "not started", "belum dimulai", "belum dibuka"}
	closedKeywords  = []string{"closed", "ended", "sudah berakhir", "ditutup"}
	unavailKeywords = []string{"tidak tersedia", "not available", "belum dipublikasikan", "not published"}
	balanceKeywords = []string{"insufficient", "balance", "saldo"}
)

// Classify maps err to *ValidationError, *SessionExpiredError or
// *TransientError. nil stays nil; already classified errors pass through.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var (
		v *ValidationError
		s *SessionExpiredError
		t *TransientError
	)
	if errors.As(err, &v) || errors.As(err, &s) || errors.As(err, &t) {
		return err
	}

	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) {
		// Timeouts, refused connections, cancelled contexts.
		return &TransientError{Err: err}
	}

	if apiErr.Result != nil {
		return &SessionExpiredError{Result: apiErr.Result, Err: err}
	}

	switch apiErr.Code {
	case backend.CodeSessionExpired, backend.CodeSessionCompleted:
		return &SessionExpiredError{Err: err}
	case backend.CodeExamNotStarted:
		return &ValidationError{Reason: ReasonExamNotStarted, Err: err}
	case backend.CodeExamClosed:
		return &ValidationError{Reason: ReasonExamClosed, Err: err}
	case backend.CodeExamNotAvailable, backend.CodeExamNotPublished:
		return &ValidationError{Reason: ReasonExamNotAvailable, Err: err}
	case backend.CodeInsufficientBalance:
		return &ValidationError{Reason: ReasonInsufficientBalance, Err: err}
	}

	if apiErr.Temporary() {
		return &TransientError{Err: err}
	}

	msg := strings.ToLower(apiErr.Message)
	switch {
	case containsAny(msg, expiredKeywords):
		return &SessionExpiredError{Err: err}
	case containsAny(msg, balanceKeywords):
		return &ValidationError{Reason: ReasonInsufficientBalance, Err: err}
	case containsAny(msg, unavailKeywords):
		return &ValidationError{Reason: ReasonExamNotAvailable, Err: err}
	case containsAny(msg, notStartKeyword):
		return &ValidationError{Reason: ReasonExamNotStarted, Err: err}
	case containsAny(msg, closedKeywords):
		return &ValidationError{Reason: ReasonExamClosed, Err: err}
	}
	return &TransientError{Err: err}
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
