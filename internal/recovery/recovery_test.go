package recovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/backend"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiErr(status int, code, msg string) error {
	return fmt.Errorf("submit exam: %w", &backend.APIError{Status: status, Code: code, Message: msg})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   string
		reason Reason
	}{
		{"expired code", apiErr(http.StatusGone, backend.CodeSessionExpired, ""), "expired", ""},
		{"expired message", apiErr(http.StatusBadRequest, "", "Session has expired"), "expired", ""},
		{"expired indonesian", apiErr(http.StatusBadRequest, "", "Waktu habis, sesi ditutup"), "expired", ""},
		{"not started code", apiErr(http.StatusBadRequest, backend.CodeExamNotStarted, ""), "validation", ReasonExamNotStarted},
		{"not started message", apiErr(http.StatusBadRequest, "", "Ujian belum dimulai"), "validation", ReasonExamNotStarted},
		{"closed code", apiErr(http.StatusBadRequest, backend.CodeExamClosed, ""), "validation", ReasonExamClosed},
		{"closed message", apiErr(http.StatusForbidden, "", "exam window closed"), "validation", ReasonExamClosed},
		{"not available code", apiErr(http.StatusBadRequest, backend.CodeExamNotAvailable, "Ujian ini saat ini tidak tersedia."), "validation", ReasonExamNotAvailable},
		{"not available message", apiErr(http.StatusBadRequest, "", "Ujian ini saat ini tidak tersedia."), "validation", ReasonExamNotAvailable},
		{"not available english", apiErr(http.StatusBadRequest, "", "exam is not available for joining"), "validation", ReasonExamNotAvailable},
		{"not published code", apiErr(http.StatusNotFound, backend.CodeExamNotPublished, "Ujian ini belum dipublikasikan."), "validation", ReasonExamNotAvailable},
		{"balance code", apiErr(http.StatusPaymentRequired, backend.CodeInsufficientBalance, ""), "validation", ReasonInsufficientBalance},
		{"balance message", apiErr(http.StatusBadRequest, "", "Saldo tidak cukup"), "validation", ReasonInsufficientBalance},
		{"server error", apiErr(http.StatusServiceUnavailable, "", "exam closed for maintenance"), "transient", ""},
		{"unknown 4xx", apiErr(http.StatusBadRequest, "VALIDATION_ERROR", "bad payload"), "transient", ""},
		{"network", errors.New("dial tcp: connection refused"), "transient", ""},
		{"deadline", context.DeadlineExceeded, "transient", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			var (
				v  *ValidationError
				s  *SessionExpiredError
				tr *TransientError
			)
			switch tt.kind {
			case "expired":
				assert.True(t, errors.As(got, &s), "got %T", got)
			case "validation":
				require.True(t, errors.As(got, &v), "got %T", got)
				assert.Equal(t, tt.reason, v.Reason)
			case "transient":
				assert.True(t, errors.As(got, &tr), "got %T", got)
			}
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassify_EmbeddedResultWins(t *testing.T) {
	ref := &model.ResultRef{SessionID: uuid.New()}
	err := &backend.APIError{Status: http.StatusBadRequest, Code: backend.CodeExamClosed, Result: ref}

	var s *SessionExpiredError
	require.True(t, errors.As(Classify(err), &s))
	assert.Same(t, ref, s.Result)
}

func TestClassify_Idempotent(t *testing.T) {
	assert.Nil(t, Classify(nil))

	first := Classify(apiErr(http.StatusGone, backend.CodeSessionExpired, ""))
	assert.Same(t, first, Classify(first))
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(fmt.Errorf("wrap: %w", context.DeadlineExceeded)))
	assert.False(t, IsTimeout(errors.New("boom")))
}
