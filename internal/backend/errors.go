package backend

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Error codes the Backend Service uses for exam-session failures.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeSessionExpired      = "SESSION_EXPIRED"
	CodeSessionCompleted    = "SESSION_COMPLETED"
	CodeExamNotStarted      = "EXAM_NOT_STARTED"
	CodeExamClosed          = "EXAM_CLOSED"
	CodeExamNotAvailable    = "EXAM_NOT_AVAILABLE"
	CodeExamNotPublished    = "EXAM_NOT_PUBLISHED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
)

// APIError is a non-2xx response from the Backend Service.
type APIError struct {
	Status  int
	Code    string
	Message string
	// Result is set when the backend embedded the result of a session it
	// already force-submitted.
	Result *model.ResultRef
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend %d: %s", e.Status, e.Message)
}

// Temporary reports whether retrying the same call later may succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError ||
		e.Status == http.StatusTooManyRequests ||
		e.Status == http.StatusRequestTimeout
}

// errorBody mirrors the error object of the response envelope.
type errorBody struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result,omitempty"`
}

func (b *errorBody) toAPIError(status int) *APIError {
	apiErr := &APIError{Status: status, Code: b.Code, Message: b.Message}
	if len(b.Result) > 0 && string(b.Result) != "null" {
		var ref model.ResultRef
		if err := json.Unmarshal(b.Result, &ref); err == nil {
			apiErr.Result = &ref
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
