package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/backend"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/recovery"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/validator"
	"github.com/stemsi/exstem-proctor/internal/violation"
)

// SessionHandler exposes the live exam session to the exam page.
type SessionHandler struct {
	proctor *service.ProctorService
	log     zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(proctor *service.ProctorService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		proctor: proctor,
		log:     log.With().Str("component", "session_handler").Logger(),
	}
}

// SubmitRequest must carry the student's explicit confirmation.
type SubmitRequest struct {
	Confirm bool `json:"confirm" binding:"required"`
}

// OpenSession godoc
// POST /api/v1/exams/:exam_id/session
// Joins or resumes the exam. Repeated calls for the same exam are idempotent.
func (h *SessionHandler) OpenSession(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	view, err := h.proctor.Open(c.Request.Context(), examID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// GetSession godoc
// GET /api/v1/session
// Returns the snapshot with the question paper and local answers.
func (h *SessionHandler) GetSession(c *gin.Context) {
	ctrl, err := h.proctor.Current()
	if err != nil {
		h.fail(c, err)
		return
	}

	view, err := ctrl.View(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// SaveAnswer godoc
// PUT /api/v1/session/answers/:question_id
// Applies the edit locally; persistence happens in the background.
func (h *SessionHandler) SaveAnswer(c *gin.Context) {
	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var value model.AnswerValue
	if fields := validator.Bind(c, &value); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl, err := h.proctor.Current()
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := ctrl.EditAnswer(c.Request.Context(), questionID, value); err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"question_id": questionID})
}

// ReportSignal godoc
// POST /api/v1/session/signals
// Feeds a raw environment signal to the violation monitor. The page must
// cancel the default action when block is true.
func (h *SessionHandler) ReportSignal(c *gin.Context) {
	var sig violation.Signal
	if fields := validator.Bind(c, &sig); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl, err := h.proctor.Current()
	if err != nil {
		h.fail(c, err)
		return
	}

	verdict, err := ctrl.Signal(c.Request.Context(), sig)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, verdict)
}

// Submit godoc
// POST /api/v1/session/submit
// Submits the exam after the student confirmed.
func (h *SessionHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl, err := h.proctor.Current()
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := ctrl.Submit(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}

	snap, err := ctrl.Snapshot(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, snap)
}

// GetResult godoc
// GET /api/v1/session/result
// Returns the final score breakdown once the exam is submitted.
func (h *SessionHandler) GetResult(c *gin.Context) {
	ctrl, err := h.proctor.Current()
	if err != nil {
		h.fail(c, err)
		return
	}

	result, err := ctrl.Result(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// fail maps runtime errors to the response envelope.
func (h *SessionHandler) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Session request failed")
	}
	// Backend messages are already written for students.
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		response.FailWithMessage(c, status, code, apiErr.Message)
		return
	}
	response.Fail(c, status, code)
}

func statusFor(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrNoActiveSession):
		return http.StatusNotFound, response.ErrNoActiveSession
	case errors.Is(err, session.ErrNotActive):
		return http.StatusConflict, response.ErrSessionNotActive
	case errors.Is(err, session.ErrUnknownQuestion):
		return http.StatusNotFound, response.ErrQuestionNotFound
	case errors.Is(err, session.ErrInvalidAnswer):
		return http.StatusBadRequest, response.ErrInvalidAnswer
	case errors.Is(err, session.ErrNotSubmitted):
		return http.StatusConflict, response.ErrSessionNotSubmitted
	case errors.Is(err, session.ErrStopped):
		return http.StatusServiceUnavailable, response.ErrSessionStopped
	case recovery.IsTimeout(err), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, response.ErrBackendUnavailable
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway, response.ErrBackendUnavailable
	}
	return http.StatusInternalServerError, response.ErrInternal
}
