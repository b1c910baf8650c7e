package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/backend"
	"github.com/stemsi/exstem-proctor/internal/clock"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testExamID     = uuid.MustParse("0f8d6f1a-8a9e-4c55-9d37-2a1b3c4d5e6f")
	testSessionID  = uuid.MustParse("1a2b3c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d")
	testQuestionID = uuid.MustParse("2b3c4d5e-6f70-4b8c-9d0e-1f2a3b4c5d6e")
)

type stubBackend struct {
	mu        sync.Mutex
	answers   map[uuid.UUID]model.AnswerValue
	submits   int
	resultErr error
}

func (b *stubBackend) StartSession(context.Context, uuid.UUID) (*model.ExamSession, error) {
	return &model.ExamSession{ID: testSessionID, ExamID: testExamID, Status: model.SessionStatusInProgress}, nil
}

func (b *stubBackend) GetCurrentSession(context.Context, uuid.UUID) (*model.ExamSession, error) {
	return nil, backend.ErrSessionNotFound
}

func (b *stubBackend) GetSessionQuestions(context.Context, uuid.UUID) (*model.ExamPaper, error) {
	return &model.ExamPaper{
		Exam: model.Exam{ID: testExamID, Title: "Fisika"},
		Questions: []model.Question{{
			ID:           testQuestionID,
			QuestionType: model.QuestionTypeMultipleChoice,
			Choices:      []model.AnswerChoice{{ID: "A"}, {ID: "B"}},
		}},
		RemainingTimeMs: 90 * 60 * 1000,
	}, nil
}

func (b *stubBackend) SubmitAnswer(_ context.Context, _ uuid.UUID, req backend.AnswerRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.answers[req.QuestionID] = req.AnswerValue
	return nil
}

func (b *stubBackend) GetSessionAnswers(context.Context, uuid.UUID) ([]model.PersistedAnswer, error) {
	return nil, nil
}

func (b *stubBackend) SubmitExam(_ context.Context, sid uuid.UUID) (*model.ResultRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submits++
	return &model.ResultRef{SessionID: sid}, nil
}

func (b *stubBackend) GetSessionResult(_ context.Context, sid uuid.UUID) (*model.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.resultErr != nil {
		return nil, b.resultErr
	}
	return &model.Result{SessionID: sid, ExamID: testExamID, Score: 100, Correct: 1, Total: 1}, nil
}

func (b *stubBackend) LogViolation(context.Context, uuid.UUID, backend.ViolationRequest) error {
	return nil
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
	Meta  response.Metadata   `json:"metadata"`
}

func setup(t *testing.T) (*gin.Engine, *stubBackend) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator.Setup()

	be := &stubBackend{answers: map[uuid.UUID]model.AnswerValue{}}
	proctor := service.NewProctorService(context.Background(), session.DefaultConfig(), service.ProctorDeps{
		Backend: be,
		Clock:   clock.NewManual(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)),
	}, zerolog.Nop())
	t.Cleanup(proctor.Close)

	h := NewSessionHandler(proctor, zerolog.Nop())
	r := gin.New()
	r.Use(response.RequestIDMiddleware())
	r.POST("/api/v1/exams/:exam_id/session", h.OpenSession)
	r.GET("/api/v1/session", h.GetSession)
	r.PUT("/api/v1/session/answers/:question_id", h.SaveAnswer)
	r.POST("/api/v1/session/signals", h.ReportSignal)
	r.POST("/api/v1/session/submit", h.Submit)
	r.GET("/api/v1/session/result", h.GetResult)
	return r, be
}

func do(t *testing.T, r *gin.Engine, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	assert.NotEmpty(t, env.Meta.RequestID)
	return w.Code, env
}

func TestSessionHandler_NoSessionYet(t *testing.T) {
	r, _ := setup(t)

	code, env := do(t, r, http.MethodGet, "/api/v1/session", "")

	assert.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.ErrNoActiveSession, env.Error.Code)
}

func TestSessionHandler_InvalidExamID(t *testing.T) {
	r, _ := setup(t)

	code, env := do(t, r, http.MethodPost, "/api/v1/exams/not-a-uuid/session", "")

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, response.ErrInvalidID, env.Error.Code)
}

func TestSessionHandler_ExamFlow(t *testing.T) {
	r, be := setup(t)

	code, env := do(t, r, http.MethodPost, "/api/v1/exams/"+testExamID.String()+"/session", "")
	require.Equal(t, http.StatusOK, code)
	var view session.View
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, session.StateActive, view.State)
	assert.Equal(t, testSessionID, view.SessionID)
	assert.Len(t, view.Questions, 1)

	code, _ = do(t, r, http.MethodPut, "/api/v1/session/answers/"+testQuestionID.String(), `{"choice_ids":["B"]}`)
	assert.Equal(t, http.StatusAccepted, code)

	code, env = do(t, r, http.MethodPut, "/api/v1/session/answers/"+uuid.NewString(), `{"text":"x"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, response.ErrQuestionNotFound, env.Error.Code)

	code, env = do(t, r, http.MethodPut, "/api/v1/session/answers/"+testQuestionID.String(), `{"choice_ids":["Z"]}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, response.ErrInvalidAnswer, env.Error.Code)

	code, env = do(t, r, http.MethodPost, "/api/v1/session/signals", `{"kind":"paste"}`)
	require.Equal(t, http.StatusOK, code)
	var verdict struct {
		Block bool   `json:"block"`
		Type  string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &verdict))
	assert.True(t, verdict.Block)
	assert.Equal(t, "copy_paste", verdict.Type)

	code, env = do(t, r, http.MethodPost, "/api/v1/session/signals", `{"kind":"teleport"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, response.ErrValidation, env.Error.Code)
	assert.Contains(t, env.Error.Fields, "kind")

	code, env = do(t, r, http.MethodGet, "/api/v1/session/result", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, response.ErrSessionNotSubmitted, env.Error.Code)

	code, _ = do(t, r, http.MethodPost, "/api/v1/session/submit", `{"confirm":false}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, r, http.MethodPost, "/api/v1/session/submit", `{"confirm":true}`)
	assert.Equal(t, http.StatusAccepted, code)

	require.Eventually(t, func() bool {
		c, env := do(t, r, http.MethodGet, "/api/v1/session/result", "")
		if c != http.StatusOK {
			return false
		}
		var res model.Result
		return json.Unmarshal(env.Data, &res) == nil && res.Score == 100
	}, 2*time.Second, 5*time.Millisecond)

	be.mu.Lock()
	defer be.mu.Unlock()
	assert.Equal(t, 1, be.submits)
	assert.Equal(t, []string{"B"}, be.answers[testQuestionID].ChoiceIDs)
}

func TestStatusFor_BackendErrors(t *testing.T) {
	status, code := statusFor(&backend.APIError{Status: http.StatusBadGateway, Message: "upstream"})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, response.ErrBackendUnavailable, code)

	status, code = statusFor(context.DeadlineExceeded)
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.Equal(t, response.ErrBackendUnavailable, code)
}

func TestSessionHandler_BackendMessageIsForwarded(t *testing.T) {
	r, be := setup(t)

	code, _ := do(t, r, http.MethodPost, "/api/v1/exams/"+testExamID.String()+"/session", "")
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, r, http.MethodPost, "/api/v1/session/submit", `{"confirm":true}`)
	require.Equal(t, http.StatusAccepted, code)

	be.mu.Lock()
	be.resultErr = &backend.APIError{Status: http.StatusServiceUnavailable, Message: "Nilai sedang dihitung."}
	be.mu.Unlock()

	require.Eventually(t, func() bool {
		c, env := do(t, r, http.MethodGet, "/api/v1/session/result", "")
		return c == http.StatusBadGateway &&
			env.Error != nil &&
			env.Error.Code == response.ErrBackendUnavailable &&
			env.Error.Message == "Nilai sedang dihitung."
	}, 2*time.Second, 5*time.Millisecond)
}
