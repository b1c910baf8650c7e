package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "tok", 2*time.Second, zerolog.Nop())
}

func writeEnvelope(w http.ResponseWriter, status int, data any, errBody map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data":     data,
		"error":    errBody,
		"metadata": map[string]string{"request_id": "r-1"},
	})
}

func TestClient_GetSessionQuestions(t *testing.T) {
	sessionID := uuid.New()
	qid := uuid.New()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/student/sessions/"+sessionID.String()+"/questions", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, map[string]any{
			"exam":              map[string]any{"title": "Matematika"},
			"questions":         []map[string]any{{"id": qid, "question_text": "2+2?", "question_type": "MULTIPLE_CHOICE"}},
			"remaining_time_ms": 90000,
		}, nil)
	})

	paper, err := c.GetSessionQuestions(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, "Matematika", paper.Exam.Title)
	require.Len(t, paper.Questions, 1)
	assert.Equal(t, qid, paper.Questions[0].ID)
	assert.Equal(t, 90*time.Second, paper.Remaining())
}

func TestClient_ErrorWithEmbeddedResult(t *testing.T) {
	sessionID := uuid.New()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusGone, nil, map[string]any{
			"code":    CodeSessionExpired,
			"message": "session expired and was submitted",
			"result":  map[string]any{"session_id": sessionID, "final_score": 75.5},
		})
	})

	_, err := c.GetCurrentSession(context.Background(), uuid.New())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusGone, apiErr.Status)
	assert.Equal(t, CodeSessionExpired, apiErr.Code)
	require.NotNil(t, apiErr.Result)
	assert.Equal(t, sessionID, apiErr.Result.SessionID)
	require.NotNil(t, apiErr.Result.FinalScore)
	assert.InDelta(t, 75.5, *apiErr.Result.FinalScore, 0.001)
}

func TestClient_CurrentSessionNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, nil, map[string]any{"code": CodeNotFound, "message": "not found"})
	})

	_, err := c.GetCurrentSession(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestClient_CurrentSessionExamNotPublished(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, nil, map[string]any{"code": CodeExamNotPublished, "message": "Ujian ini belum dipublikasikan."})
	})

	_, err := c.GetCurrentSession(context.Background(), uuid.New())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeExamNotPublished, apiErr.Code)
}

func TestClient_SubmitAnswerBody(t *testing.T) {
	sessionID, qid := uuid.New(), uuid.New()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/student/sessions/"+sessionID.String()+"/answers/"+qid.String(), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"choice_ids":["B"],"seq":3}`, string(raw))
		writeEnvelope(w, http.StatusOK, map[string]string{"status": "saved"}, nil)
	})

	err := c.SubmitAnswer(context.Background(), sessionID, AnswerRequest{
		QuestionID:  qid,
		AnswerValue: model.AnswerValue{ChoiceIDs: []string{"B"}},
		Seq:         3,
	})
	require.NoError(t, err)
}

func TestClient_SubmitExamDefaultsResultRef(t *testing.T) {
	sessionID := uuid.New()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]any{"status": "completed"}, nil)
	})

	ref, err := c.SubmitExam(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, ref.SessionID)
}

func TestClient_ServerErrorIsTemporary(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	})

	err := c.LogViolation(context.Background(), uuid.New(), ViolationRequest{Type: model.ViolationTabSwitch})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Temporary())
	assert.Equal(t, "Bad Gateway", apiErr.Message)
}

func TestTokenSubject(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "student-42"}).SignedString([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "student-42", TokenSubject(tok))

	tok, err = jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 7}).SignedString([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "7", TokenSubject(tok))

	assert.Empty(t, TokenSubject("not-a-token"))
	assert.Empty(t, TokenSubject(""))
}
