package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// envelope is the standard response wrapper of the Backend Service.
type envelope struct {
	Data     json.RawMessage `json:"data"`
	Error    *errorBody      `json:"error,omitempty"`
	Metadata struct {
		RequestID string `json:"request_id"`
	} `json:"metadata"`
}

// Client talks to the Backend Service over its REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a Client. token is sent as a bearer token.
func NewClient(baseURL, token string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log.With().Str("component", "backend_client").Logger(),
	}
}

var _ Service = (*Client)(nil)

func (c *Client) StartSession(ctx context.Context, examID uuid.UUID) (*model.ExamSession, error) {
	var out struct {
		Session *model.ExamSession `json:"session"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/student/exams/"+examID.String()+"/join", struct{}{}, &out); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if out.Session == nil {
		return nil, errors.New("start session: empty session in response")
	}
	return out.Session, nil
}

func (c *Client) GetCurrentSession(ctx context.Context, examID uuid.UUID) (*model.ExamSession, error) {
	var out struct {
		Session *model.ExamSession `json:"session"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/student/exams/"+examID.String()+"/session", nil, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound &&
			(apiErr.Code == "" || apiErr.Code == CodeNotFound) && apiErr.Result == nil {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get current session: %w", err)
	}
	if out.Session == nil {
		return nil, ErrSessionNotFound
	}
	return out.Session, nil
}

func (c *Client) GetSessionQuestions(ctx context.Context, sessionID uuid.UUID) (*model.ExamPaper, error) {
	var paper model.ExamPaper
	if err := c.do(ctx, http.MethodGet, c.sessionPath(sessionID, "/questions"), nil, &paper); err != nil {
		return nil, fmt.Errorf("get session questions: %w", err)
	}
	return &paper, nil
}

func (c *Client) SubmitAnswer(ctx context.Context, sessionID uuid.UUID, req AnswerRequest) error {
	path := c.sessionPath(sessionID, "/answers/"+req.QuestionID.String())
	if err := c.do(ctx, http.MethodPut, path, req, nil); err != nil {
		return fmt.Errorf("submit answer: %w", err)
	}
	return nil
}

func (c *Client) GetSessionAnswers(ctx context.Context, sessionID uuid.UUID) ([]model.PersistedAnswer, error) {
	var out struct {
		Answers []model.PersistedAnswer `json:"answers"`
	}
	if err := c.do(ctx, http.MethodGet, c.sessionPath(sessionID, "/answers"), nil, &out); err != nil {
		return nil, fmt.Errorf("get session answers: %w", err)
	}
	return out.Answers, nil
}

func (c *Client) SubmitExam(ctx context.Context, sessionID uuid.UUID) (*model.ResultRef, error) {
	var out struct {
		Result *model.ResultRef `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "/submit"), struct{}{}, &out); err != nil {
		return nil, fmt.Errorf("submit exam: %w", err)
	}
	if out.Result == nil {
		return &model.ResultRef{SessionID: sessionID}, nil
	}
	return out.Result, nil
}

func (c *Client) GetSessionResult(ctx context.Context, sessionID uuid.UUID) (*model.Result, error) {
	var result model.Result
	if err := c.do(ctx, http.MethodGet, c.sessionPath(sessionID, "/result"), nil, &result); err != nil {
		return nil, fmt.Errorf("get session result: %w", err)
	}
	return &result, nil
}

func (c *Client) LogViolation(ctx context.Context, sessionID uuid.UUID, req ViolationRequest) error {
	if err := c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "/violations"), req, nil); err != nil {
		return fmt.Errorf("log violation: %w", err)
	}
	return nil
}

func (c *Client) sessionPath(sessionID uuid.UUID, suffix string) string {
	return "/api/v1/student/sessions/" + sessionID.String() + suffix
}

// do performs one request and decodes the envelope's data into out.
// Non-2xx responses become *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Backend call")

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if env.Error == nil {
			env.Error = &errorBody{}
		}
		return env.Error.toAPIError(resp.StatusCode)
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
