package model

import "github.com/google/uuid"

// QuestionType distinguishes choice questions from free-text questions.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeMultipleAnswer QuestionType = "MULTIPLE_ANSWER"
	QuestionTypeEssay          QuestionType = "ESSAY"
)

// AnswerChoice is a selectable option of a choice question.
type AnswerChoice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is immutable reference data, fetched once per session.
// It never carries the correct answer.
type Question struct {
	ID           uuid.UUID      `json:"id"`
	QuestionText string         `json:"question_text"`
	QuestionType QuestionType   `json:"question_type"`
	Choices      []AnswerChoice `json:"choices,omitempty"`
	OrderNum     int            `json:"order_num"`
}

// HasChoice reports whether id is one of the question's choices.
func (q *Question) HasChoice(id string) bool {
	for _, c := range q.Choices {
		if c.ID == id {
			return true
		}
	}
	return false
}
