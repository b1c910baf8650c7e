package model

import (
	"slices"

	"github.com/google/uuid"
)

// AnswerValue is the payload of an answer: selected choice ids for choice
// questions, free text for essays.
type AnswerValue struct {
	ChoiceIDs []string `json:"choice_ids,omitempty"`
	Text      string   `json:"text,omitempty"`
}

// IsEmpty reports whether the value holds neither a choice nor text.
func (v AnswerValue) IsEmpty() bool {
	return len(v.ChoiceIDs) == 0 && v.Text == ""
}

// Equal compares two values; choice order is significant.
func (v AnswerValue) Equal(o AnswerValue) bool {
	return v.Text == o.Text && slices.Equal(v.ChoiceIDs, o.ChoiceIDs)
}

// Clone returns a copy that shares no memory with v.
func (v AnswerValue) Clone() AnswerValue {
	return AnswerValue{ChoiceIDs: slices.Clone(v.ChoiceIDs), Text: v.Text}
}

// AnswerRecord is the locally held answer for one question.
type AnswerRecord struct {
	QuestionID uuid.UUID   `json:"question_id"`
	Value      AnswerValue `json:"value"`
	Confirmed  bool        `json:"confirmed"`
	// Seq is the sequence number of the latest local edit.
	Seq uint64 `json:"seq"`
	// AckedSeq is the highest sequence number the backend acknowledged.
	AckedSeq uint64 `json:"acked_seq"`
}

// PersistedAnswer is an answer as stored by the Backend Service.
type PersistedAnswer struct {
	QuestionID uuid.UUID `json:"question_id"`
	AnswerValue
}
