// Package answer holds the optimistic answer cache of a session.
package answer

import (
	"errors"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrPersistenceDisabled is returned by Edit once the session has expired.
var ErrPersistenceDisabled = errors.New("answer persistence disabled")

// PersistRequest is one outgoing submit-answer call.
type PersistRequest struct {
	QuestionID uuid.UUID
	Value      model.AnswerValue
	Seq        uint64
}

// AckResult describes what an acknowledgment did to the local record.
type AckResult int

const (
	// AckApplied confirmed the latest local edit.
	AckApplied AckResult = iota
	// AckStale acknowledged an edit that has since been superseded.
	AckStale
	// AckUnknown referred to a question with no local record.
	AckUnknown
)

// Synchronizer keeps one record per question. Every edit is applied
// locally first and gets the next sequence number of its question; an
// acknowledgment only confirms the record when it carries the latest
// sequence number, so a slow echo of an older edit cannot win.
//
// Not safe for concurrent use.
type Synchronizer struct {
	records  map[uuid.UUID]*model.AnswerRecord
	disabled bool
}

// NewSynchronizer returns an empty cache.
func NewSynchronizer() *Synchronizer {
	return &Synchronizer{records: make(map[uuid.UUID]*model.AnswerRecord)}
}

// Edit applies value locally and returns the persist call to issue. When
// persistence is disabled the local value is still applied.
func (s *Synchronizer) Edit(qid uuid.UUID, value model.AnswerValue) (PersistRequest, error) {
	rec, ok := s.records[qid]
	if !ok {
		rec = &model.AnswerRecord{QuestionID: qid}
		s.records[qid] = rec
	}
	rec.Seq++
	rec.Value = value.Clone()
	rec.Confirmed = false

	if s.disabled {
		return PersistRequest{}, ErrPersistenceDisabled
	}
	return PersistRequest{QuestionID: qid, Value: rec.Value.Clone(), Seq: rec.Seq}, nil
}

// Ack records a successful persist of sequence seq.
func (s *Synchronizer) Ack(qid uuid.UUID, seq uint64) AckResult {
	rec, ok := s.records[qid]
	if !ok {
		return AckUnknown
	}
	if seq > rec.AckedSeq {
		rec.AckedSeq = seq
	}
	if seq != rec.Seq {
		return AckStale
	}
	rec.Confirmed = true
	return AckApplied
}

// Fail records a failed persist. The local value is kept; it reports
// whether the failure concerned the latest edit.
func (s *Synchronizer) Fail(qid uuid.UUID, seq uint64) bool {
	rec, ok := s.records[qid]
	if !ok {
		return false
	}
	return seq == rec.Seq
}

// Disable stops further persistence for the session.
func (s *Synchronizer) Disable() { s.disabled = true }

// Disabled reports whether persistence is off.
func (s *Synchronizer) Disabled() bool { return s.disabled }

// Rehydrate loads answers persisted by the backend. Questions that
// already have a local record keep it.
func (s *Synchronizer) Rehydrate(answers []model.PersistedAnswer) {
	for _, a := range answers {
		if _, ok := s.records[a.QuestionID]; ok {
			continue
		}
		s.records[a.QuestionID] = &model.AnswerRecord{
			QuestionID: a.QuestionID,
			Value:      a.AnswerValue.Clone(),
			Confirmed:  true,
		}
	}
}

// Get returns a copy of the record for qid.
func (s *Synchronizer) Get(qid uuid.UUID) (model.AnswerRecord, bool) {
	rec, ok := s.records[qid]
	if !ok {
		return model.AnswerRecord{}, false
	}
	out := *rec
	out.Value = rec.Value.Clone()
	return out, true
}

// Answered returns the answered flag of every question with a record.
func (s *Synchronizer) Answered() map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool, len(s.records))
	for id, rec := range s.records {
		out[id] = !rec.Value.IsEmpty()
	}
	return out
}

// Unconfirmed returns the records whose latest edit is not acknowledged.
func (s *Synchronizer) Unconfirmed() []model.AnswerRecord {
	var out []model.AnswerRecord
	for _, rec := range s.records {
		if !rec.Confirmed {
			cp := *rec
			cp.Value = rec.Value.Clone()
			out = append(out, cp)
		}
	}
	return out
}
