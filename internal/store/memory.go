package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// MemoryJournal keeps the journal in process memory. It survives a
// controller restart but not a process restart.
type MemoryJournal struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]map[uuid.UUID]model.AnswerRecord
}

// NewMemoryJournal returns an empty journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{sessions: make(map[uuid.UUID]map[uuid.UUID]model.AnswerRecord)}
}

var _ Journal = (*MemoryJournal)(nil)

func (j *MemoryJournal) Put(_ context.Context, sessionID uuid.UUID, rec model.AnswerRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	recs, ok := j.sessions[sessionID]
	if !ok {
		recs = make(map[uuid.UUID]model.AnswerRecord)
		j.sessions[sessionID] = recs
	}
	rec.Value = rec.Value.Clone()
	recs[rec.QuestionID] = rec
	return nil
}

func (j *MemoryJournal) Remove(_ context.Context, sessionID, questionID uuid.UUID, seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	recs := j.sessions[sessionID]
	if rec, ok := recs[questionID]; ok && rec.Seq <= seq {
		delete(recs, questionID)
	}
	return nil
}

func (j *MemoryJournal) Load(_ context.Context, sessionID uuid.UUID) ([]model.AnswerRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	recs := j.sessions[sessionID]
	out := make([]model.AnswerRecord, 0, len(recs))
	for _, rec := range recs {
		rec.Value = rec.Value.Clone()
		out = append(out, rec)
	}
	return out, nil
}

func (j *MemoryJournal) Clear(_ context.Context, sessionID uuid.UUID) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.sessions, sessionID)
	return nil
}
