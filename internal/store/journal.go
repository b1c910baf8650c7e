// Package store keeps the answer journal: unconfirmed answer edits that
// must survive a restart of the host shell.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Journal persists unconfirmed answer records per session.
type Journal interface {
	// Put stores rec, replacing any record of the same question.
	Put(ctx context.Context, sessionID uuid.UUID, rec model.AnswerRecord) error
	// Remove deletes the question's record if its sequence number is not
	// newer than seq.
	Remove(ctx context.Context, sessionID, questionID uuid.UUID, seq uint64) error
	// Load returns every record of the session.
	Load(ctx context.Context, sessionID uuid.UUID) ([]model.AnswerRecord, error)
	// Clear drops the session's journal.
	Clear(ctx context.Context, sessionID uuid.UUID) error
}
