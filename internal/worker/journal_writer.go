package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/store"
)

const journalOpTimeout = 2 * time.Second

type journalOpKind int

const (
	journalPut journalOpKind = iota
	journalRemove
	journalClear
)

type journalOp struct {
	kind      journalOpKind
	sessionID uuid.UUID
	record    model.AnswerRecord
	question  uuid.UUID
	seq       uint64
}

// journalKey identifies the pending slot of one question. Clear uses
// uuid.Nil as the question.
type journalKey struct {
	session  uuid.UUID
	question uuid.UUID
}

func (op journalOp) key() journalKey {
	return journalKey{session: op.sessionID, question: op.question}
}

// JournalWriter applies journal mutations on a single goroutine. Callers
// never wait: pending operations are coalesced per question, so the
// backlog is bounded by the number of questions rather than by edits.
type JournalWriter struct {
	journal store.Journal
	log     zerolog.Logger

	mu      sync.Mutex
	pending []journalOp
	index   map[journalKey]int
	wake    chan struct{}
}

func NewJournalWriter(j store.Journal, log zerolog.Logger) *JournalWriter {
	return &JournalWriter{
		journal: j,
		log:     log.With().Str("component", "journal_writer").Logger(),
		index:   make(map[journalKey]int),
		wake:    make(chan struct{}, 1),
	}
}

// Put records an unconfirmed edit.
func (w *JournalWriter) Put(sessionID uuid.UUID, rec model.AnswerRecord) {
	rec.Value = rec.Value.Clone()
	w.enqueue(journalOp{kind: journalPut, sessionID: sessionID, question: rec.QuestionID, record: rec, seq: rec.Seq})
}

// Remove forgets an edit once the backend acknowledged seq.
func (w *JournalWriter) Remove(sessionID, questionID uuid.UUID, seq uint64) {
	w.enqueue(journalOp{kind: journalRemove, sessionID: sessionID, question: questionID, seq: seq})
}

// Clear drops everything journaled for the session.
func (w *JournalWriter) Clear(sessionID uuid.UUID) {
	w.mu.Lock()
	kept := w.pending[:0]
	for _, op := range w.pending {
		if op.sessionID != sessionID {
			kept = append(kept, op)
		}
	}
	w.pending = kept
	w.reindex()
	w.appendLocked(journalOp{kind: journalClear, sessionID: sessionID})
	w.mu.Unlock()
	w.signal()
}

// Load reads the journal directly. It does not observe operations still
// pending.
func (w *JournalWriter) Load(ctx context.Context, sessionID uuid.UUID) ([]model.AnswerRecord, error) {
	return w.journal.Load(ctx, sessionID)
}

// Pending returns the number of operations not yet applied.
func (w *JournalWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// enqueue merges op into the slot of its question.
func (w *JournalWriter) enqueue(op journalOp) {
	w.mu.Lock()
	if i, ok := w.index[op.key()]; ok {
		prev := w.pending[i]
		switch {
		case op.kind == journalPut:
			// A newer record overwrites whatever is stored.
			w.pending[i] = op
		case prev.kind == journalPut && op.seq < prev.seq:
			// The pending record is newer than the ack; the conditional
			// remove would not touch it.
		case prev.kind == journalRemove && op.seq < prev.seq:
		default:
			w.pending[i] = op
		}
	} else {
		w.appendLocked(op)
	}
	w.mu.Unlock()
	w.signal()
}

func (w *JournalWriter) appendLocked(op journalOp) {
	w.pending = append(w.pending, op)
	if op.kind != journalClear {
		w.index[op.key()] = len(w.pending) - 1
	}
}

func (w *JournalWriter) reindex() {
	clear(w.index)
	for i, op := range w.pending {
		if op.kind != journalClear {
			w.index[op.key()] = i
		}
	}
}

func (w *JournalWriter) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// take hands the pending batch to the writer goroutine.
func (w *JournalWriter) take() []journalOp {
	w.mu.Lock()
	defer w.mu.Unlock()
	batch := w.pending
	w.pending = nil
	clear(w.index)
	return batch
}

// Start applies pending operations until ctx is cancelled, then flushes
// what is left.
func (w *JournalWriter) Start(ctx context.Context) {
	w.log.Info().Msg("JournalWriter started")

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case <-w.wake:
			for _, op := range w.take() {
				w.apply(ctx, op)
			}
		}
	}
}

func (w *JournalWriter) apply(ctx context.Context, op journalOp) {
	opCtx, cancel := context.WithTimeout(ctx, journalOpTimeout)
	defer cancel()

	var err error
	switch op.kind {
	case journalPut:
		err = w.journal.Put(opCtx, op.sessionID, op.record)
	case journalRemove:
		err = w.journal.Remove(opCtx, op.sessionID, op.question, op.seq)
	case journalClear:
		err = w.journal.Clear(opCtx, op.sessionID)
	}
	if err != nil {
		w.log.Error().Err(err).
			Str("session_id", op.sessionID.String()).
			Int("op", int(op.kind)).
			Msg("Journal write failed")
	}
}

func (w *JournalWriter) shutdown() {
	batch := w.take()
	w.log.Info().Int("pending", len(batch)).Msg("Journal writer stopping, flushing remaining operations...")

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()

	for _, op := range batch {
		w.apply(flushCtx, op)
	}
}
