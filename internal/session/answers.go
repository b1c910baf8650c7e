package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/answer"
	"github.com/stemsi/exstem-proctor/internal/backend"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/recovery"
)

// EditAnswer applies an answer edit locally and persists it in the
// background. Edits are only accepted while ACTIVE and no automatic
// submit is owed.
func (c *Controller) EditAnswer(ctx context.Context, questionID uuid.UUID, value model.AnswerValue) error {
	var err error
	if callErr := c.call(ctx, func() { err = c.editAnswer(questionID, value) }); callErr != nil {
		return callErr
	}
	return err
}

func (c *Controller) editAnswer(qid uuid.UUID, value model.AnswerValue) error {
	if c.state != StateActive || c.autoDue() {
		return ErrNotActive
	}
	q, ok := c.questions[qid]
	if !ok {
		return ErrUnknownQuestion
	}
	if err := validateAnswer(q, value); err != nil {
		return err
	}
	c.applyEdit(qid, value)
	c.publish()
	return nil
}

func validateAnswer(q *model.Question, v model.AnswerValue) error {
	switch q.QuestionType {
	case model.QuestionTypeEssay:
		if len(v.ChoiceIDs) > 0 {
			return ErrInvalidAnswer
		}
	case model.QuestionTypeMultipleChoice:
		if len(v.ChoiceIDs) > 1 || v.Text != "" {
			return ErrInvalidAnswer
		}
	default:
		if v.Text != "" {
			return ErrInvalidAnswer
		}
	}
	for _, id := range v.ChoiceIDs {
		if !q.HasChoice(id) {
			return ErrInvalidAnswer
		}
	}
	return nil
}

// applyEdit updates the local cache, journals the edit and starts the
// persist call.
func (c *Controller) applyEdit(qid uuid.UUID, value model.AnswerValue) {
	req, err := c.answers.Edit(qid, value)
	if errors.Is(err, answer.ErrPersistenceDisabled) {
		c.log.Debug().Str("question_id", qid.String()).Msg("Persistence disabled, edit kept locally")
		return
	}
	sid := c.session.ID
	if rec, ok := c.answers.Get(qid); ok {
		c.journal.Put(sid, rec)
	}
	c.goBackend(func(ctx context.Context) func() {
		err := c.backend.SubmitAnswer(ctx, sid, backend.AnswerRequest{
			QuestionID:  req.QuestionID,
			AnswerValue: req.Value,
			Seq:         req.Seq,
		})
		return func() { c.persisted(req, err) }
	}, false)
}

func (c *Controller) persisted(req answer.PersistRequest, err error) {
	log := c.log.With().Str("question_id", req.QuestionID.String()).Uint64("seq", req.Seq).Logger()
	if err == nil {
		switch c.answers.Ack(req.QuestionID, req.Seq) {
		case answer.AckApplied:
			c.journal.Remove(c.session.ID, req.QuestionID, req.Seq)
			c.publish()
		case answer.AckStale:
			log.Debug().Msg("Discarded stale answer ack")
		}
		return
	}

	classified := recovery.Classify(err)
	var (
		expired    *recovery.SessionExpiredError
		validation *recovery.ValidationError
	)
	switch {
	case errors.As(classified, &expired):
		log.Warn().Err(err).Msg("Answer rejected, session expired")
		c.answers.Disable()
		c.serverClosed(expired)
	case errors.As(classified, &validation) &&
		(validation.Reason == recovery.ReasonExamClosed || validation.Reason == recovery.ReasonExamNotAvailable):
		log.Warn().Err(err).Msg("Answer rejected, exam closed")
		c.answers.Disable()
		c.serverClosed(nil)
	default:
		if !c.answers.Fail(req.QuestionID, req.Seq) {
			log.Debug().Err(err).Msg("Superseded answer persist failed")
			return
		}
		log.Warn().Err(err).Msg("Failed to save answer")
		c.notify(NoticeWarning, CodeAnswerNotSaved, "Jawaban belum tersimpan ke server. Jawaban akan dikirim ulang saat Anda mengubahnya.")
		c.publish()
	}
}

// serverClosed handles a session the server closed outside of a submit.
// An in-flight submit decides the outcome itself.
func (c *Controller) serverClosed(expired *recovery.SessionExpiredError) {
	if c.state != StateActive {
		return
	}
	if ref := submittedRef(expired, c.session.ID); ref != nil {
		c.result = ref
		c.notify(NoticeInfo, CodeSubmitted, "Ujian Anda sudah dikumpulkan oleh sistem.")
		c.finish(StateSubmitted)
		return
	}
	c.notify(NoticeError, CodeSessionExpired, "Sesi ujian telah berakhir.")
	c.finish(StateExpired)
}

// submittedRef returns the result reference an expiry carries, if the
// server reports the session as submitted.
func submittedRef(expired *recovery.SessionExpiredError, sid uuid.UUID) *model.ResultRef {
	if expired == nil {
		return nil
	}
	if expired.Result != nil {
		return expired.Result
	}
	var apiErr *backend.APIError
	if errors.As(expired.Err, &apiErr) && apiErr.Code == backend.CodeSessionCompleted {
		return &model.ResultRef{SessionID: sid}
	}
	return nil
}
