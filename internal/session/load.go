package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/backend"
	"github.com/stemsi/exstem-proctor/internal/countdown"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/recovery"
	"golang.org/x/sync/errgroup"
)

// loaded is everything fetched while LOADING.
type loaded struct {
	session *model.ExamSession
	paper   *model.ExamPaper
	answers []model.PersistedAnswer
	journal []model.AnswerRecord
}

// Load joins or resumes the exam session and waits until the controller
// leaves LOADING. It only loads from UNINITIALIZED or from FAILED after a
// transient error; on an ACTIVE session it resyncs in the background. The
// outcome, including FAILED, is reported in the returned snapshot.
func (c *Controller) Load(ctx context.Context) (Snapshot, error) {
	var wait chan struct{}
	if err := c.call(ctx, func() { wait = c.beginLoad() }); err != nil {
		return Snapshot{}, err
	}
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-c.done:
			return Snapshot{}, ErrStopped
		}
	}
	return c.Snapshot(ctx)
}

func (c *Controller) beginLoad() chan struct{} {
	switch {
	case c.state == StateLoading:
	case c.state == StateActive:
		sid := c.session.ID
		c.goBackend(func(ctx context.Context) func() { return c.fetchRemaining(ctx, sid) }, false)
		return nil
	case c.state == StateUninitialized, c.state == StateFailed && c.retryable:
		c.setState(StateLoading)
		c.notice = nil
		c.retryable = false
		c.goBackend(c.fetch, false)
		c.publish()
	default:
		return nil
	}
	w := make(chan struct{})
	c.loadWaiters = append(c.loadWaiters, w)
	return w
}

// fetch runs off the loop.
func (c *Controller) fetch(ctx context.Context) func() {
	sess, err := c.backend.GetCurrentSession(ctx, c.examID)
	if errors.Is(err, backend.ErrSessionNotFound) {
		sess, err = c.backend.StartSession(ctx, c.examID)
	}
	if err != nil {
		return func() { c.loadFailed(err) }
	}
	if sess.Status == model.SessionStatusCompleted {
		return func() { c.loadCompleted(sess) }
	}

	out := &loaded{session: sess}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		paper, err := c.backend.GetSessionQuestions(gctx, sess.ID)
		if err != nil {
			return fmt.Errorf("get session questions: %w", err)
		}
		out.paper = paper
		return nil
	})
	g.Go(func() error {
		answers, err := c.backend.GetSessionAnswers(gctx, sess.ID)
		if err != nil {
			return fmt.Errorf("get session answers: %w", err)
		}
		out.answers = answers
		return nil
	})
	g.Go(func() error {
		recs, err := c.journal.Load(gctx, sess.ID)
		if err != nil {
			c.log.Warn().Err(err).Msg("Failed to read answer journal, continuing without it")
			return nil
		}
		out.journal = recs
		return nil
	})
	if err := g.Wait(); err != nil {
		return func() { c.loadFailed(err) }
	}
	return func() { c.activate(out) }
}

// fetchRemaining runs off the loop. It re-reads the server's remaining
// time of a live session.
func (c *Controller) fetchRemaining(ctx context.Context, sid uuid.UUID) func() {
	paper, err := c.backend.GetSessionQuestions(ctx, sid)
	return func() { c.resynced(paper, err) }
}

// resynced lowers the countdown to the server's value and resends answers
// whose latest edit never got acknowledged.
func (c *Controller) resynced(paper *model.ExamPaper, err error) {
	if c.state != StateActive {
		return
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to resync remaining time")
	} else {
		before := c.timer.Remaining()
		c.timer.Rebase(paper.Remaining(), c.clock.Now())
		if after := c.timer.Remaining(); after != before {
			c.log.Info().
				Int64("from_ms", before.Milliseconds()).
				Int64("to_ms", after.Milliseconds()).
				Msg("Countdown rebased to server time")
		}
	}
	c.resendUnconfirmed()
	c.publish()
}

func (c *Controller) resendUnconfirmed() {
	if c.answers.Disabled() {
		return
	}
	for _, rec := range c.answers.Unconfirmed() {
		c.log.Debug().Str("question_id", rec.QuestionID.String()).Msg("Resending unconfirmed answer")
		c.applyEdit(rec.QuestionID, rec.Value)
	}
}

func (c *Controller) releaseLoadWaiters() {
	for _, w := range c.loadWaiters {
		close(w)
	}
	c.loadWaiters = nil
}

func (c *Controller) activate(l *loaded) {
	if c.state != StateLoading {
		return
	}
	defer c.releaseLoadWaiters()

	c.session = l.session
	c.session.Baseline = l.paper.Remaining()
	c.paper = l.paper
	c.questions = make(map[uuid.UUID]*model.Question, len(l.paper.Questions))
	for i := range l.paper.Questions {
		q := &l.paper.Questions[i]
		c.questions[q.ID] = q
	}
	c.log = c.log.With().Str("session_id", c.session.ID.String()).Logger()

	c.replayJournal(l.journal, l.answers)
	c.answers.Rehydrate(l.answers)

	c.timer = countdown.New(c.session.Baseline, c.clock.Now(), c.cfg.MinStep)
	c.setState(StateActive)
	c.monitor.Start()
	c.log.Info().
		Int64("baseline_ms", c.session.Baseline.Milliseconds()).
		Int("questions", len(c.paper.Questions)).
		Int("answers", len(l.answers)).
		Msg("Session active")

	if c.session.Baseline <= 0 {
		c.publish()
		c.notify(NoticeWarning, CodeTimeUp, "Waktu ujian telah habis. Jawaban Anda sedang dikumpulkan.")
		c.triggerAuto("time_up")
		return
	}
	c.startTicker()
	c.publish()
}

// replayJournal re-applies journaled edits the backend never confirmed.
func (c *Controller) replayJournal(recs []model.AnswerRecord, persisted []model.PersistedAnswer) {
	if len(recs) == 0 {
		return
	}
	server := make(map[uuid.UUID]model.AnswerValue, len(persisted))
	for _, a := range persisted {
		server[a.QuestionID] = a.AnswerValue
	}
	sid := c.session.ID
	for _, rec := range recs {
		if _, ok := c.questions[rec.QuestionID]; !ok {
			continue
		}
		if v, ok := server[rec.QuestionID]; ok && v.Equal(rec.Value) {
			c.journal.Remove(sid, rec.QuestionID, rec.Seq)
			continue
		}
		c.log.Info().Str("question_id", rec.QuestionID.String()).Msg("Replaying unconfirmed answer from journal")
		c.applyEdit(rec.QuestionID, rec.Value)
	}
}

func (c *Controller) loadCompleted(sess *model.ExamSession) {
	if c.state != StateLoading {
		return
	}
	defer c.releaseLoadWaiters()
	c.session = sess
	c.result = &model.ResultRef{SessionID: sess.ID, FinalScore: sess.FinalScore}
	c.log.Info().Str("session_id", sess.ID.String()).Msg("Session already completed")
	c.notify(NoticeInfo, CodeSubmitted, "Ujian ini sudah dikumpulkan.")
	c.finish(StateSubmitted)
}

func (c *Controller) loadFailed(err error) {
	if c.state != StateLoading {
		return
	}
	defer c.releaseLoadWaiters()

	classified := recovery.Classify(err)
	var (
		expired    *recovery.SessionExpiredError
		validation *recovery.ValidationError
	)
	switch {
	case errors.As(classified, &expired):
		if ref := expired.Result; ref != nil {
			c.result = ref
			c.session = &model.ExamSession{ID: ref.SessionID, ExamID: c.examID, Status: model.SessionStatusCompleted}
			c.log.Info().Str("session_id", ref.SessionID.String()).Msg("Session force-submitted by server")
			c.notify(NoticeInfo, CodeSubmitted, "Ujian Anda sudah dikumpulkan oleh sistem.")
			c.finish(StateSubmitted)
			return
		}
		c.log.Info().Err(err).Msg("Session expired before load")
		c.notify(NoticeError, CodeSessionExpired, "Sesi ujian telah berakhir.")
		c.finish(StateExpired)
	case errors.As(classified, &validation):
		c.log.Info().Str("reason", string(validation.Reason)).Msg("Exam not available")
		code, msg := validationNotice(validation.Reason)
		c.notify(NoticeInfo, code, msg)
		c.finish(StateFailed)
	default:
		c.log.Error().Err(err).Msg("Failed to load session")
		c.retryable = true
		c.notify(NoticeError, CodeLoadFailed, "Gagal memuat ujian. Periksa koneksi Anda lalu coba lagi.")
		c.finish(StateFailed)
	}
}

func validationNotice(r recovery.Reason) (string, string) {
	switch r {
	case recovery.ReasonExamNotStarted:
		return CodeExamNotStarted, "Ujian belum dimulai."
	case recovery.ReasonExamNotAvailable:
		return CodeExamNotAvailable, "Ujian ini saat ini tidak tersedia."
	case recovery.ReasonInsufficientBalance:
		return CodeInsufficientBalance, "Saldo tidak mencukupi untuk mengikuti ujian ini."
	default:
		return CodeExamClosed, "Ujian sudah ditutup."
	}
}
