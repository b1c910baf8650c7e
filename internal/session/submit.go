package session

import (
	"context"
	"errors"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/recovery"
)

// Submit submits the exam on the student's confirmed request. A request
// made while a submit is already in flight is ignored.
func (c *Controller) Submit(ctx context.Context) error {
	var err error
	if callErr := c.call(ctx, func() { err = c.submitManual() }); callErr != nil {
		return callErr
	}
	return err
}

func (c *Controller) submitManual() error {
	if c.state == StateSubmitted {
		return nil
	}
	err := c.startSubmit(StateManualSubmitting)
	if errors.Is(err, recovery.ErrSubmitInFlight) {
		c.log.Debug().Msg("Manual submit ignored, submit in flight")
		return nil
	}
	return err
}

// triggerAuto is the single entry of both automatic triggers.
func (c *Controller) triggerAuto(reason string) {
	err := c.startSubmit(StateAutoSubmitting)
	switch {
	case errors.Is(err, recovery.ErrSubmitInFlight):
		c.log.Debug().Str("reason", reason).Msg("Auto submit ignored, submit in flight")
	case err != nil:
		c.log.Debug().Str("reason", reason).Str("state", string(c.state)).Msg("Auto submit ignored")
	default:
		c.log.Info().Str("reason", reason).Msg("Auto submit started")
	}
}

// startSubmit is the only place submit-exam is called from.
func (c *Controller) startSubmit(next State) error {
	if c.submitting {
		return recovery.ErrSubmitInFlight
	}
	if c.state != StateActive {
		return ErrNotActive
	}
	c.submitting = true
	c.setState(next)
	c.publish()

	sid := c.session.ID
	// Submit is never cancelled: it outlives shutdown, bounded by the call timeout.
	c.goBackend(func(ctx context.Context) func() {
		ref, err := c.backend.SubmitExam(ctx, sid)
		return func() { c.submitted(ref, err) }
	}, true)
	return nil
}

func (c *Controller) submitted(ref *model.ResultRef, err error) {
	if !c.submitting {
		return
	}
	if err == nil {
		if ref == nil {
			ref = &model.ResultRef{SessionID: c.session.ID}
		}
		c.result = ref
		c.log.Info().Msg("Exam submitted")
		c.notify(NoticeInfo, CodeSubmitted, "Ujian berhasil dikumpulkan.")
		c.finish(StateSubmitted)
		return
	}

	classified := recovery.Classify(err)
	var (
		expired    *recovery.SessionExpiredError
		validation *recovery.ValidationError
	)
	switch {
	case errors.As(classified, &expired):
		if ref := submittedRef(expired, c.session.ID); ref != nil {
			c.result = ref
			c.log.Info().Msg("Session already submitted by server")
			c.notify(NoticeInfo, CodeSubmitted, "Ujian Anda sudah dikumpulkan oleh sistem.")
			c.finish(StateSubmitted)
			return
		}
		c.log.Warn().Err(err).Msg("Submit rejected, session expired")
		c.notify(NoticeError, CodeSessionExpired, "Sesi ujian telah berakhir.")
		c.finish(StateExpired)
	case errors.As(classified, &validation):
		c.log.Warn().Err(err).Str("reason", string(validation.Reason)).Msg("Submit rejected")
		code, msg := validationNotice(validation.Reason)
		c.notify(NoticeError, code, msg)
		c.finish(StateExpired)
	default:
		c.log.Error().Err(err).Msg("Failed to submit exam")
		c.submitting = false
		c.setState(StateActive)
		if c.autoDue() {
			c.notify(NoticeError, CodeSubmitFailed, "Gagal mengumpulkan ujian. Pengumpulan akan dicoba ulang otomatis.")
			c.rearmAuto()
		} else {
			c.notify(NoticeError, CodeSubmitFailed, "Gagal mengumpulkan ujian. Periksa koneksi Anda lalu coba lagi.")
		}
		c.publish()
	}
}
