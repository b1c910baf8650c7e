// Package session runs one proctored exam attempt: it owns the state
// machine and coordinates the countdown, the violation monitor and the
// answer cache on a single event-loop goroutine.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/answer"
	"github.com/stemsi/exstem-proctor/internal/backend"
	"github.com/stemsi/exstem-proctor/internal/clock"
	"github.com/stemsi/exstem-proctor/internal/countdown"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/violation"
)

var (
	// ErrStopped is returned once Run has exited.
	ErrStopped = errors.New("session controller stopped")
	// ErrNotActive rejects answer edits and submits outside ACTIVE.
	ErrNotActive = errors.New("session is not active")
	// ErrUnknownQuestion rejects edits for a question not in the paper.
	ErrUnknownQuestion = errors.New("unknown question")
	// ErrInvalidAnswer rejects choice ids the question does not offer.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrNotSubmitted is returned by Result before SUBMITTED.
	ErrNotSubmitted = errors.New("session not submitted")
)

const eventQueueSize = 256

// Config tunes a Controller.
type Config struct {
	Monitor      violation.Config
	TickInterval time.Duration
	MinStep      time.Duration
	// CallTimeout bounds every Backend Service call.
	CallTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Monitor:      violation.DefaultConfig(),
		TickInterval: time.Second,
		MinStep:      countdown.DefaultMinStep,
		CallTimeout:  10 * time.Second,
	}
}

// ViolationSink delivers violation events to the Backend Service without
// blocking.
type ViolationSink interface {
	Report(sessionID uuid.UUID, ev model.ViolationEvent) bool
}

// Journal mirrors unconfirmed answer edits. Put, Remove and Clear must not
// block for long; Load is called off the event loop.
type Journal interface {
	Put(sessionID uuid.UUID, rec model.AnswerRecord)
	Remove(sessionID, questionID uuid.UUID, seq uint64)
	Clear(sessionID uuid.UUID)
	Load(ctx context.Context, sessionID uuid.UUID) ([]model.AnswerRecord, error)
}

// Deps are the collaborators of a Controller. Backend is required.
type Deps struct {
	Backend  backend.Service
	Clock    clock.Clock
	Reporter ViolationSink
	Journal  Journal
	Observer Observer
	Logger   zerolog.Logger
}

// Controller is the session state machine. Every exported method is safe
// for concurrent use; the work itself runs on the goroutine started by Run.
type Controller struct {
	cfg     Config
	examID  uuid.UUID
	backend backend.Service
	clock   clock.Clock
	sink    ViolationSink
	journal Journal
	obs     Observer
	log     zerolog.Logger

	events  chan func()
	done    chan struct{}
	runOnce sync.Once
	wg      sync.WaitGroup

	// Owned by the event loop.
	ctx         context.Context
	state       State
	session     *model.ExamSession
	paper       *model.ExamPaper
	questions   map[uuid.UUID]*model.Question
	timer       *countdown.Timer
	tickTimer   clock.Timer
	retryTimer  clock.Timer
	monitor     *violation.Monitor
	answers     *answer.Synchronizer
	submitting  bool
	result      *model.ResultRef
	notice      *Notice
	retryable   bool
	loadWaiters []chan struct{}
}

// New creates a controller for examID in UNINITIALIZED. Call Run before
// any other method.
func New(examID uuid.UUID, cfg Config, deps Deps) *Controller {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.MinStep <= 0 {
		cfg.MinStep = def.MinStep
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Journal == nil {
		deps.Journal = nopJournal{}
	}

	c := &Controller{
		cfg:     cfg,
		examID:  examID,
		backend: deps.Backend,
		clock:   deps.Clock,
		sink:    deps.Reporter,
		journal: deps.Journal,
		obs:     deps.Observer,
		log:     deps.Logger.With().Str("component", "session_controller").Str("exam_id", examID.String()).Logger(),
		events:  make(chan func(), eventQueueSize),
		done:    make(chan struct{}),
		ctx:     context.Background(),
		state:   StateUninitialized,
		answers: answer.NewSynchronizer(),
	}

	var rep violation.Reporter
	if c.sink != nil {
		rep = violation.ReporterFunc(c.reportViolation)
	}
	c.monitor = violation.NewMonitor(cfg.Monitor, c.clock, c.dispatch, escalator{c}, rep, c.log)
	return c
}

// ExamID returns the exam this controller was created for.
func (c *Controller) ExamID() uuid.UUID { return c.examID }

// Done is closed when Run has returned.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Run drives the event loop until ctx is cancelled. In-flight backend
// calls are awaited before it returns.
func (c *Controller) Run(ctx context.Context) error {
	first := false
	c.runOnce.Do(func() { first = true })
	if !first {
		return errors.New("session controller already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.ctx = runCtx

	c.log.Debug().Msg("Controller started")
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			cancel()
			close(c.done)
			c.wg.Wait()
			c.log.Debug().Msg("Controller stopped")
			return ctx.Err()
		case f := <-c.events:
			f()
		}
	}
}

func (c *Controller) shutdown() {
	c.stopTicker()
	c.monitor.Stop()
	c.releaseLoadWaiters()
}

// post queues f for the event loop. It reports false once the loop is gone.
func (c *Controller) post(f func()) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- f:
		return true
	case <-c.done:
		return false
	}
}

// dispatch is the violation monitor's route back onto the loop.
func (c *Controller) dispatch(f func()) { c.post(f) }

// call runs f on the event loop and waits for it.
func (c *Controller) call(ctx context.Context, f func()) error {
	reply := make(chan struct{})
	if !c.post(func() { f(); close(reply) }) {
		return ErrStopped
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// goBackend runs a backend call off the loop and posts its completion.
func (c *Controller) goBackend(fn func(ctx context.Context) func(), detached bool) {
	parent := c.ctx
	if detached {
		parent = context.WithoutCancel(parent)
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(parent, c.cfg.CallTimeout)
		defer cancel()
		if complete := fn(ctx); complete != nil {
			c.post(complete)
		}
	}()
}

// Snapshot returns the current render state.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := c.call(ctx, func() { s = c.snapshot() })
	return s, err
}

// View returns the snapshot together with the question paper and the
// locally held answers.
func (c *Controller) View(ctx context.Context) (View, error) {
	var v View
	err := c.call(ctx, func() {
		v.Snapshot = c.snapshot()
		v.Answers = make(map[uuid.UUID]model.AnswerValue)
		v.ViolationLog = c.monitor.Events()
		if c.paper == nil {
			return
		}
		exam := c.paper.Exam
		v.Exam = &exam
		v.Questions = c.paper.Questions
		for id := range c.questions {
			if rec, ok := c.answers.Get(id); ok {
				v.Answers[id] = rec.Value
			}
		}
	})
	return v, err
}

// Signal feeds one raw environment signal to the violation monitor and
// returns whether the UI must block the default action.
func (c *Controller) Signal(ctx context.Context, sig violation.Signal) (violation.Verdict, error) {
	var v violation.Verdict
	err := c.call(ctx, func() {
		before := c.monitor.Count()
		v = c.monitor.Handle(sig)
		if c.monitor.Count() != before {
			c.publish()
		}
	})
	return v, err
}

// Result fetches the final score breakdown of a submitted session.
func (c *Controller) Result(ctx context.Context) (*model.Result, error) {
	var (
		state State
		sid   uuid.UUID
	)
	if err := c.call(ctx, func() {
		state = c.state
		if c.session != nil {
			sid = c.session.ID
		}
	}); err != nil {
		return nil, err
	}
	if state != StateSubmitted {
		return nil, ErrNotSubmitted
	}
	return c.backend.GetSessionResult(ctx, sid)
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		State:      c.state,
		ExamID:     c.examID,
		Violations: c.monitor.Count(),
		Threshold:  c.monitor.Threshold(),
		Answered:   c.answers.Answered(),
		Submitting: c.submitting,
		Result:     c.result,
		Notice:     c.notice,
	}
	if c.session != nil {
		s.SessionID = c.session.ID
	}
	if c.timer != nil {
		s.RemainingMs = c.timer.Remaining().Milliseconds()
	}
	return s
}

func (c *Controller) publish() {
	c.obs.OnSnapshot(c.snapshot())
}

func (c *Controller) notify(kind NoticeKind, code, msg string) {
	n := Notice{Kind: kind, Code: code, Message: msg, At: c.clock.Now()}
	c.notice = &n
	c.obs.OnNotice(n)
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.log.Info().Str("from", string(c.state)).Str("to", string(s)).Msg("Session state changed")
	c.state = s
}

func (c *Controller) sessionID() uuid.UUID {
	if c.session == nil {
		return uuid.Nil
	}
	return c.session.ID
}

func (c *Controller) reportViolation(ev model.ViolationEvent) {
	if sid := c.sessionID(); sid != uuid.Nil {
		c.sink.Report(sid, ev)
	}
}

func (c *Controller) startTicker() {
	c.tickTimer = c.clock.AfterFunc(c.cfg.TickInterval, func() { c.post(c.onTick) })
}

func (c *Controller) stopTicker() {
	if c.tickTimer != nil {
		c.tickTimer.Stop()
		c.tickTimer = nil
	}
}

func (c *Controller) onTick() {
	c.tickTimer = nil
	if c.timer == nil || c.state.Terminal() {
		return
	}
	_, fired := c.timer.Tick(c.clock.Now())
	c.publish()
	if fired {
		c.log.Info().Msg("Countdown expired")
		c.notify(NoticeWarning, CodeTimeUp, "Waktu ujian telah habis. Jawaban Anda sedang dikumpulkan.")
		c.triggerAuto("time_up")
		return
	}
	c.startTicker()
}

// autoDue reports whether an automatic submit is owed: time ran out or the
// violation threshold was reached.
func (c *Controller) autoDue() bool {
	return (c.timer != nil && c.timer.Expired()) || c.monitor.Frozen()
}

// rearmAuto retries an owed automatic submit one tick after a failed one.
func (c *Controller) rearmAuto() {
	if c.retryTimer != nil {
		return
	}
	c.retryTimer = c.clock.AfterFunc(c.cfg.TickInterval, func() {
		c.post(func() {
			c.retryTimer = nil
			if c.state == StateActive {
				c.triggerAuto("retry")
			}
		})
	})
}

func (c *Controller) stopRetry() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// finish moves to a terminal state and releases every timer.
func (c *Controller) finish(s State) {
	c.setState(s)
	c.submitting = false
	c.stopTicker()
	c.stopRetry()
	c.monitor.Stop()
	if s != StateFailed {
		c.answers.Disable()
	}
	if s == StateSubmitted {
		if sid := c.sessionID(); sid != uuid.Nil {
			c.journal.Clear(sid)
		}
	}
	c.publish()
}

// escalator receives the violation monitor's escalation callbacks on the
// event loop.
type escalator struct{ c *Controller }

func (e escalator) Warn(w violation.Warning) {
	e.c.notify(NoticeWarning, CodeViolationWarning, w.Message)
}

func (e escalator) ThresholdReached(count int) {
	c := e.c
	c.log.Warn().Int("count", count).Msg("Violation threshold reached")
	c.notify(NoticeError, CodeViolationThreshold, "Batas pelanggaran tercapai. Ujian Anda dikumpulkan otomatis.")
	c.triggerAuto("violation_threshold")
}

type nopJournal struct{}

func (nopJournal) Put(uuid.UUID, model.AnswerRecord)   {}
func (nopJournal) Remove(uuid.UUID, uuid.UUID, uint64) {}
func (nopJournal) Clear(uuid.UUID)                     {}
func (nopJournal) Load(context.Context, uuid.UUID) ([]model.AnswerRecord, error) {
	return nil, nil
}
