package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/backend"
	"github.com/stemsi/exstem-proctor/internal/clock"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// ErrNoActiveSession is returned before any exam has been opened.
var ErrNoActiveSession = errors.New("no active session")

// ProctorService owns the single live session controller of this host.
type ProctorService struct {
	backend  backend.Service
	cfg      session.Config
	clock    clock.Clock
	reporter session.ViolationSink
	journal  session.Journal
	observer session.Observer
	log      zerolog.Logger

	base context.Context

	mu      sync.Mutex
	current *session.Controller
	cancel  context.CancelFunc
}

// ProctorDeps groups the collaborators handed to every controller.
type ProctorDeps struct {
	Backend  backend.Service
	Clock    clock.Clock
	Reporter session.ViolationSink
	Journal  session.Journal
	Observer session.Observer
}

// NewProctorService creates a ProctorService. Controllers it starts run
// until base is cancelled or Close is called.
func NewProctorService(base context.Context, cfg session.Config, deps ProctorDeps, log zerolog.Logger) *ProctorService {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &ProctorService{
		backend:  deps.Backend,
		cfg:      cfg,
		clock:    deps.Clock,
		reporter: deps.Reporter,
		journal:  deps.Journal,
		observer: deps.Observer,
		log:      log.With().Str("component", "proctor_service").Logger(),
		base:     base,
	}
}

// Open initializes the session of examID exactly once. Repeated calls for
// the same exam reuse the live controller, so a reload of the exam page
// neither joins twice nor resets the violation counter. Opening another
// exam stops the previous controller.
func (s *ProctorService) Open(ctx context.Context, examID uuid.UUID) (session.View, error) {
	ctrl := s.acquire(examID)
	if _, err := ctrl.Load(ctx); err != nil {
		return session.View{}, err
	}
	return ctrl.View(ctx)
}

func (s *ProctorService) acquire(examID uuid.UUID) *session.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		if s.current.ExamID() == examID {
			return s.current
		}
		s.log.Info().
			Str("from_exam_id", s.current.ExamID().String()).
			Str("to_exam_id", examID.String()).
			Msg("Switching exam, stopping previous session")
		s.stopLocked()
	}

	ctrl := session.New(examID, s.cfg, session.Deps{
		Backend:  s.backend,
		Clock:    s.clock,
		Reporter: s.reporter,
		Journal:  s.journal,
		Observer: s.observer,
		Logger:   s.log,
	})
	runCtx, cancel := context.WithCancel(s.base)
	go func() {
		if err := ctrl.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error().Err(err).Msg("Session controller exited")
		}
	}()

	s.current = ctrl
	s.cancel = cancel
	return ctrl
}

// Current returns the live controller.
func (s *ProctorService) Current() (*session.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNoActiveSession
	}
	return s.current, nil
}

// Close stops the live controller and waits for it to exit.
func (s *ProctorService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *ProctorService) stopLocked() {
	if s.current == nil {
		return
	}
	s.cancel()
	<-s.current.Done()
	s.current = nil
	s.cancel = nil
}
