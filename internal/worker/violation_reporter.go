package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/backend"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	DefaultReportQueueSize = 64
	DefaultReportTimeout   = 5 * time.Second
	shutdownFlushTimeout   = 5 * time.Second
)

// ViolationLogger is the backend operation the reporter needs.
type ViolationLogger interface {
	LogViolation(ctx context.Context, sessionID uuid.UUID, req backend.ViolationRequest) error
}

type violationJob struct {
	sessionID uuid.UUID
	event     model.ViolationEvent
}

// ViolationReporter forwards recorded violations to the Backend Service
// in the background. Delivery is best effort: a full queue or a failed
// call drops the event.
type ViolationReporter struct {
	backend ViolationLogger
	queue   chan violationJob
	timeout time.Duration
	log     zerolog.Logger

	sent    atomic.Int64
	dropped atomic.Int64
}

func NewViolationReporter(b ViolationLogger, queueSize int, timeout time.Duration, log zerolog.Logger) *ViolationReporter {
	if queueSize <= 0 {
		queueSize = DefaultReportQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultReportTimeout
	}
	return &ViolationReporter{
		backend: b,
		queue:   make(chan violationJob, queueSize),
		timeout: timeout,
		log:     log.With().Str("component", "violation_reporter").Logger(),
	}
}

// Report enqueues ev without blocking. It returns false when the event
// was dropped.
func (w *ViolationReporter) Report(sessionID uuid.UUID, ev model.ViolationEvent) bool {
	select {
	case w.queue <- violationJob{sessionID: sessionID, event: ev}:
		return true
	default:
		w.dropped.Add(1)
		w.log.Warn().
			Str("session_id", sessionID.String()).
			Str("type", string(ev.Type)).
			Msg("Report queue full, dropping violation")
		return false
	}
}

// Sent returns the number of delivered events.
func (w *ViolationReporter) Sent() int64 { return w.sent.Load() }

// Dropped returns the number of events lost to a full queue or a failed call.
func (w *ViolationReporter) Dropped() int64 { return w.dropped.Load() }

// Start delivers queued events until ctx is cancelled, then flushes what
// is still buffered.
func (w *ViolationReporter) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationReporter started")

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case job := <-w.queue:
			w.deliver(ctx, job)
		}
	}
}

func (w *ViolationReporter) deliver(ctx context.Context, job violationJob) {
	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req := backend.ViolationRequest{
		Type:        job.event.Type,
		Description: job.event.Description,
		Severity:    job.event.Severity,
		Metadata:    job.event.Metadata,
		RecordedAt:  job.event.Timestamp.UnixMilli(),
	}
	if err := w.backend.LogViolation(callCtx, job.sessionID, req); err != nil {
		w.dropped.Add(1)
		w.log.Warn().Err(err).
			Str("session_id", job.sessionID.String()).
			Str("type", string(job.event.Type)).
			Msg("Failed to report violation, dropping")
		return
	}
	w.sent.Add(1)
}

func (w *ViolationReporter) shutdown() {
	w.log.Info().Int("pending", len(w.queue)).Msg("Reporter stopping, flushing remaining events...")

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()

	for {
		select {
		case job := <-w.queue:
			if flushCtx.Err() != nil {
				w.dropped.Add(1)
				continue
			}
			w.deliver(flushCtx, job)
		default:
			return
		}
	}
}
