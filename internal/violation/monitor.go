package violation

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/clock"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Config holds the tunable windows of the monitor.
type Config struct {
	Threshold         int
	TabSwitchDebounce time.Duration
	BlurGrace         time.Duration
	MultiTabPoll      time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:         DefaultThreshold,
		TabSwitchDebounce: 500 * time.Millisecond,
		BlurGrace:         time.Second,
		MultiTabPoll:      5 * time.Second,
	}
}

// Reporter forwards recorded events to the Backend Service. Report must
// not block.
type Reporter interface {
	Report(ev model.ViolationEvent)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ev model.ViolationEvent)

func (f ReporterFunc) Report(ev model.ViolationEvent) { f(ev) }

// Dispatcher runs f on the owner's event loop. Timer callbacks re-enter
// the monitor only through it.
type Dispatcher func(f func())

// Monitor keeps the violation counter and the append-only event log.
// Apart from its timer callbacks, which go through the Dispatcher, it
// must only be used from the owner's event loop.
type Monitor struct {
	cfg      Config
	clock    clock.Clock
	dispatch Dispatcher
	esc      Escalator
	rep      Reporter
	log      zerolog.Logger

	count  int
	frozen bool
	events []model.ViolationEvent
	lastAt map[model.ViolationType]time.Time

	hidden      bool
	windows     int
	blurPending bool
	blurGen     uint64
	blurTimer   clock.Timer
	pollTimer   clock.Timer
	running     bool
}

// NewMonitor creates a stopped monitor. esc is called synchronously from
// Handle or from dispatched timer callbacks.
func NewMonitor(cfg Config, clk clock.Clock, dispatch Dispatcher, esc Escalator, rep Reporter, log zerolog.Logger) *Monitor {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.TabSwitchDebounce < 0 {
		cfg.TabSwitchDebounce = 0
	}
	if cfg.BlurGrace <= 0 {
		cfg.BlurGrace = def.BlurGrace
	}
	if cfg.MultiTabPoll <= 0 {
		cfg.MultiTabPoll = def.MultiTabPoll
	}
	return &Monitor{
		cfg:      cfg,
		clock:    clk,
		dispatch: dispatch,
		esc:      esc,
		rep:      rep,
		log:      log.With().Str("component", "violation_monitor").Logger(),
		lastAt:   make(map[model.ViolationType]time.Time),
		windows:  1,
	}
}

// Start begins multiple-window polling.
func (m *Monitor) Start() {
	if m.running {
		return
	}
	m.running = true
	m.schedulePoll()
}

// Stop cancels pending timers. Signals handled afterwards still get a
// verdict but are not recorded.
func (m *Monitor) Stop() {
	m.running = false
	m.cancelBlur()
	if m.pollTimer != nil {
		m.pollTimer.Stop()
		m.pollTimer = nil
	}
}

// Count returns the counter value.
func (m *Monitor) Count() int { return m.count }

// Frozen reports whether the threshold has been reached.
func (m *Monitor) Frozen() bool { return m.frozen }

// Threshold returns the configured auto-submit threshold.
func (m *Monitor) Threshold() int { return m.cfg.Threshold }

// Events returns a copy of the event log.
func (m *Monitor) Events() []model.ViolationEvent {
	out := make([]model.ViolationEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Handle processes one raw signal and returns the verdict for the UI.
func (m *Monitor) Handle(sig Signal) Verdict {
	switch sig.Kind {
	case SignalVisibilityVisible:
		m.hidden = false
		return Verdict{}
	case SignalWindowFocus:
		m.cancelBlur()
		return Verdict{}
	case SignalWindowCount:
		m.windows = sig.Windows
		return Verdict{}
	case SignalVisibilityHidden:
		m.hidden = true
	}

	rule, ok := Classify(sig)
	if !ok {
		return Verdict{}
	}
	verdict := Verdict{Block: rule.Block, Type: rule.Type}
	if !m.running {
		return verdict
	}

	switch rule.Type {
	case model.ViolationWindowBlur:
		m.beginBlur(sig)
		return verdict
	case model.ViolationTabSwitch:
		rule.Debounce = m.cfg.TabSwitchDebounce
	}

	meta := sig.Metadata
	if sig.Kind == SignalKeyDown {
		meta = withMeta(meta, "combo", Combo(sig))
	}
	m.record(rule, meta)
	return verdict
}

// beginBlur starts the grace period; the blur only counts if focus does
// not come back before it elapses.
func (m *Monitor) beginBlur(sig Signal) {
	if m.blurPending {
		return
	}
	m.blurPending = true
	m.blurGen++
	gen := m.blurGen
	meta := sig.Metadata
	m.blurTimer = m.clock.AfterFunc(m.cfg.BlurGrace, func() {
		m.dispatch(func() { m.confirmBlur(gen, meta) })
	})
}

func (m *Monitor) confirmBlur(gen uint64, meta map[string]any) {
	if !m.running || !m.blurPending || gen != m.blurGen {
		return
	}
	m.blurPending = false
	m.blurTimer = nil
	if m.hidden {
		// Already counted as a tab switch.
		m.log.Debug().Msg("Blur confirmed while hidden, skipped")
		return
	}
	rule, _ := Classify(Signal{Kind: SignalWindowBlur})
	m.record(rule, withMeta(meta, "grace_ms", m.cfg.BlurGrace.Milliseconds()))
}

func (m *Monitor) cancelBlur() {
	if !m.blurPending {
		return
	}
	m.blurPending = false
	m.blurGen++
	if m.blurTimer != nil {
		m.blurTimer.Stop()
		m.blurTimer = nil
	}
}

func (m *Monitor) schedulePoll() {
	m.pollTimer = m.clock.AfterFunc(m.cfg.MultiTabPoll, func() {
		m.dispatch(m.poll)
	})
}

func (m *Monitor) poll() {
	if !m.running {
		return
	}
	if m.windows > 1 {
		rule := Rule{
			Type:        model.ViolationMultipleTabs,
			Severity:    model.SeverityMedium,
			Description: "more than one exam window open",
		}
		m.record(rule, map[string]any{"windows": m.windows})
	}
	m.schedulePoll()
}

// record appends, reports and counts one detection, then escalates.
func (m *Monitor) record(rule Rule, meta map[string]any) {
	now := m.clock.Now()
	if rule.Debounce > 0 {
		if last, ok := m.lastAt[rule.Type]; ok && now.Sub(last) < rule.Debounce {
			m.log.Debug().Str("type", string(rule.Type)).Msg("Debounced duplicate signal")
			return
		}
	}
	m.lastAt[rule.Type] = now

	if !m.frozen {
		m.count++
	}
	ev := model.ViolationEvent{
		Type:        rule.Type,
		Severity:    rule.Severity,
		Description: rule.Description,
		Timestamp:   now,
		Metadata:    meta,
		Count:       m.count,
	}
	m.events = append(m.events, ev)
	if m.rep != nil {
		m.rep.Report(ev)
	}

	m.log.Warn().
		Str("type", string(ev.Type)).
		Str("severity", string(ev.Severity)).
		Int("count", m.count).
		Bool("frozen", m.frozen).
		Msg("Violation recorded")

	if m.frozen {
		return
	}
	warning, reached := Escalate(m.count, m.cfg.Threshold)
	if reached {
		m.frozen = true
		m.esc.ThresholdReached(m.count)
		return
	}
	if warning != nil {
		m.esc.Warn(*warning)
	}
}

func withMeta(meta map[string]any, key string, val any) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out[key] = val
	return out
}
