// Package workflow implements the radio test harness core: a
// deterministic eight-state machine that observes signals into a bounded
// capture buffer, analyzes them, and rebroadcasts a selected capture
// only after a four-gate approval pipeline. Every edge of the machine is
// recorded in an append-only audit stream.
package workflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/canstralian/rf-test-harness/internal/audit"
	"github.com/canstralian/rf-test-harness/internal/radio"
	"github.com/canstralian/rf-test-harness/internal/safety"
)

const (
	// tickInterval is the cooperative yield between loop iterations.
	tickInterval = 10 * time.Millisecond

	// errorThreshold forces CLEANUP once accumulated errors exceed it.
	errorThreshold = 10

	// bufferFullRatio triggers analysis when the capture buffer
	// reaches this fill level.
	bufferFullRatio = 0.9

	// maxTransitionRecords bounds the coarse transition log.
	maxTransitionRecords = 256
)

// TransitionRecord is one entry of the coarse state transition log kept
// alongside the deterministic audit stream.
type TransitionRecord struct {
	From        State
	To          State
	TimestampMs uint32
	Reason      string
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithLogger sets the workflow logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger.With(slog.String("component", "workflow"))
	}
}

// WithClock replaces the monotonic clock, for deterministic tests and
// replays.
func WithClock(clock radio.Clock) Option {
	return func(w *Workflow) {
		w.clock = clock
	}
}

// WithAuditSink streams every audit event to a live sink in addition to
// the retained in-memory log.
func WithAuditSink(sink audit.Sink) Option {
	return func(w *Workflow) {
		w.auditSink = sink
	}
}

// WithYield replaces the inter-tick yield. Tests pair this with a
// manual clock to advance time instead of sleeping.
func WithYield(yield func()) Option {
	return func(w *Workflow) {
		w.yield = yield
	}
}

// Workflow owns the capture buffer, the audit log and the radio for the
// duration of a run. A single cooperative loop mutates all state; the
// public setters only write single atomic input cells and are safe to
// call from other goroutines.
type Workflow struct {
	cfg    Config
	radio  radio.Radio
	policy *safety.Policy
	clock  radio.Clock
	logger *slog.Logger
	yield  func()

	auditSink audit.Sink
	log       *audit.Log

	state        atomic.Int32
	prevState    atomic.Int32
	stateEntryMs atomic.Uint32
	running      atomic.Bool

	emergencyStop atomic.Bool

	input *inputPort

	buffer      *CaptureBuffer
	analysis    AnalysisResult
	analyzing   bool // an analysis pass is in progress
	analyzeFrom int  // next buffer index the pass will classify

	selected int
	attempts uint8

	lastErr  error
	errCount int

	transitions []TransitionRecord
}

// New builds a workflow around the given radio and safety policy. The
// configuration is frozen here.
func New(cfg Config, r radio.Radio, policy *safety.Policy, options ...Option) (*Workflow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitFailed, err)
	}
	if r == nil {
		return nil, fmt.Errorf("%w: no radio for band %s", ErrInitFailed, cfg.Band)
	}
	if r.Band() != cfg.Band {
		return nil, fmt.Errorf("%w: radio band %s does not match configured band %s",
			ErrInitFailed, r.Band(), cfg.Band)
	}
	if policy == nil {
		return nil, fmt.Errorf("%w: no safety policy", ErrInitFailed)
	}

	w := Workflow{
		cfg:      cfg,
		radio:    r,
		policy:   policy,
		clock:    radio.NewMonotonicClock(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		input:    newInputPort(),
		buffer:   NewCaptureBuffer(cfg.BufferSize),
		selected: -1,
	}
	w.yield = func() { time.Sleep(tickInterval) }

	for _, option := range options {
		option(&w)
	}

	w.log = audit.NewLog(audit.WithSink(w.auditSink))

	return &w, nil
}

// Start runs the workflow loop until it returns to IDLE. It returns nil
// only when the run accumulated no errors.
func (w *Workflow) Start(ctx context.Context) error {
	if w.State() != StateIdle {
		return fmt.Errorf("%w: cannot start from state %s", ErrInitFailed, w.State())
	}

	w.logger.Info("starting workflow", slog.String("band", w.cfg.Band.String()))

	w.emergencyStop.Store(false)
	w.lastErr = nil
	w.errCount = 0
	w.drainInput()
	w.running.Store(true)
	defer w.running.Store(false)

	w.transition(StateInit, "User started workflow")

	for w.State() != StateIdle {
		select {
		case <-ctx.Done():
			w.emergencyStop.Store(true)
		default:
		}

		w.tick()

		if w.State() == StateIdle {
			break
		}
		w.yield()
	}

	w.logger.Info("workflow completed", slog.Int("errors", w.errCount))

	if w.errCount > 0 {
		return w.lastErr
	}
	return nil
}

// tick performs one loop iteration: consume user input, run the current
// state's processor, then the timeout, emergency-stop and error
// threshold checks.
func (w *Workflow) tick() {
	w.consumeInput()
	w.processCurrentState()
	w.checkTimeout()
	w.checkEmergencyStop()

	if w.errCount > errorThreshold {
		if s := w.State(); s != StateCleanup && s != StateIdle {
			w.logger.Error("too many errors, forcing cleanup")
			w.transition(StateCleanup, "Error threshold exceeded")
		}
	}
}

// Abort raises the emergency stop; the next tick forces CLEANUP and
// disables the transmitter. Safe to call from any goroutine.
func (w *Workflow) Abort() {
	w.input.RaiseAbort()
}

// TriggerAnalysis asks the loop to leave LISTENING for ANALYZING.
func (w *Workflow) TriggerAnalysis() {
	w.input.RaiseTrigger()
}

// SelectSignalForTransmission asks the loop to take the i-th captured
// signal into the gate pipeline. Honored only in READY with a valid
// index.
func (w *Workflow) SelectSignalForTransmission(i int) {
	w.input.RaiseSelect(i)
}

// ConfirmTransmission answers the gate-2 confirmation wait.
func (w *Workflow) ConfirmTransmission() {
	w.input.RaiseConfirm()
}

// CancelTransmission denies a pending transmission. Honored in TX_GATED
// and READY.
func (w *Workflow) CancelTransmission() {
	w.input.RaiseCancel()
}

// ContinueObservation returns the workflow from READY to LISTENING.
func (w *Workflow) ContinueObservation() {
	w.input.RaiseContinue()
}

// Reset reinitializes all mutable state. It is legal only while the
// loop is not running; a running workflow must be aborted first.
func (w *Workflow) Reset() {
	if w.running.Load() {
		w.logger.Warn("reset ignored: workflow is running")
		return
	}

	w.state.Store(int32(StateIdle))
	w.prevState.Store(int32(StateIdle))
	w.stateEntryMs.Store(w.clock.NowMs())
	w.emergencyStop.Store(false)

	w.buffer.Clear()
	w.analysis = AnalysisResult{}
	w.analyzing = false
	w.analyzeFrom = 0

	w.selected = -1
	w.attempts = 0

	w.lastErr = nil
	w.errCount = 0

	w.drainInput()
}

// drainInput discards any stale pending input events.
func (w *Workflow) drainInput() {
	w.input.TakeTrigger()
	w.input.TakeConfirm()
	w.input.TakeCancel()
	w.input.TakeContinue()
	w.input.TakeAbort()
	w.input.TakeSelect()
}

// State returns the current state.
func (w *Workflow) State() State {
	return State(w.state.Load())
}

// PreviousState returns the state before the most recent transition.
func (w *Workflow) PreviousState() State {
	return State(w.prevState.Load())
}

// ElapsedInStateMs returns the time spent in the current state.
func (w *Workflow) ElapsedInStateMs() uint32 {
	return w.clock.NowMs() - w.stateEntryMs.Load()
}

// IsRunning reports whether the loop is active.
func (w *Workflow) IsRunning() bool {
	return w.running.Load()
}

// CapturedSignalCount returns the number of buffered captures.
func (w *Workflow) CapturedSignalCount() int {
	return w.buffer.Len()
}

// CapturedSignal returns the i-th capture as a borrowed reference,
// valid until the loop next mutates the buffer.
func (w *Workflow) CapturedSignal(i int) *radio.Signal {
	return w.buffer.At(i)
}

// AnalysisResult returns a copy of the latest analysis.
func (w *Workflow) AnalysisResult() AnalysisResult {
	return w.analysis
}

// LastError returns the most recent error, nil when none occurred.
func (w *Workflow) LastError() error {
	return w.lastErr
}

// ErrorCount returns the number of accumulated errors.
func (w *Workflow) ErrorCount() int {
	return w.errCount
}

// TransitionLogCount returns the number of retained transition records.
func (w *Workflow) TransitionLogCount() int {
	return len(w.transitions)
}

// TransitionLog returns the i-th transition record, oldest first.
func (w *Workflow) TransitionLog(i int) (TransitionRecord, bool) {
	if i < 0 || i >= len(w.transitions) {
		return TransitionRecord{}, false
	}
	return w.transitions[i], true
}

// AuditEvents returns a copy of the retained deterministic audit stream.
func (w *Workflow) AuditEvents() []audit.Event {
	return w.log.Events()
}

// ClearLogs drops both the transition log and the audit stream.
func (w *Workflow) ClearLogs() {
	w.transitions = w.transitions[:0]
	w.log.Clear()
}

// ExportLogsJSON renders the audit stream as JSON.
func (w *Workflow) ExportLogsJSON() (string, error) {
	return w.log.ExportJSON()
}

// ExportLogsCSV renders the audit stream as CSV.
func (w *Workflow) ExportLogsCSV() string {
	return w.log.ExportCSV()
}

// consumeInput drains the input cells and applies whatever the current
// state permits. Events raised in a state that cannot honor them are
// consumed and dropped so they cannot fire later out of context.
// Confirm and cancel are left alone in TX_GATED: the confirmation gate
// owns them there.
func (w *Workflow) consumeInput() {
	if w.input.TakeAbort() {
		w.appendEvent(audit.UserAction, "ABORT", "User requested abort", "")
		w.emergencyStop.Store(true)
	}

	state := w.State()

	if w.input.TakeTrigger() {
		if state == StateListening && w.ElapsedInStateMs() >= w.cfg.ListenMinTimeMs {
			w.appendEvent(audit.UserAction, "TRIGGER_ANALYSIS", "User manually triggered analysis", "")
			w.transition(StateAnalyzing, "User trigger")
			return
		}
		w.appendEvent(audit.UserAction, "TRIGGER_ANALYSIS", "Ignored: not ready for analysis", "")
	}

	if i, ok := w.input.TakeSelect(); ok {
		if state == StateReady && i >= 0 && i < w.buffer.Len() {
			w.selected = i
			w.appendEvent(audit.UserAction, "SELECT_SIGNAL",
				"User selected signal for transmission", fmt.Sprintf("signal_index=%d", i))
			w.transition(StateTxGated, "User requested transmission")
			return
		}
		if state == StateReady {
			w.appendEvent(audit.UserAction, "SELECT_SIGNAL", "Ignored: invalid selection",
				fmt.Sprintf("signal_index=%d", i))
		}
	}

	if w.input.TakeContinue() {
		if state == StateReady {
			w.appendEvent(audit.UserAction, "CONTINUE_OBSERVATION", "User requested more observation", "")
			w.transition(StateListening, "User requested more observation")
			return
		}
	}

	if state != StateTxGated {
		w.input.TakeConfirm()
		if w.input.TakeCancel() && state == StateReady {
			w.appendEvent(audit.UserAction, "CANCEL_TX", "User canceled transmission", "")
			w.selected = -1
		}
	}
}

// transition moves the machine to a new state, emitting the EXIT,
// TRANSITION and ENTRY audit events in that order with consecutive
// sequence numbers. Transitions outside the legal table are ignored and
// logged as errors.
func (w *Workflow) transition(to State, reason string) bool {
	from := w.State()

	if !transitionAllowed(from, to) {
		w.logger.Error("illegal transition ignored",
			slog.String("from", from.String()), slog.String("to", to.String()))
		w.appendEvent(audit.Error, "ILLEGAL_TRANSITION", reason,
			fmt.Sprintf("from=%s to=%s", from, to))
		return false
	}

	w.logger.Info("state transition",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.String("reason", reason))

	w.appendEvent(audit.StateExit, "EXIT_"+from.String(), reason, "")

	now := w.clock.NowMs()
	if len(w.transitions) >= maxTransitionRecords {
		w.transitions = append(w.transitions[:0], w.transitions[1:]...)
	}
	w.transitions = append(w.transitions, TransitionRecord{
		From:        from,
		To:          to,
		TimestampMs: now,
		Reason:      reason,
	})
	w.appendEvent(audit.Transition, "TRANSITION", reason,
		fmt.Sprintf("from=%s to=%s", from, to))

	w.prevState.Store(int32(from))
	w.state.Store(int32(to))
	w.stateEntryMs.Store(now)

	w.appendEvent(audit.StateEntry, "ENTER_"+to.String(), reason, "")

	// Entry side effects. The transmitter is kept disabled on every
	// path except the emission itself.
	switch to {
	case StateInit, StateListening:
		w.radio.SetTransmitEnabled(false)
	case StateAnalyzing:
		w.analyzing = false
		w.analyzeFrom = 0
	}

	return true
}

// appendEvent writes one entry to the deterministic audit stream using
// the workflow's current state pair.
func (w *Workflow) appendEvent(t audit.EventType, event, reason, data string) {
	w.log.Append(t, w.clock.NowMs(), w.clock.NowUs(),
		w.State().String(), w.PreviousState().String(), event, reason, data)
}

// logError records an error: it sets the last error, bumps the count,
// and appends an ERROR audit event.
func (w *Workflow) logError(kind error, msg string) {
	w.lastErr = kind
	w.errCount++
	w.logger.Error(msg, slog.String("error", kind.Error()))
	w.appendEvent(audit.Error, "ERROR", msg, kind.Error())
}

// timeoutForState returns the deadline for a state, 0 meaning none.
func (w *Workflow) timeoutForState(s State) uint32 {
	switch s {
	case StateInit:
		return w.cfg.InitTimeoutMs
	case StateListening:
		return w.cfg.ListenMaxTimeMs
	case StateAnalyzing:
		return w.cfg.AnalyzeTimeoutMs
	case StateReady:
		return w.cfg.ReadyTimeoutMs
	case StateTxGated:
		return w.cfg.TxGateTimeoutMs
	case StateTransmit:
		return w.cfg.TransmitMaxDurationMs
	case StateCleanup:
		return w.cfg.CleanupTimeoutMs
	default:
		return 0
	}
}

// checkTimeout fires the per-state deadline handling when the elapsed
// time in the current state exceeds its budget.
func (w *Workflow) checkTimeout() bool {
	state := w.State()
	timeout := w.timeoutForState(state)
	if timeout == 0 {
		return false
	}

	elapsed := w.ElapsedInStateMs()
	if elapsed <= timeout {
		return false
	}

	w.logger.Warn("state timeout",
		slog.String("state", state.String()),
		slog.Uint64("elapsedMs", uint64(elapsed)))
	w.handleTimeout(state, elapsed)
	return true
}

// handleTimeout applies the per-state timeout policy. The LISTENING
// deadline is a forcing floor into analysis, not a fault; every other
// deadline is recorded as a timeout error.
func (w *Workflow) handleTimeout(state State, elapsedMs uint32) {
	data := fmt.Sprintf("state=%s elapsed=%d", state, elapsedMs)

	if state == StateListening {
		w.appendEvent(audit.Timeout, "TIMEOUT", "Max observation time reached", data)
		w.transition(StateAnalyzing, "Max time reached")
		return
	}

	w.logError(ErrTimeout, "State timeout")
	w.appendEvent(audit.Timeout, "TIMEOUT", "State timeout exceeded", data)

	switch state {
	case StateInit:
		w.transition(StateCleanup, "Init timeout")
	case StateAnalyzing:
		// Interrupted analysis is published incomplete, never
		// silently promoted.
		w.analysis.Complete = false
		w.analyzing = false
		w.transition(StateReady, "Analysis timeout")
	case StateReady:
		w.transition(StateCleanup, "Inactivity timeout")
	case StateTxGated:
		w.transition(StateReady, "Gate timeout")
	case StateTransmit:
		w.emergencyStop.Store(true)
		w.transition(StateCleanup, "Transmit timeout")
	case StateCleanup:
		w.radio.SetTransmitEnabled(false)
		w.transition(StateIdle, "Cleanup timeout")
	}
}

// checkEmergencyStop forces CLEANUP and keeps the transmitter disabled
// once the latch is raised.
func (w *Workflow) checkEmergencyStop() {
	if !w.emergencyStop.Load() {
		return
	}

	state := w.State()
	if state == StateCleanup || state == StateIdle {
		return
	}

	w.logger.Warn("emergency stop activated")
	w.radio.SetTransmitEnabled(false)
	w.transition(StateCleanup, "Emergency stop")
}
