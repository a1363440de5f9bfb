package workflow

import (
	"fmt"
	"log/slog"

	"github.com/canstralian/rf-test-harness/internal/radio"
	"github.com/canstralian/rf-test-harness/internal/safety"
)

// processCurrentState dispatches to the current state's processor. All
// processors are non-blocking except TX_GATED, whose confirmation gate
// busy-polls up to its timeout with the loop's own yield.
func (w *Workflow) processCurrentState() {
	switch w.State() {
	case StateIdle:
		// Nothing to do while resting.
	case StateInit:
		w.processInit()
	case StateListening:
		w.processListening()
	case StateAnalyzing:
		w.processAnalyzing()
	case StateReady:
		w.processReady()
	case StateTxGated:
		w.processTxGated()
	case StateTransmit:
		w.processTransmit()
	case StateCleanup:
		w.processCleanup()
	}
}

// processInit brings the radio up for passive observation and reserves
// the capture buffer.
func (w *Workflow) processInit() {
	if err := w.radio.StartReceive(); err != nil {
		w.logError(ErrInitFailed, fmt.Sprintf("hardware initialization failed: %s", err))
		w.transition(StateCleanup, "Init failed")
		return
	}
	w.radio.SetTransmitEnabled(false)

	w.buffer.Clear()
	w.buffer.Reserve()
	w.analysis = AnalysisResult{}

	w.logger.Info("initialization complete",
		slog.Int("bufferSlots", w.buffer.Capacity()))
	w.transition(StateListening, "Init successful")
}

// processListening captures pending signals and decides whether the
// buffer fill level or the observation window forces analysis. The
// minimum observation time must elapse before any exit.
func (w *Workflow) processListening() {
	w.captureSignals()

	elapsed := w.ElapsedInStateMs()
	if elapsed < w.cfg.ListenMinTimeMs {
		return
	}

	if w.buffer.Usage() >= bufferFullRatio {
		w.logger.Info("buffer near capacity, triggering analysis",
			slog.Int("captured", w.buffer.Len()))
		w.transition(StateAnalyzing, "Buffer full")
		return
	}

	if elapsed >= w.cfg.ListenMaxTimeMs {
		w.transition(StateAnalyzing, "Max time reached")
	}
}

// captureSignals drains the radio into the buffer, validating each
// observation. Radio faults are recorded but capture continues on the
// next tick; a rejected signal is dropped along with its pulse memory.
func (w *Workflow) captureSignals() {
	for w.buffer.Len() < w.buffer.Capacity() {
		s, err := w.radio.Poll()
		if err != nil {
			w.logError(ErrHardwareFailure, fmt.Sprintf("radio read error: %s", err))
			return
		}
		if s == nil {
			return
		}

		if !s.Valid || !validCapture(s) {
			continue
		}

		if err := w.buffer.Append(s); err != nil {
			w.logError(ErrBufferOverflow, "capture buffer append past capacity")
			return
		}
	}
}

// processAnalyzing classifies the buffer in bounded chunks so the
// analyze deadline can interrupt it, then publishes statistics and
// moves to READY.
func (w *Workflow) processAnalyzing() {
	if !w.analyzing {
		if w.buffer.Len() == 0 {
			w.logger.Info("no signals captured, resuming observation")
			w.transition(StateListening, "No data")
			return
		}

		w.analysis = AnalysisResult{
			SignalCount:    w.buffer.Len(),
			AnalysisTimeMs: w.clock.NowMs(),
		}
		w.analyzing = true
		w.analyzeFrom = 0
	}

	end := w.analyzeFrom + analysisChunkSize
	if end > w.buffer.Len() {
		end = w.buffer.Len()
	}

	for i := w.analyzeFrom; i < end; i++ {
		s := w.buffer.At(i)
		if !s.Valid {
			continue
		}
		if w.cfg.Band == radio.BandSubGHz {
			s.SetDeviceType(classifySubGHz(s))
		}
		w.analysis.ValidSignalCount++
	}
	w.analyzeFrom = end

	if w.analyzeFrom < w.buffer.Len() {
		return // continue on the next tick, interruptible by timeout
	}

	if w.cfg.Band == radio.Band24GHz {
		bindings := detectBindings(w.buffer)
		w.logger.Info("binding detection complete", slog.Int("bindings", len(bindings)))
	}

	w.analysis.UniquePatterns = uniquePatternCount(w.buffer)
	generateStatistics(w.buffer, &w.analysis)
	w.analysis.Complete = true
	w.analysis.Summary = buildSummary(&w.analysis)
	w.analyzing = false

	w.logger.Info("analysis complete",
		slog.Int("valid", w.analysis.ValidSignalCount),
		slog.Int("unique", w.analysis.UniquePatterns))
	w.transition(StateReady, "Analysis complete")
}

// processReady idles awaiting a user decision; the READY deadline is
// handled by checkTimeout.
func (w *Workflow) processReady() {}

// processTxGated runs the four-gate approval pipeline over the selected
// signal. Any refusal returns to READY with the gate's reason; only a
// full pass reaches TRANSMIT.
func (w *Workflow) processTxGated() {
	w.attempts++
	if w.attempts >= maxGateAttempts {
		w.logger.Warn("too many transmission attempts", slog.Int("attempts", int(w.attempts)))
		w.transition(StateReady, "Max attempts")
		return
	}

	s := w.buffer.At(w.selected)
	if s == nil {
		w.transition(StateReady, "Invalid selection")
		return
	}

	ok, reason := w.runGatePipeline(s)
	if !ok {
		w.logger.Info("transmission gate denied", slog.String("reason", reason))
		w.transition(StateReady, reason)
		return
	}

	w.transition(StateTransmit, reason)
}

// processTransmit performs the approved emission, bracketed by
// transmitter enable/disable. The safety policy issues the final
// permission and records the attempt either way.
func (w *Workflow) processTransmit() {
	s := w.buffer.At(w.selected)
	if s == nil {
		w.logError(ErrInvalidSignal, "selected signal vanished before emission")
		w.transition(StateCleanup, "Transmit failed")
		return
	}

	req := safety.Request{
		FrequencyMHz: s.FrequencyMHz,
		DurationMs:   estimateDurationMs(s),
		TimestampMs:  w.clock.NowMs(),
		Confirmed:    true,
		Reason:       "workflow gated transmission",
	}

	perm := w.policy.CheckTransmitPolicy(req)
	if perm != safety.Allowed {
		w.policy.LogTransmitAttempt(req, false, perm)
		w.logError(ErrGateDenied, fmt.Sprintf("policy refused emission: %s", perm))
		w.transition(StateCleanup, "Transmit denied")
		return
	}
	w.policy.LogTransmitAttempt(req, true, safety.Allowed)

	var err error
	if w.cfg.DryRun {
		w.logger.Info("dry-run: emission simulated",
			slog.Float64("frequencyMHz", s.FrequencyMHz),
			slog.String("protocol", s.Protocol))
	} else {
		w.radio.SetTransmitEnabled(true)
		err = w.radio.Emit(s)
		w.radio.SetTransmitEnabled(false)
	}

	if err != nil {
		w.logError(ErrTransmissionFailed, fmt.Sprintf("emission failed: %s", err))
		w.transition(StateCleanup, "Transmit failed")
		return
	}

	w.logger.Info("transmission completed")
	w.transition(StateCleanup, "Transmit success")
}

// processCleanup deactivates the transmitter, releases the radio and
// returns to IDLE. Every non-idle path ends here.
func (w *Workflow) processCleanup() {
	w.radio.SetTransmitEnabled(false)
	w.radio.StopReceive()

	w.logger.Info("cleanup complete")
	w.transition(StateIdle, "Cleanup done")
}
