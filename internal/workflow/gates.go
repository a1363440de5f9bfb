package workflow

import (
	"fmt"
	"log/slog"

	"github.com/canstralian/rf-test-harness/internal/audit"
	"github.com/canstralian/rf-test-harness/internal/radio"
	"github.com/canstralian/rf-test-harness/internal/safety"
)

const (
	// transmitRepeats is how many times a sub-GHz pulse train is keyed
	// per emission when estimating on-air time.
	transmitRepeats = 10

	// packetEmitDurationMs is the flat on-air estimate for one 2.4 GHz
	// packet emission.
	packetEmitDurationMs = 10

	// maxGateAttempts bounds TX_GATED entries per run; reaching it
	// returns the workflow to READY without running the gates.
	maxGateAttempts = 4

	// Accepted pulse duration range for replayed sub-GHz waveforms.
	minPulseUs = 100
	maxPulseUs = 10000
)

// estimateDurationMs predicts the on-air time of replaying a signal.
func estimateDurationMs(s *radio.Signal) uint32 {
	if s.Band == radio.BandSubGHz {
		return uint32(s.TotalPulseUs() * transmitRepeats / 1000)
	}
	return packetEmitDurationMs
}

// runGatePipeline executes the four transmission gates in order against
// the selected signal. The first refusal stops the pipeline; the reason
// names the gate outcome and feeds the TX_GATED -> READY transition.
func (w *Workflow) runGatePipeline(s *radio.Signal) (bool, string) {
	req := safety.Request{
		FrequencyMHz: s.FrequencyMHz,
		DurationMs:   estimateDurationMs(s),
		TimestampMs:  w.clock.NowMs(),
		Reason:       "workflow gated transmission",
	}

	if ok, reason := w.gatePolicy(s, req); !ok {
		return false, reason
	}
	w.logger.Debug("gate passed", slog.Int("gate", 1))

	if ok, reason := w.gateConfirmation(&req); !ok {
		return false, reason
	}
	w.logger.Debug("gate passed", slog.Int("gate", 2))

	if ok, reason := w.gateRateLimit(req); !ok {
		return false, reason
	}
	w.logger.Debug("gate passed", slog.Int("gate", 3))

	if ok, reason := w.gateBand(s); !ok {
		return false, reason
	}
	w.logger.Debug("gate passed", slog.Int("gate", 4))

	return true, "All gates passed"
}

// gatePolicy refuses blacklisted frequencies, over-long emissions and
// signals that lost their validity bit.
func (w *Workflow) gatePolicy(s *radio.Signal, req safety.Request) (bool, string) {
	if !w.policy.IsFrequencyAllowed(s.FrequencyMHz) {
		w.policy.LogTransmitAttempt(req, false, safety.DeniedBlacklist)
		return false, "Frequency blacklisted"
	}

	if req.DurationMs > w.cfg.TransmitMaxDurationMs {
		w.policy.LogTransmitAttempt(req, false, safety.DeniedPolicy)
		return false, "Duration exceeds limit"
	}

	if !s.Valid {
		w.policy.LogTransmitAttempt(req, false, safety.DeniedPolicy)
		return false, "Signal invalid"
	}

	return true, ""
}

// gateConfirmation waits up to the gate timeout for the user to confirm
// or cancel. A timeout counts as denial. The consumed confirmation is
// single-use: the input cell is cleared on entry and again on take, so
// a stale confirm can never satisfy a later gate.
func (w *Workflow) gateConfirmation(req *safety.Request) (bool, string) {
	if !w.policy.RequireConfirmation() {
		req.Confirmed = true
		return true, ""
	}

	// Drop anything raised before this gate began.
	w.input.TakeConfirm()
	w.input.TakeCancel()

	w.policy.RequestConfirmation(*req)
	defer w.policy.CancelConfirmation()

	start := w.clock.NowMs()
	for w.clock.NowMs()-start < w.cfg.TxGateTimeoutMs {
		if w.input.TakeAbort() {
			w.emergencyStop.Store(true)
		}
		if w.emergencyStop.Load() {
			w.policy.LogTransmitAttempt(*req, false, safety.DeniedPolicy)
			return false, "Emergency stop"
		}

		if w.input.TakeConfirm() {
			w.policy.ConfirmPending()
			req.Confirmed = true
			w.appendEvent(audit.UserAction, "CONFIRM_TX", "User confirmed transmission", "")
			return true, ""
		}

		if w.input.TakeCancel() {
			w.appendEvent(audit.UserAction, "CANCEL_TX", "User canceled transmission", "")
			w.policy.LogTransmitAttempt(*req, false, safety.DeniedNoConfirmation)
			return false, "User canceled"
		}

		w.yield()
	}

	w.policy.LogTransmitAttempt(*req, false, safety.DeniedTimeout)
	return false, "Confirmation timeout"
}

// gateRateLimit consults the policy's trailing-window budget.
func (w *Workflow) gateRateLimit(req safety.Request) (bool, string) {
	if !w.policy.RateLimitOK() {
		w.policy.LogTransmitAttempt(req, false, safety.DeniedRateLimit)
		return false, "Rate limit"
	}
	return true, ""
}

// gateBand applies the band-specific replay rules.
func (w *Workflow) gateBand(s *radio.Signal) (bool, string) {
	switch s.Band {
	case radio.BandSubGHz:
		for i, p := range s.Pulses {
			if p < minPulseUs || p > maxPulseUs {
				w.logger.Warn("pulse out of range",
					slog.Int("index", i), slog.Uint64("durationUs", uint64(p)))
				return false, fmt.Sprintf("Pulse %d out of range", i)
			}
		}
		return true, ""

	case radio.Band24GHz:
		if s.DataLen < 1 || s.DataLen > radio.MaxPayloadLen {
			return false, "Invalid packet length"
		}
		if !addressObserved(w.buffer, s.Protocol) {
			return false, "Address not observed"
		}
		return true, ""

	default:
		return false, "Unknown band"
	}
}
