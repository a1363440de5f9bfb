// Package safety holds the transmission policy evaluator: the rate
// window, frequency blacklist, confirmation state and attempt audit log
// consulted by the workflow's gate pipeline. Policies are plain values
// threaded into a workflow at construction; there is no process-wide
// instance.
package safety

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/canstralian/rf-test-harness/internal/radio"
)

const (
	// DefaultRateLimit is the transmissions-per-minute budget.
	DefaultRateLimit = 10

	// DefaultConfirmationTimeoutMs bounds how long a pending user
	// confirmation stays valid.
	DefaultConfirmationTimeoutMs = 10000

	// DefaultMaxTransmitDurationMs bounds a single transmission.
	DefaultMaxTransmitDurationMs = 5000

	// RateWindowMs is the trailing window the rate limit is evaluated
	// over.
	RateWindowMs = 60000

	// BlacklistToleranceMHz is the match radius around a blacklisted
	// frequency.
	BlacklistToleranceMHz = 0.1

	// maxRecords caps the attempt audit log; oldest records are evicted.
	maxRecords = 100

	maxDetailsLen = 127
)

// Permission is the outcome of a transmit policy check.
type Permission uint8

const (
	Allowed Permission = iota
	DeniedNoConfirmation
	DeniedBlacklist
	DeniedRateLimit
	DeniedPolicy
	DeniedTimeout
)

func (p Permission) String() string {
	switch p {
	case Allowed:
		return "ALLOWED"
	case DeniedNoConfirmation:
		return "NO_CONFIRMATION"
	case DeniedBlacklist:
		return "BLACKLISTED"
	case DeniedRateLimit:
		return "RATE_LIMITED"
	case DeniedPolicy:
		return "POLICY_VIOLATION"
	case DeniedTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Request describes a prospective transmission submitted to the policy.
type Request struct {
	FrequencyMHz float64
	DurationMs   uint32 // estimated emission duration
	TimestampMs  uint32 // when requested
	Confirmed    bool   // user confirmed
	Reason       string // human-readable reason
}

// Record is one fixed-layout entry of the policy's attempt audit log.
type Record struct {
	TimestampMs  uint32
	FrequencyMHz float64
	DurationMs   uint32
	Allowed      bool
	Permission   Permission
	Details      string
}

// Option configures a Policy.
type Option func(*Policy)

// WithLogger sets the logger for policy decisions and invariant checks.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) {
		p.logger = logger.With(slog.String("component", "safety"))
	}
}

// WithRequireConfirmation toggles gate-2 enforcement.
func WithRequireConfirmation(required bool) Option {
	return func(p *Policy) {
		p.requireConfirmation = required
	}
}

// WithConfirmationTimeout overrides the pending-confirmation deadline.
func WithConfirmationTimeout(ms uint32) Option {
	return func(p *Policy) {
		p.confirmTimeoutMs = ms
	}
}

// WithMaxTransmitDuration overrides the single-transmission bound.
func WithMaxTransmitDuration(ms uint32) Option {
	return func(p *Policy) {
		p.maxDurationMs = ms
	}
}

// WithRateLimit overrides the transmissions-per-minute budget.
func WithRateLimit(perMinute int) Option {
	return func(p *Policy) {
		p.maxPerMinute = perMinute
	}
}

// WithBlacklist seeds the frequency blacklist.
func WithBlacklist(frequenciesMHz ...float64) Option {
	return func(p *Policy) {
		p.blacklist = append(p.blacklist, frequenciesMHz...)
	}
}

// Policy evaluates transmit requests against the configured safety
// rules. It is not safe for concurrent use; the owning workflow loop is
// the only caller.
type Policy struct {
	clock  radio.Clock
	logger *slog.Logger

	requireConfirmation bool
	confirmTimeoutMs    uint32
	maxDurationMs       uint32
	maxPerMinute        int

	window    []uint32 // ms timestamps of allowed attempts, pruned lazily
	blacklist []float64

	pending      bool
	pendingSince uint32
	pendingReq   Request

	records []Record

	lastTransmitMs   uint32
	haveTransmitTime bool
}

// New creates a Policy with safe defaults: confirmation required,
// 10 transmissions per minute, empty blacklist.
func New(clock radio.Clock, options ...Option) *Policy {
	p := Policy{
		clock:               clock,
		logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
		requireConfirmation: true,
		confirmTimeoutMs:    DefaultConfirmationTimeoutMs,
		maxDurationMs:       DefaultMaxTransmitDurationMs,
		maxPerMinute:        DefaultRateLimit,
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// CheckTransmitPolicy evaluates a request and returns exactly one
// permission. The checks short-circuit in fixed order: confirmation
// timeout, missing confirmation, blacklist, rate limit, duration.
func (p *Policy) CheckTransmitPolicy(req Request) Permission {
	p.assert(p.maxDurationMs > 0, "duration limit not configured")

	if p.expireConfirmation() {
		return DeniedTimeout
	}

	if p.requireConfirmation && !req.Confirmed {
		return DeniedNoConfirmation
	}

	if !p.IsFrequencyAllowed(req.FrequencyMHz) {
		return DeniedBlacklist
	}

	if !p.RateLimitOK() {
		p.assert(len(p.window) >= p.maxPerMinute, "rate limit check inconsistent with window")
		return DeniedRateLimit
	}

	if req.DurationMs > p.maxDurationMs {
		return DeniedPolicy
	}

	return Allowed
}

// IsFrequencyAllowed reports whether the frequency is outside the
// blacklist tolerance of every entry.
func (p *Policy) IsFrequencyAllowed(frequencyMHz float64) bool {
	for _, blocked := range p.blacklist {
		if absDiff(frequencyMHz, blocked) < BlacklistToleranceMHz {
			return false
		}
	}
	return true
}

// RateLimitOK prunes the rate window and reports whether another
// transmission fits the budget.
func (p *Policy) RateLimitOK() bool {
	p.pruneWindow()
	return len(p.window) < p.maxPerMinute
}

// RequestConfirmation marks a request as awaiting user confirmation.
func (p *Policy) RequestConfirmation(req Request) {
	p.pending = true
	p.pendingSince = p.clock.NowMs()
	p.pendingReq = req

	p.logger.Info("confirmation requested",
		slog.Float64("frequencyMHz", req.FrequencyMHz),
		slog.Uint64("durationMs", uint64(req.DurationMs)))
}

// ConfirmPending marks the pending request as confirmed by the user.
func (p *Policy) ConfirmPending() {
	if !p.pending {
		return
	}
	p.pendingReq.Confirmed = true
	p.pending = false
}

// CancelConfirmation drops any pending confirmation.
func (p *Policy) CancelConfirmation() {
	p.pending = false
	p.pendingSince = 0
}

// ConfirmationPending reports whether a confirmation is awaited and has
// not yet expired.
func (p *Policy) ConfirmationPending() bool {
	p.expireConfirmation()
	return p.pending
}

// LogTransmitAttempt appends a fixed-layout record of the decision. On
// Allowed it also stamps the rate window and the last-transmit time.
func (p *Policy) LogTransmitAttempt(req Request, allowed bool, perm Permission) {
	now := p.clock.NowMs()

	if allowed {
		p.assert(perm == Allowed, "attempt allowed but permission is not ALLOWED")
	} else {
		p.assert(perm != Allowed, "attempt denied but permission is ALLOWED")
	}

	if len(p.records) >= maxRecords {
		n := len(p.records) - maxRecords + 1
		p.records = append(p.records[:0], p.records[n:]...)
	}

	p.records = append(p.records, Record{
		TimestampMs:  now,
		FrequencyMHz: req.FrequencyMHz,
		DurationMs:   req.DurationMs,
		Allowed:      allowed,
		Permission:   perm,
		Details:      radio.Truncate(req.Reason, maxDetailsLen),
	})

	if allowed {
		p.window = append(p.window, now)
		p.lastTransmitMs = now
		p.haveTransmitTime = true
	}

	p.logger.Info("transmit attempt",
		slog.Float64("frequencyMHz", req.FrequencyMHz),
		slog.Uint64("durationMs", uint64(req.DurationMs)),
		slog.Bool("allowed", allowed),
		slog.String("permission", perm.String()))
}

// AddBlacklist adds a frequency unless an existing entry already covers
// it. It reports whether the entry was added.
func (p *Policy) AddBlacklist(frequencyMHz float64) bool {
	if !p.IsFrequencyAllowed(frequencyMHz) {
		return false
	}
	p.blacklist = append(p.blacklist, frequencyMHz)
	return true
}

// RemoveBlacklist drops the first entry within tolerance of the given
// frequency. It reports whether an entry was removed.
func (p *Policy) RemoveBlacklist(frequencyMHz float64) bool {
	for i, blocked := range p.blacklist {
		if absDiff(frequencyMHz, blocked) < BlacklistToleranceMHz {
			p.blacklist = append(p.blacklist[:i], p.blacklist[i+1:]...)
			return true
		}
	}
	return false
}

// Blacklisted returns a copy of the blacklist.
func (p *Policy) Blacklisted() []float64 {
	out := make([]float64, len(p.blacklist))
	copy(out, p.blacklist)
	return out
}

// RecentTransmitCount returns the number of allowed transmissions inside
// the trailing rate window.
func (p *Policy) RecentTransmitCount() int {
	p.pruneWindow()
	return len(p.window)
}

// RateLimit returns the transmissions-per-minute budget.
func (p *Policy) RateLimit() int {
	return p.maxPerMinute
}

// SetRateLimit replaces the transmissions-per-minute budget.
func (p *Policy) SetRateLimit(perMinute int) {
	p.maxPerMinute = perMinute
}

// RequireConfirmation reports whether gate 2 is enforced.
func (p *Policy) RequireConfirmation() bool {
	return p.requireConfirmation
}

// SetRequireConfirmation toggles gate-2 enforcement.
func (p *Policy) SetRequireConfirmation(required bool) {
	p.requireConfirmation = required
}

// MaxTransmitDurationMs returns the single-transmission bound.
func (p *Policy) MaxTransmitDurationMs() uint32 {
	return p.maxDurationMs
}

// LastTransmitMs returns the timestamp of the last allowed transmission
// and whether one has happened.
func (p *Policy) LastTransmitMs() (uint32, bool) {
	return p.lastTransmitMs, p.haveTransmitTime
}

// Records returns a copy of the attempt audit log, oldest first.
func (p *Policy) Records() []Record {
	out := make([]Record, len(p.records))
	copy(out, p.records)
	return out
}

// RecentRecords returns records with timestamps at or after since,
// newest first, up to max entries.
func (p *Policy) RecentRecords(sinceMs uint32, max int) []Record {
	var out []Record
	for i := len(p.records) - 1; i >= 0 && len(out) < max; i-- {
		if p.records[i].TimestampMs >= sinceMs {
			out = append(out, p.records[i])
		}
	}
	return out
}

// ClearRecords drops the attempt audit log.
func (p *Policy) ClearRecords() {
	p.records = p.records[:0]
}

// Status summarizes the policy state for display.
func (p *Policy) Status() string {
	mode := "UNLOCKED"
	if p.requireConfirmation {
		mode = "LOCKED"
	}
	return fmt.Sprintf("Safety: %s | Rate: %d/%d", mode, p.RecentTransmitCount(), p.maxPerMinute)
}

// expireConfirmation clears a pending confirmation whose deadline has
// passed and reports whether it did so.
func (p *Policy) expireConfirmation() bool {
	if !p.pending {
		return false
	}
	if p.clock.NowMs()-p.pendingSince > p.confirmTimeoutMs {
		p.pending = false
		return true
	}
	return false
}

// pruneWindow drops rate-window timestamps older than the trailing
// window. Subtraction keeps the comparison correct across uint32 wrap.
func (p *Policy) pruneWindow() {
	now := p.clock.NowMs()
	kept := p.window[:0]
	for _, t := range p.window {
		if now-t <= RateWindowMs {
			kept = append(kept, t)
		}
	}
	p.window = kept

	p.assert(len(p.window) <= p.maxPerMinute+1, "rate window count out of expected range")
}

// assert records a violated safety invariant. Checks are permanent, not
// build-tagged; a violation is logged and execution continues.
func (p *Policy) assert(condition bool, msg string) {
	if condition {
		return
	}
	p.logger.Error("safety invariant violated", slog.String("check", msg))
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
