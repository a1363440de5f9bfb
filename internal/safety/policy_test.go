package safety

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canstralian/rf-test-harness/internal/radio"
)

func confirmedRequest(freq float64, durationMs uint32) Request {
	return Request{
		FrequencyMHz: freq,
		DurationMs:   durationMs,
		Confirmed:    true,
		Reason:       "test request",
	}
}

func TestPolicy_Blacklist(t *testing.T) {
	clock := radio.NewManualClock()
	p := New(clock, WithBlacklist(121.5, 156.8))

	assert.Equal(t, DeniedBlacklist, p.CheckTransmitPolicy(confirmedRequest(121.5, 10)))
	assert.Equal(t, DeniedBlacklist, p.CheckTransmitPolicy(confirmedRequest(156.85, 10)), "within tolerance")
	assert.Equal(t, Allowed, p.CheckTransmitPolicy(confirmedRequest(433.92, 10)))
}

func TestPolicy_BlacklistManagement(t *testing.T) {
	clock := radio.NewManualClock()
	p := New(clock)

	require.True(t, p.AddBlacklist(121.5))
	assert.False(t, p.AddBlacklist(121.55), "duplicate within tolerance rejected")
	assert.Len(t, p.Blacklisted(), 1)

	assert.True(t, p.RemoveBlacklist(121.5))
	assert.False(t, p.RemoveBlacklist(121.5))
	assert.True(t, p.IsFrequencyAllowed(121.5))
}

func TestPolicy_RateLimit(t *testing.T) {
	clock := radio.NewManualClock()
	p := New(clock, WithRateLimit(3))

	req := confirmedRequest(433.92, 10)

	// Three allowed transmissions within five seconds.
	for i := 0; i < 3; i++ {
		perm := p.CheckTransmitPolicy(req)
		require.Equal(t, Allowed, perm)
		p.LogTransmitAttempt(req, true, perm)
		clock.Advance(time.Second)
	}

	assert.Equal(t, 3, p.RecentTransmitCount())
	assert.Equal(t, DeniedRateLimit, p.CheckTransmitPolicy(req))

	// The window empties once the trailing minute passes.
	clock.Advance(61 * time.Second)
	assert.Equal(t, 0, p.RecentTransmitCount())
	assert.Equal(t, Allowed, p.CheckTransmitPolicy(req))
}

func TestPolicy_DurationLimit(t *testing.T) {
	clock := radio.NewManualClock()
	p := New(clock, WithMaxTransmitDuration(500))

	assert.Equal(t, Allowed, p.CheckTransmitPolicy(confirmedRequest(433.92, 500)))
	assert.Equal(t, DeniedPolicy, p.CheckTransmitPolicy(confirmedRequest(433.92, 501)))
}

func TestPolicy_ConfirmationRequired(t *testing.T) {
	clock := radio.NewManualClock()
	p := New(clock)

	req := confirmedRequest(433.92, 10)
	req.Confirmed = false
	assert.Equal(t, DeniedNoConfirmation, p.CheckTransmitPolicy(req))

	p.SetRequireConfirmation(false)
	assert.Equal(t, Allowed, p.CheckTransmitPolicy(req))
}

func TestPolicy_ConfirmationTimeout(t *testing.T) {
	clock := radio.NewManualClock()
	p := New(clock, WithConfirmationTimeout(1000))

	req := confirmedRequest(433.92, 10)
	p.RequestConfirmation(req)
	require.True(t, p.ConfirmationPending())

	clock.Advance(1001 * time.Millisecond)

	// The expired confirmation surfaces as a timeout denial exactly once.
	assert.Equal(t, DeniedTimeout, p.CheckTransmitPolicy(req))
	assert.False(t, p.ConfirmationPending())
	assert.Equal(t, Allowed, p.CheckTransmitPolicy(req))
}

func TestPolicy_EvaluationOrder(t *testing.T) {
	clock := radio.NewManualClock()

	// A request that violates everything at once: the denial reported
	// must follow the fixed short-circuit order.
	p := New(clock, WithBlacklist(121.5), WithRateLimit(0), WithMaxTransmitDuration(1))

	req := Request{FrequencyMHz: 121.5, DurationMs: 100}
	assert.Equal(t, DeniedNoConfirmation, p.CheckTransmitPolicy(req))

	req.Confirmed = true
	assert.Equal(t, DeniedBlacklist, p.CheckTransmitPolicy(req))

	req.FrequencyMHz = 433.92
	assert.Equal(t, DeniedRateLimit, p.CheckTransmitPolicy(req))

	p.SetRateLimit(10)
	assert.Equal(t, DeniedPolicy, p.CheckTransmitPolicy(req))
}

func TestPolicy_AttemptRecords(t *testing.T) {
	clock := radio.NewManualClock()
	p := New(clock)

	req := confirmedRequest(433.92, 10)
	p.LogTransmitAttempt(req, false, DeniedRateLimit)
	p.LogTransmitAttempt(req, true, Allowed)

	records := p.Records()
	require.Len(t, records, 2)
	assert.False(t, records[0].Allowed)
	assert.Equal(t, DeniedRateLimit, records[0].Permission)
	assert.True(t, records[1].Allowed)

	last, ok := p.LastTransmitMs()
	assert.True(t, ok)
	assert.Equal(t, clock.NowMs(), last)
}

func TestPolicy_RecordsBounded(t *testing.T) {
	clock := radio.NewManualClock()
	p := New(clock, WithRateLimit(1000))

	req := confirmedRequest(433.92, 10)
	for i := 0; i < 150; i++ {
		p.LogTransmitAttempt(req, false, DeniedRateLimit)
	}

	assert.Len(t, p.Records(), 100, "oldest records are evicted at the cap")
}

func TestPolicy_Status(t *testing.T) {
	clock := radio.NewManualClock()
	p := New(clock)

	assert.Equal(t, "Safety: LOCKED | Rate: 0/10", p.Status())

	p.SetRequireConfirmation(false)
	assert.Contains(t, p.Status(), "UNLOCKED")
}
