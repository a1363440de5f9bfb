package radio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignal_CloneDeepCopiesPulses(t *testing.T) {
	s := &Signal{
		Band:         BandSubGHz,
		FrequencyMHz: 433.92,
		Pulses:       []uint16{300, 500, 300},
		Valid:        true,
	}

	c := s.Clone()
	require.Equal(t, s.Pulses, c.Pulses)

	c.Pulses[0] = 999
	assert.Equal(t, uint16(300), s.Pulses[0], "clone must own its pulse memory")
	assert.Equal(t, len(s.Pulses), s.PulseCount())
}

func TestSignal_PulseMath(t *testing.T) {
	s := &Signal{Pulses: []uint16{100, 200, 300}}
	assert.Equal(t, uint64(600), s.TotalPulseUs())
	assert.Equal(t, 200.0, s.AvgPulseUs())

	empty := &Signal{}
	assert.Zero(t, empty.AvgPulseUs())
}

func TestSignal_StringBounds(t *testing.T) {
	s := &Signal{}
	s.SetProtocol("0123456789012345678901234567890123456789")
	s.SetDeviceType("0123456789012345678901234567890123456789")

	assert.Len(t, s.Protocol, MaxProtocolLen)
	assert.Len(t, s.DeviceType, MaxDeviceTypeLen)
}

func TestParseBand(t *testing.T) {
	b, err := ParseBand("sub-ghz")
	require.NoError(t, err)
	assert.Equal(t, BandSubGHz, b)

	b, err = ParseBand("2.4-ghz")
	require.NoError(t, err)
	assert.Equal(t, Band24GHz, b)

	_, err = ParseBand("5ghz")
	assert.Error(t, err)
}

func TestManualClock(t *testing.T) {
	c := NewManualClock()
	assert.Zero(t, c.NowMs())

	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, uint32(1500), c.NowMs())
	assert.Equal(t, uint32(1_500_000), c.NowUs())

	c.AdvanceMs(10)
	assert.Equal(t, uint32(1510), c.NowMs())
}

func TestScripted_PollAndEmit(t *testing.T) {
	r := NewScripted(BandSubGHz)
	r.Enqueue(&Signal{Band: BandSubGHz, Valid: true})

	s, err := r.Poll()
	require.NoError(t, err)
	assert.Nil(t, s, "nothing is delivered before receiving starts")

	require.NoError(t, r.StartReceive())
	s, err = r.Poll()
	require.NoError(t, err)
	require.NotNil(t, s)

	s, err = r.Poll()
	require.NoError(t, err)
	assert.Nil(t, s, "queue exhausted")

	err = r.Emit(&Signal{Band: BandSubGHz})
	assert.ErrorIs(t, err, ErrTransmitDisabled)

	r.SetTransmitEnabled(true)
	require.NoError(t, r.Emit(&Signal{Band: BandSubGHz}))
	assert.Len(t, r.Emitted(), 1)
}

func TestScripted_Faults(t *testing.T) {
	r := NewScripted(BandSubGHz)
	require.NoError(t, r.StartReceive())

	r.FailNextPoll(ErrHardware)
	r.Enqueue(&Signal{Band: BandSubGHz, Valid: true})

	_, err := r.Poll()
	assert.ErrorIs(t, err, ErrHardware)

	s, err := r.Poll()
	require.NoError(t, err)
	assert.NotNil(t, s, "the fault is one-shot")
}
