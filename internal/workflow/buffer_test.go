package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canstralian/rf-test-harness/internal/radio"
)

func TestCaptureBuffer_Bounds(t *testing.T) {
	b := NewCaptureBuffer(2)
	b.Reserve()

	require.NoError(t, b.Append(subGHzSignal(433.92, -60, pulseTrain(20, 300))))
	require.NoError(t, b.Append(subGHzSignal(433.92, -61, pulseTrain(20, 300))))
	assert.ErrorIs(t, b.Append(subGHzSignal(433.92, -62, pulseTrain(20, 300))), ErrBufferOverflow)

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 1.0, b.Usage())
}

func TestCaptureBuffer_AtAndClear(t *testing.T) {
	b := NewCaptureBuffer(4)
	s := subGHzSignal(433.92, -60, pulseTrain(20, 300))
	require.NoError(t, b.Append(s))

	assert.Same(t, s, b.At(0))
	assert.Nil(t, b.At(1))
	assert.Nil(t, b.At(-1))

	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Nil(t, b.At(0))
}

func TestValidCapture_SubGHz(t *testing.T) {
	cases := []struct {
		name     string
		pulses   []uint16
		rssi     int8
		expected bool
	}{
		{"enough pulses, good rssi", pulseTrain(10, 300), -60, true},
		{"enough pulses, no rssi measurement", pulseTrain(10, 300), 0, true},
		{"too few pulses", pulseTrain(9, 300), -60, false},
		{"rssi below floor", pulseTrain(10, 300), -101, false},
		{"rssi at floor", pulseTrain(10, 300), -100, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := subGHzSignal(433.92, tc.rssi, tc.pulses)
			assert.Equal(t, tc.expected, validCapture(s))
		})
	}
}

func TestValidCapture_24GHz(t *testing.T) {
	cases := []struct {
		name     string
		payload  []byte
		rssi     int8
		expected bool
	}{
		{"good packet", []byte{1, 2, 3}, -50, true},
		{"empty payload", nil, -50, false},
		{"rssi below floor", []byte{1}, -91, false},
		{"rssi at floor", []byte{1}, -90, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := packetSignal("A1", tc.rssi, tc.payload)
			assert.Equal(t, tc.expected, validCapture(s))
		})
	}
}

func TestCapture_RejectsInvalidSignals(t *testing.T) {
	rig := radio.NewScripted(radio.BandSubGHz)
	rig.Enqueue(subGHzSignal(433.92, -60, pulseTrain(20, 300)))
	rig.Enqueue(subGHzSignal(433.92, -60, pulseTrain(5, 300)))   // too few pulses
	rig.Enqueue(subGHzSignal(433.92, -120, pulseTrain(20, 300))) // too weak

	undecoded := subGHzSignal(433.92, -60, pulseTrain(20, 300))
	undecoded.Valid = false
	rig.Enqueue(undecoded)

	h := newHarness(t, rig, nil)
	h.begin()
	h.stepUntil(t, StateListening, 5)
	h.step(2)

	assert.Equal(t, 1, h.w.CapturedSignalCount(), "only the decodable, plausible capture survives")
}
