package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canstralian/rf-test-harness/internal/radio"
)

func TestClassifySubGHz(t *testing.T) {
	cases := []struct {
		name     string
		pulses   []uint16
		expected string
	}{
		{"long pulses, long train", pulseTrain(48, 500), DeviceGarageDoor},
		{"short pulses, short train", pulseTrain(24, 300), DeviceDoorbell},
		{"very long train", pulseTrain(128, 375), DeviceCarRemote},
		{"gap duration, short train", pulseTrain(24, 375), DeviceUnknown},
		{"long pulses, short train", pulseTrain(24, 500), DeviceUnknown},
		{"short pulses, mid train", pulseTrain(64, 300), DeviceUnknown},
		{"no pulses", nil, DeviceDoorbell}, // zero average falls under the short rule
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := subGHzSignal(433.92, -60, tc.pulses)
			assert.Equal(t, tc.expected, classifySubGHz(s))
		})
	}
}

func TestClassifySubGHz_OrderStable(t *testing.T) {
	// A train matching both the garage-door and car-remote shapes must
	// always resolve to the first rule.
	s := subGHzSignal(433.92, -60, pulseTrain(128, 500))
	first := classifySubGHz(s)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, classifySubGHz(s))
	}
	assert.Equal(t, DeviceGarageDoor, first)
}

func TestGenerateStatistics(t *testing.T) {
	b := NewCaptureBuffer(10)

	s1 := subGHzSignal(433.92, -40, pulseTrain(20, 300))
	s1.CaptureTimeUs = 1_000_000
	s2 := subGHzSignal(433.92, -80, pulseTrain(20, 300))
	s2.CaptureTimeUs = 3_500_000
	s3 := subGHzSignal(433.92, 0, pulseTrain(20, 300)) // no RSSI measurement
	s3.CaptureTimeUs = 4_000_000

	require.NoError(t, b.Append(s1))
	require.NoError(t, b.Append(s2))
	require.NoError(t, b.Append(s3))

	var r AnalysisResult
	generateStatistics(b, &r)

	assert.Equal(t, 2, r.RSSISampleCount)
	assert.Equal(t, -60.0, r.AvgRSSI)
	assert.Equal(t, -80.0, r.MinRSSI)
	assert.Equal(t, -40.0, r.MaxRSSI)
	assert.Equal(t, uint32(3000), r.CaptureDurationMs)
}

func TestGenerateStatistics_NoRSSIData(t *testing.T) {
	b := NewCaptureBuffer(10)
	require.NoError(t, b.Append(subGHzSignal(433.92, 0, pulseTrain(20, 300))))

	r := AnalysisResult{SignalCount: 1, ValidSignalCount: 1}
	generateStatistics(b, &r)

	assert.Equal(t, 0, r.RSSISampleCount)
	assert.Zero(t, r.MinRSSI)
	assert.Zero(t, r.MaxRSSI)
	assert.Zero(t, r.AvgRSSI)
	assert.Contains(t, buildSummary(&r), "no RSSI data")
}

func TestDetectBindings(t *testing.T) {
	b := NewCaptureBuffer(10)
	require.NoError(t, b.Append(packetSignal("E7:E7:E7:E7:E7", -50, []byte{1, 2, 3})))
	require.NoError(t, b.Append(packetSignal("E7:E7:E7:E7:E7", -52, []byte{1, 2, 4})))
	require.NoError(t, b.Append(packetSignal("C2:C2:C2:C2:C2", -60, []byte{9})))

	bindings := detectBindings(b)
	require.Len(t, bindings, 1)
	assert.Equal(t, "E7:E7:E7:E7:E7", bindings[0])

	assert.True(t, addressObserved(b, "C2:C2:C2:C2:C2"))
	assert.False(t, addressObserved(b, "00:00:00:00:00"))
}

func TestUniquePatternCount(t *testing.T) {
	b := NewCaptureBuffer(10)
	require.NoError(t, b.Append(packetSignal("A", -50, []byte{1, 2})))
	require.NoError(t, b.Append(packetSignal("A", -55, []byte{1, 2}))) // duplicate shape
	require.NoError(t, b.Append(packetSignal("A", -50, []byte{1, 3})))
	require.NoError(t, b.Append(packetSignal("B", -50, []byte{1, 2})))

	invalid := packetSignal("C", -50, []byte{7})
	invalid.Valid = false
	require.NoError(t, b.Append(invalid))

	assert.Equal(t, 3, uniquePatternCount(b))
}

func TestAnalysis_ClassifiesBufferedSignals(t *testing.T) {
	rig := radio.NewScripted(radio.BandSubGHz)
	rig.Enqueue(subGHzSignal(433.92, -60, pulseTrain(48, 500)))
	rig.Enqueue(subGHzSignal(433.92, -62, pulseTrain(24, 300)))

	h := newHarness(t, rig, nil)
	h.reachReady(t)

	result := h.w.AnalysisResult()
	assert.True(t, result.Complete)
	assert.Equal(t, 2, result.SignalCount)
	assert.Equal(t, 2, result.ValidSignalCount)
	assert.NotEmpty(t, result.Summary)

	require.Equal(t, 2, h.w.CapturedSignalCount())
	assert.Equal(t, DeviceGarageDoor, h.w.CapturedSignal(0).DeviceType)
	assert.Equal(t, DeviceDoorbell, h.w.CapturedSignal(1).DeviceType)
}
