package workflow

import (
	"fmt"
	"math"

	"github.com/canstralian/rf-test-harness/internal/radio"
)

const (
	maxSummaryLen = 255

	// analysisChunkSize bounds how many signals one ANALYZING tick
	// classifies, keeping analysis interruptible by its timeout.
	analysisChunkSize = 32

	// bindingRecurrence is how often an address must recur in the
	// capture buffer before it counts as an observed binding.
	bindingRecurrence = 2
)

// Device type labels assigned by the sub-GHz classifier.
const (
	DeviceGarageDoor = "Garage Door"
	DeviceDoorbell   = "Doorbell"
	DeviceCarRemote  = "Car Remote"
	DeviceUnknown    = "Unknown"
)

// AnalysisResult summarizes one pass over the capture buffer.
//
// RSSI statistics cover only signals with a non-zero RSSI;
// RSSISampleCount says how many that was. When it is zero the min, max
// and average are all zero and the summary reports no RSSI data.
type AnalysisResult struct {
	SignalCount       int
	ValidSignalCount  int
	UniquePatterns    int
	AvgRSSI           float64
	MinRSSI           float64
	MaxRSSI           float64
	RSSISampleCount   int
	CaptureDurationMs uint32
	AnalysisTimeMs    uint32
	Complete          bool
	Summary           string
}

// classifySubGHz labels a signal by its pulse shape. The rules apply in
// fixed order and the first match wins, so the same input always maps
// to the same label.
func classifySubGHz(s *radio.Signal) string {
	avg := s.AvgPulseUs()
	n := s.PulseCount()

	switch {
	case avg > 400 && n >= 48:
		return DeviceGarageDoor
	case avg < 350 && n < 48:
		return DeviceDoorbell
	case n >= 128:
		return DeviceCarRemote
	default:
		return DeviceUnknown
	}
}

// detectBindings returns the protocol identifiers that recur at least
// bindingRecurrence times among valid buffered packets.
func detectBindings(b *CaptureBuffer) []string {
	counts := make(map[string]int)
	var order []string

	for i := 0; i < b.Len(); i++ {
		s := b.At(i)
		if !s.Valid || s.Protocol == "" {
			continue
		}
		if counts[s.Protocol] == 0 {
			order = append(order, s.Protocol)
		}
		counts[s.Protocol]++
	}

	var bindings []string
	for _, addr := range order {
		if counts[addr] >= bindingRecurrence {
			bindings = append(bindings, addr)
		}
	}
	return bindings
}

// addressObserved reports whether the protocol identifier appears at
// least once in the buffer, which is the gate-4 binding requirement.
func addressObserved(b *CaptureBuffer, address string) bool {
	for i := 0; i < b.Len(); i++ {
		if b.At(i).Protocol == address {
			return true
		}
	}
	return false
}

// uniquePatternCount counts distinct (protocol, data length, payload,
// pulse count) shapes among valid signals.
func uniquePatternCount(b *CaptureBuffer) int {
	seen := make(map[string]struct{})
	for i := 0; i < b.Len(); i++ {
		s := b.At(i)
		if !s.Valid {
			continue
		}
		key := fmt.Sprintf("%s|%d|%x|%d", s.Protocol, s.DataLen, s.Data[:s.DataLen], s.PulseCount())
		seen[key] = struct{}{}
	}
	return len(seen)
}

// generateStatistics fills the RSSI and duration fields of the result
// from the buffered signals.
func generateStatistics(b *CaptureBuffer, r *AnalysisResult) {
	if b.Len() == 0 {
		return
	}

	minRSSI := math.Inf(1)
	maxRSSI := math.Inf(-1)
	var sum float64
	var count int

	for i := 0; i < b.Len(); i++ {
		s := b.At(i)
		if s.RSSI == 0 {
			continue
		}
		v := float64(s.RSSI)
		sum += v
		count++
		minRSSI = math.Min(minRSSI, v)
		maxRSSI = math.Max(maxRSSI, v)
	}

	r.RSSISampleCount = count
	if count > 0 {
		r.AvgRSSI = sum / float64(count)
		r.MinRSSI = minRSSI
		r.MaxRSSI = maxRSSI
	} else {
		r.AvgRSSI = 0
		r.MinRSSI = 0
		r.MaxRSSI = 0
	}

	first := b.At(0).CaptureTimeUs
	last := b.At(b.Len() - 1).CaptureTimeUs
	r.CaptureDurationMs = (last - first) / 1000
}

// buildSummary renders the free-form summary line, bounded to
// maxSummaryLen.
func buildSummary(r *AnalysisResult) string {
	var s string
	if r.RSSISampleCount > 0 {
		s = fmt.Sprintf("%d signals, %d valid, %d unique, avg RSSI: %.1f dBm",
			r.SignalCount, r.ValidSignalCount, r.UniquePatterns, r.AvgRSSI)
	} else {
		s = fmt.Sprintf("%d signals, %d valid, %d unique, no RSSI data",
			r.SignalCount, r.ValidSignalCount, r.UniquePatterns)
	}
	return radio.Truncate(s, maxSummaryLen)
}
