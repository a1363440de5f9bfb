package workflow

import (
	"github.com/canstralian/rf-test-harness/internal/radio"
)

const (
	// minSubGHzPulses is the fewest pulses a capture must carry to be
	// worth keeping.
	minSubGHzPulses = 10

	// minSubGHzRSSI and min24GHzRSSI are the weakest accepted signal
	// strengths; a sub-GHz RSSI of 0 means the driver had no
	// measurement and is accepted.
	minSubGHzRSSI = -100
	min24GHzRSSI  = -90
)

// CaptureBuffer is a bounded, owning, ordered collection of captured
// signals. Appends move signal ownership into the buffer; Clear drops
// every owned pulse sequence. Only the workflow loop mutates it.
type CaptureBuffer struct {
	capacity int
	signals  []*radio.Signal
}

// NewCaptureBuffer creates a buffer holding up to capacity signals.
func NewCaptureBuffer(capacity int) *CaptureBuffer {
	return &CaptureBuffer{capacity: capacity}
}

// Reserve pre-allocates backing storage for the full capacity.
func (b *CaptureBuffer) Reserve() {
	if cap(b.signals) < b.capacity {
		next := make([]*radio.Signal, len(b.signals), b.capacity)
		copy(next, b.signals)
		b.signals = next
	}
}

// Append takes ownership of the signal. It fails with ErrBufferOverflow
// when the buffer is full.
func (b *CaptureBuffer) Append(s *radio.Signal) error {
	if len(b.signals) >= b.capacity {
		return ErrBufferOverflow
	}
	b.signals = append(b.signals, s)
	return nil
}

// Len returns the number of stored signals.
func (b *CaptureBuffer) Len() int {
	return len(b.signals)
}

// Capacity returns the configured bound.
func (b *CaptureBuffer) Capacity() int {
	return b.capacity
}

// Usage returns the fill ratio in [0, 1].
func (b *CaptureBuffer) Usage() float64 {
	return float64(len(b.signals)) / float64(b.capacity)
}

// At returns the i-th signal as a borrowed reference, valid until the
// buffer is next mutated. It returns nil when out of range.
func (b *CaptureBuffer) At(i int) *radio.Signal {
	if i < 0 || i >= len(b.signals) {
		return nil
	}
	return b.signals[i]
}

// Clear drops all stored signals along with their pulse sequences.
func (b *CaptureBuffer) Clear() {
	for i := range b.signals {
		b.signals[i] = nil
	}
	b.signals = b.signals[:0]
}

// validCapture applies the band-specific acceptance rules a freshly
// captured signal must pass before it is buffered.
func validCapture(s *radio.Signal) bool {
	switch s.Band {
	case radio.BandSubGHz:
		if s.PulseCount() < minSubGHzPulses {
			return false
		}
		if s.RSSI != 0 && int(s.RSSI) < minSubGHzRSSI {
			return false
		}
		return true

	case radio.Band24GHz:
		if s.DataLen < 1 || s.DataLen > radio.MaxPayloadLen {
			return false
		}
		return int(s.RSSI) >= min24GHzRSSI

	default:
		return false
	}
}
