package radio

import (
	"errors"
	"fmt"
)

const (
	// MaxPayloadLen is the size of the fixed raw data buffer carried by
	// every captured signal.
	MaxPayloadLen = 32

	// MaxProtocolLen bounds the protocol identifier string.
	MaxProtocolLen = 31

	// MaxDeviceTypeLen bounds the device type classification string.
	MaxDeviceTypeLen = 31
)

var (
	// ErrTransmitDisabled is returned by Emit when the transmitter has not
	// been enabled.
	ErrTransmitDisabled = errors.New("transmitter is disabled")

	// ErrHardware is returned when the radio reports a fault during
	// capture or emission.
	ErrHardware = errors.New("radio hardware fault")
)

// Band selects the radio physical layer.
type Band uint8

const (
	// BandSubGHz is the pulse-timed on/off keyed band around 433 MHz.
	BandSubGHz Band = iota

	// Band24GHz is the 2.4 GHz packet band.
	Band24GHz
)

func (b Band) String() string {
	switch b {
	case BandSubGHz:
		return "sub-ghz"
	case Band24GHz:
		return "2.4-ghz"
	default:
		return fmt.Sprintf("band(%d)", uint8(b))
	}
}

// ParseBand converts a configuration string into a Band.
func ParseBand(s string) (Band, error) {
	switch s {
	case "sub-ghz", "433", "433mhz":
		return BandSubGHz, nil
	case "2.4-ghz", "24ghz", "2.4ghz":
		return Band24GHz, nil
	default:
		return BandSubGHz, fmt.Errorf("unknown band %q", s)
	}
}

// Signal is a single radio observation. The pulse slice is owned
// exclusively by the signal; use Clone to copy one, and treat a signal
// handed to a buffer or a radio as moved.
type Signal struct {
	CaptureTimeUs uint32  // capture timestamp, microseconds
	Band          Band    // which physical layer produced it
	FrequencyMHz  float64 // carrier frequency
	RSSI          int8    // dBm, 0 when the driver has no measurement

	Data    [MaxPayloadLen]byte // raw payload
	DataLen uint8               // bytes of Data actually used

	Pulses []uint16 // pulse durations in µs, sub-GHz only

	Protocol   string // protocol identifier, truncated to MaxProtocolLen
	DeviceType string // classification, truncated to MaxDeviceTypeLen

	Valid bool // set by the decoder, re-checked by analysis
}

// Clone returns a deep copy; the pulse sequence is duplicated so the
// copy owns its own memory.
func (s *Signal) Clone() *Signal {
	c := *s
	if len(s.Pulses) > 0 {
		c.Pulses = make([]uint16, len(s.Pulses))
		copy(c.Pulses, s.Pulses)
	}
	return &c
}

// PulseCount returns the number of pulse durations carried by the signal.
func (s *Signal) PulseCount() int {
	return len(s.Pulses)
}

// AvgPulseUs returns the arithmetic mean pulse duration, or 0 when the
// signal carries no pulses.
func (s *Signal) AvgPulseUs() float64 {
	if len(s.Pulses) == 0 {
		return 0
	}
	var sum uint64
	for _, p := range s.Pulses {
		sum += uint64(p)
	}
	return float64(sum) / float64(len(s.Pulses))
}

// TotalPulseUs returns the summed duration of all pulses in microseconds.
func (s *Signal) TotalPulseUs() uint64 {
	var sum uint64
	for _, p := range s.Pulses {
		sum += uint64(p)
	}
	return sum
}

// SetProtocol stores the protocol identifier, truncated to its bound.
func (s *Signal) SetProtocol(p string) {
	s.Protocol = Truncate(p, MaxProtocolLen)
}

// SetDeviceType stores the classification, truncated to its bound.
func (s *Signal) SetDeviceType(t string) {
	s.DeviceType = Truncate(t, MaxDeviceTypeLen)
}

// Truncate bounds s to max bytes.
func Truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// Radio is a band-specific capture and emit device. Poll must never
// block; it returns nil when no signal is pending.
type Radio interface {
	Band() Band
	StartReceive() error
	StopReceive()
	SetTransmitEnabled(enabled bool)
	Poll() (*Signal, error)
	Emit(s *Signal) error
}
