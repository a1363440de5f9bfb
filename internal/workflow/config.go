package workflow

import (
	"fmt"

	"github.com/canstralian/rf-test-harness/internal/radio"
)

// Default timing and sizing values, in milliseconds unless noted.
const (
	DefaultInitTimeoutMs         = 5000
	DefaultListenMinTimeMs       = 1000
	DefaultListenMaxTimeMs       = 60000
	DefaultAnalyzeTimeoutMs      = 10000
	DefaultReadyTimeoutMs        = 120000
	DefaultTxGateTimeoutMs       = 10000
	DefaultTransmitMaxDurationMs = 5000
	DefaultCleanupTimeoutMs      = 5000
	DefaultBufferSize            = 100
)

// Config is frozen when the workflow is constructed.
type Config struct {
	Band radio.Band

	InitTimeoutMs         uint32 // INIT deadline
	ListenMinTimeMs       uint32 // earliest permitted exit from LISTENING
	ListenMaxTimeMs       uint32 // forced exit from LISTENING
	AnalyzeTimeoutMs      uint32 // ANALYZING deadline
	ReadyTimeoutMs        uint32 // READY deadline
	TxGateTimeoutMs       uint32 // gate-2 confirmation wait
	TransmitMaxDurationMs uint32 // TRANSMIT deadline
	CleanupTimeoutMs      uint32 // CLEANUP deadline

	BufferSize int

	// DryRun simulates emission instead of keying the transmitter.
	DryRun bool
}

// DefaultConfig returns the stock sub-GHz configuration.
func DefaultConfig() Config {
	return Config{
		Band:                  radio.BandSubGHz,
		InitTimeoutMs:         DefaultInitTimeoutMs,
		ListenMinTimeMs:       DefaultListenMinTimeMs,
		ListenMaxTimeMs:       DefaultListenMaxTimeMs,
		AnalyzeTimeoutMs:      DefaultAnalyzeTimeoutMs,
		ReadyTimeoutMs:        DefaultReadyTimeoutMs,
		TxGateTimeoutMs:       DefaultTxGateTimeoutMs,
		TransmitMaxDurationMs: DefaultTransmitMaxDurationMs,
		CleanupTimeoutMs:      DefaultCleanupTimeoutMs,
		BufferSize:            DefaultBufferSize,
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.BufferSize <= 0 {
		return fmt.Errorf("invalid buffer size: %d", c.BufferSize)
	}
	if c.ListenMinTimeMs > c.ListenMaxTimeMs {
		return fmt.Errorf("listen-min %dms exceeds listen-max %dms", c.ListenMinTimeMs, c.ListenMaxTimeMs)
	}
	if c.TransmitMaxDurationMs == 0 {
		return fmt.Errorf("transmit max duration must be positive")
	}
	return nil
}
