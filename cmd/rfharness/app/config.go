package app

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/canstralian/rf-test-harness/internal/radio"
	"github.com/canstralian/rf-test-harness/internal/safety"
	"github.com/canstralian/rf-test-harness/internal/workflow"
)

// Config is the harness application configuration.
type Config struct {
	Settings Settings       `yaml:"settings"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Safety   SafetyConfig   `yaml:"safety"`
	Storage  StorageConfig  `yaml:"storage"`
	Scenario ScenarioConfig `yaml:"scenario"`
}

// Settings holds global application settings.
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// WorkflowConfig mirrors the workflow timing and sizing knobs. Zero
// values fall back to the workflow defaults.
type WorkflowConfig struct {
	Band                  string `yaml:"band"`
	InitTimeoutMs         uint32 `yaml:"initTimeoutMs"`
	ListenMinTimeMs       uint32 `yaml:"listenMinTimeMs"`
	ListenMaxTimeMs       uint32 `yaml:"listenMaxTimeMs"`
	AnalyzeTimeoutMs      uint32 `yaml:"analyzeTimeoutMs"`
	ReadyTimeoutMs        uint32 `yaml:"readyTimeoutMs"`
	TxGateTimeoutMs       uint32 `yaml:"txGateTimeoutMs"`
	TransmitMaxDurationMs uint32 `yaml:"transmitMaxDurationMs"`
	CleanupTimeoutMs      uint32 `yaml:"cleanupTimeoutMs"`
	BufferSize            int    `yaml:"bufferSize"`
	DryRun                bool   `yaml:"dryRun"`
}

// SafetyConfig parameterizes the transmission policy.
type SafetyConfig struct {
	RequireConfirmation   *bool     `yaml:"requireConfirmation"`
	MaxTransmitsPerMinute int       `yaml:"maxTransmitsPerMinute"`
	BlacklistMHz          []float64 `yaml:"blacklistMHz"`
}

// StorageConfig points at the capture database directory. An empty
// directory selects "data" under the working directory.
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
}

// ScenarioSignal describes one scripted observation to replay through
// the harness.
type ScenarioSignal struct {
	FrequencyMHz float64  `yaml:"frequencyMHz"`
	RSSI         int      `yaml:"rssi"`
	PulsesUs     []uint16 `yaml:"pulsesUs"`
	Data         string   `yaml:"data"` // hex-encoded payload
	Protocol     string   `yaml:"protocol"`
}

// ScenarioConfig drives a deterministic replay run.
type ScenarioConfig struct {
	DeviceID string           `yaml:"deviceId"`
	Signals  []ScenarioSignal `yaml:"signals"`

	// AutoTrigger requests analysis once the minimum observation
	// window has passed.
	AutoTrigger bool `yaml:"autoTrigger"`

	// AutoTransmit selects SignalIndex in READY and, with AutoConfirm,
	// answers the confirmation gate. Meant for dry-run exercising of
	// the gate pipeline.
	AutoTransmit bool `yaml:"autoTransmit"`
	SignalIndex  int  `yaml:"signalIndex"`
	AutoConfirm  bool `yaml:"autoConfirm"`

	// ExportJSON, when set, receives the audit log export.
	ExportJSON string `yaml:"exportJson"`
}

// LoadConfig reads and decodes a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	return &config, nil
}

// workflowConfig maps the YAML knobs onto a workflow.Config, filling
// defaults for unset values.
func (c *Config) workflowConfig() (workflow.Config, error) {
	cfg := workflow.DefaultConfig()

	if c.Workflow.Band != "" {
		band, err := radio.ParseBand(c.Workflow.Band)
		if err != nil {
			return cfg, err
		}
		cfg.Band = band
	}

	setIfNonZero(&cfg.InitTimeoutMs, c.Workflow.InitTimeoutMs)
	setIfNonZero(&cfg.ListenMinTimeMs, c.Workflow.ListenMinTimeMs)
	setIfNonZero(&cfg.ListenMaxTimeMs, c.Workflow.ListenMaxTimeMs)
	setIfNonZero(&cfg.AnalyzeTimeoutMs, c.Workflow.AnalyzeTimeoutMs)
	setIfNonZero(&cfg.ReadyTimeoutMs, c.Workflow.ReadyTimeoutMs)
	setIfNonZero(&cfg.TxGateTimeoutMs, c.Workflow.TxGateTimeoutMs)
	setIfNonZero(&cfg.TransmitMaxDurationMs, c.Workflow.TransmitMaxDurationMs)
	setIfNonZero(&cfg.CleanupTimeoutMs, c.Workflow.CleanupTimeoutMs)

	if c.Workflow.BufferSize > 0 {
		cfg.BufferSize = c.Workflow.BufferSize
	}
	cfg.DryRun = c.Workflow.DryRun

	return cfg, cfg.Validate()
}

// policyOptions maps the safety knobs onto policy options.
func (c *Config) policyOptions(cfg workflow.Config) []safety.Option {
	opts := []safety.Option{
		safety.WithMaxTransmitDuration(cfg.TransmitMaxDurationMs),
		safety.WithConfirmationTimeout(cfg.TxGateTimeoutMs),
	}
	if c.Safety.RequireConfirmation != nil {
		opts = append(opts, safety.WithRequireConfirmation(*c.Safety.RequireConfirmation))
	}
	if c.Safety.MaxTransmitsPerMinute > 0 {
		opts = append(opts, safety.WithRateLimit(c.Safety.MaxTransmitsPerMinute))
	}
	if len(c.Safety.BlacklistMHz) > 0 {
		opts = append(opts, safety.WithBlacklist(c.Safety.BlacklistMHz...))
	}
	return opts
}

// buildSignal converts a scenario entry into a captured signal. The
// capture timestamp is assigned by the caller.
func (s *ScenarioSignal) buildSignal(band radio.Band, captureUs uint32) (*radio.Signal, error) {
	sig := radio.Signal{
		CaptureTimeUs: captureUs,
		Band:          band,
		FrequencyMHz:  s.FrequencyMHz,
		RSSI:          int8(s.RSSI),
		Valid:         true,
	}

	if s.Data != "" {
		payload, err := hex.DecodeString(s.Data)
		if err != nil {
			return nil, fmt.Errorf("decoding signal payload: %w", err)
		}
		if len(payload) > radio.MaxPayloadLen {
			return nil, fmt.Errorf("signal payload exceeds %d bytes", radio.MaxPayloadLen)
		}
		copy(sig.Data[:], payload)
		sig.DataLen = uint8(len(payload))
	}

	if len(s.PulsesUs) > 0 {
		sig.Pulses = make([]uint16, len(s.PulsesUs))
		copy(sig.Pulses, s.PulsesUs)
	}

	sig.SetProtocol(s.Protocol)
	return &sig, nil
}

func setIfNonZero(dst *uint32, v uint32) {
	if v != 0 {
		*dst = v
	}
}
