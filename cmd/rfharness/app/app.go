package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/canstralian/rf-test-harness/internal/radio"
	"github.com/canstralian/rf-test-harness/internal/safety"
	"github.com/canstralian/rf-test-harness/internal/storage"
	"github.com/canstralian/rf-test-harness/internal/workflow"
)

const (
	storageDir = "data"

	// statePollInterval paces the scenario driver's state watching.
	statePollInterval = 20 * time.Millisecond

	// captureSpacingUs separates scripted captures on the timeline.
	captureSpacingUs = 250_000
)

// Run executes one harness run: it replays the configured scenario
// through the workflow, persists captures and audit events, and prints
// a summary.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	cfg, err := config.workflowConfig()
	if err != nil {
		return fmt.Errorf("building workflow configuration: %w", err)
	}

	clock := radio.NewMonotonicClock()

	rig := radio.NewScripted(cfg.Band)
	for i, scenarioSignal := range config.Scenario.Signals {
		sig, bErr := scenarioSignal.buildSignal(cfg.Band, uint32(i)*captureSpacingUs)
		if bErr != nil {
			return fmt.Errorf("building scenario signal %d: %w", i, bErr)
		}
		rig.Enqueue(sig)
	}

	policy := safety.New(clock, append(config.policyOptions(cfg), safety.WithLogger(logger))...)

	options := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithClock(clock),
	}

	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("creating storage: %w", err)
	}
	defer store.Close()

	deviceID := config.Scenario.DeviceID
	if deviceID == "" {
		deviceID = "scripted"
	}

	runID, err := store.CreateRun(ctx, cfg.Band.String(), deviceID, config.Workflow)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}

	options = append(options, workflow.WithAuditSink(storage.NewEventSink(store, runID, logger)))

	wf, err := workflow.New(cfg, rig, policy, options...)
	if err != nil {
		return fmt.Errorf("building workflow: %w", err)
	}

	driverDone := make(chan struct{})
	go driveScenario(ctx, wf, &config.Scenario, cfg, driverDone)

	runErr := wf.Start(ctx)
	<-driverDone

	signals := make([]*radio.Signal, 0, wf.CapturedSignalCount())
	for i := 0; i < wf.CapturedSignalCount(); i++ {
		signals = append(signals, wf.CapturedSignal(i))
	}
	if err = store.BatchStoreSignals(ctx, runID, signals); err != nil {
		return fmt.Errorf("storing captures: %w", err)
	}

	result := wf.AnalysisResult()
	logger.Info("run summary",
		slog.Group("analysis",
			slog.String("signals", humanize.Comma(int64(result.SignalCount))),
			slog.String("valid", humanize.Comma(int64(result.ValidSignalCount))),
			slog.String("unique", humanize.Comma(int64(result.UniquePatterns))),
			slog.Bool("complete", result.Complete),
			slog.String("summary", result.Summary),
		),
		slog.Group("audit",
			slog.Int("transitions", wf.TransitionLogCount()),
			slog.Int("errors", wf.ErrorCount()),
		))

	if config.Scenario.ExportJSON != "" {
		doc, eErr := wf.ExportLogsJSON()
		if eErr != nil {
			return fmt.Errorf("exporting audit log: %w", eErr)
		}
		if eErr = os.WriteFile(config.Scenario.ExportJSON, []byte(doc), 0o644); eErr != nil {
			return fmt.Errorf("writing audit log export: %w", eErr)
		}
		logger.Info("audit log exported", slog.String("path", config.Scenario.ExportJSON))
	}

	if runErr != nil {
		return fmt.Errorf("workflow run: %w", runErr)
	}
	return nil
}

// driveScenario plays the configured user actions against the running
// workflow from a separate goroutine, the way a button ISR would.
func driveScenario(ctx context.Context, wf *workflow.Workflow, scenario *ScenarioConfig, cfg workflow.Config, done chan<- struct{}) {
	defer close(done)

	if !scenario.AutoTrigger && !scenario.AutoTransmit {
		return
	}

	ticker := time.NewTicker(statePollInterval)
	defer ticker.Stop()

	triggered := false
	selected := false
	confirmed := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		switch wf.State() {
		case workflow.StateListening:
			if scenario.AutoTrigger && !triggered && wf.ElapsedInStateMs() >= cfg.ListenMinTimeMs {
				wf.TriggerAnalysis()
				triggered = true
			}

		case workflow.StateReady:
			if scenario.AutoTransmit && !selected {
				wf.SelectSignalForTransmission(scenario.SignalIndex)
				selected = true
			}

		case workflow.StateTxGated:
			if scenario.AutoConfirm && !confirmed {
				wf.ConfirmTransmission()
				confirmed = true
			}

		case workflow.StateIdle:
			if !wf.IsRunning() {
				return
			}
		}
	}
}

// createStorage opens a timestamped sqlite database under the
// configured data directory.
func createStorage(config *StorageConfig) (*storage.Store, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dbPath := filepath.Join(wd, storageDir)
	if config.DataDirectory != "" {
		dbPath = config.DataDirectory
		if !filepath.IsAbs(dbPath) {
			dbPath = filepath.Join(wd, dbPath)
		}
	}

	if err = os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory '%s': %w", dbPath, err)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("rf_run_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.New(dbPath), nil
}
