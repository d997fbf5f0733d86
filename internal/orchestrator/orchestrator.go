package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"carousel/internal/automation"
	"carousel/internal/bus"
	"carousel/internal/config"
	"carousel/internal/ingest"
	"carousel/internal/logging"
	"carousel/internal/notifications"
	"carousel/internal/pipeline"
	"carousel/internal/preflight"
	"carousel/internal/recovery"
	"carousel/internal/tracker"
	"carousel/internal/turntable"
	"carousel/internal/uploader"
)

// Manager wires the pipeline components together and exposes the operations
// the daemon serves over IPC.
type Manager struct {
	cfg      *config.Config
	logger   *slog.Logger
	hub      *bus.Hub
	machine  *pipeline.Machine
	driver   automation.Driver
	table    turntable.Controller
	store    *recovery.Store
	notifier notifications.Service
	uploader uploader.Uploader
	tracker  *tracker.Tracker
	watcher  *ingest.Watcher

	mu     sync.Mutex
	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a manager. The driver, turntable controller, recovery
// store, notifier, and uploader are injected; the event hub, stage machine,
// tracker, and ingestion watcher are built here.
func New(cfg *config.Config, driver automation.Driver, table turntable.Controller, store *recovery.Store, notifier notifications.Service, upl uploader.Uploader, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "orchestrator"),
		hub:      bus.NewHub(256),
		driver:   driver,
		table:    table,
		store:    store,
		notifier: notifier,
		uploader: upl,
	}
	m.machine = pipeline.NewMachine(m.hub, &stageHooks{m: m}, logger)
	m.tracker = tracker.New(driver, m.machine, logger, tracker.Options{
		Interval:        time.Duration(cfg.Workflow.PollIntervalSeconds) * time.Second,
		MaxAttempts:     cfg.Workflow.MaxPollAttempts,
		ErrorStreakWarn: cfg.Workflow.ErrorStreakWarn,
		Markers:         tracker.MarkersFromConfig(cfg.Tracker),
	})
	m.tracker.OnCompleted = m.onJobCompleted
	m.tracker.OnFailed = m.onJobFailed
	m.watcher = ingest.New(ingest.Settings{
		InboundDir:      cfg.Paths.InboundDir,
		OutboundDir:     cfg.Paths.OutboundDir,
		MinArchiveBytes: int64(cfg.Workflow.MinArchiveBytes),
		StableAfter:     time.Duration(cfg.Workflow.FileStableAfterSeconds) * time.Second,
		SidecarWindow:   time.Duration(cfg.Workflow.SidecarWindowMinutes) * time.Minute,
	}, logger, m.machine.RunID, m.onArtifactReady)
	return m
}

// Hub exposes the event bus for IPC event streaming.
func (m *Manager) Hub() *bus.Hub {
	return m.hub
}

// Status is the point-in-time state served to the CLI.
type Status struct {
	Run                   pipeline.View `json:"run"`
	Tracking              bool          `json:"tracking"`
	Watching              bool          `json:"watching"`
	MonitoringActive      bool          `json:"monitoring_active"`
	MonitoringStartedAt   time.Time     `json:"monitoring_started_at,omitzero"`
	CompletionPhaseActive bool          `json:"completion_phase_active"`
}

// Status reports the run snapshot plus loop and recovery-flag state.
func (m *Manager) Status(ctx context.Context) Status {
	status := Status{
		Run:      m.machine.Snapshot(),
		Tracking: m.tracker.Running(),
		Watching: m.watcher.Running(),
	}
	record, err := m.store.Snapshot(ctx)
	if err != nil {
		m.logger.Warn("could not read recovery flags", logging.Error(err))
		return status
	}
	status.MonitoringActive = record.MonitoringActive
	status.MonitoringStartedAt = record.MonitoringStartedAt
	status.CompletionPhaseActive = record.CompletionPhaseActive
	return status
}

// Start runs preflight, signs in, submits the capture job, and arms the
// tracker and the ingestion watcher. It fails fast when a run is already
// active or a preflight check does not pass.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.runCtx != nil {
		m.mu.Unlock()
		return errors.New("a run is already active")
	}
	if stage := m.machine.CurrentStage(); stage != pipeline.StagePending {
		m.mu.Unlock()
		return fmt.Errorf("run is in stage %s; reset first", stage)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.runCtx = runCtx
	m.cancel = cancel
	m.mu.Unlock()

	results := preflight.RunAll(ctx, m.cfg)
	if !preflight.Passed(results) {
		m.clearRun()
		for _, r := range results {
			if !r.Passed {
				m.logger.Error("preflight check failed",
					logging.String("check", r.Name),
					logging.String("detail", r.Detail),
					logging.String(logging.FieldEventType, "preflight_failed"),
				)
			}
		}
		return errors.New("preflight checks failed")
	}

	if err := m.authenticate(ctx); err != nil {
		m.failRun(fmt.Sprintf("authentication failed: %v", err))
		return err
	}
	if err := m.capture(ctx); err != nil {
		m.failRun(fmt.Sprintf("capture failed: %v", err))
		return err
	}

	if err := m.store.SaveMonitoring(ctx); err != nil {
		m.logger.Warn("could not persist monitoring flag",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a crash before completion loses tracking state"),
		)
	}
	if err := m.armMonitoring(); err != nil {
		m.failRun(fmt.Sprintf("monitoring failed to start: %v", err))
		return err
	}

	if err := m.notifier.NotifyCaptureStarted(ctx, m.machine.RunID()); err != nil {
		m.logger.Debug("capture notification failed", logging.Error(err))
	}
	return nil
}

// armMonitoring starts the ingestion watcher and the job tracker under the
// run-scoped context.
func (m *Manager) armMonitoring() error {
	m.mu.Lock()
	runCtx := m.runCtx
	m.mu.Unlock()
	if runCtx == nil {
		return errors.New("no active run")
	}
	if err := m.watcher.Start(runCtx); err != nil {
		return err
	}
	return m.tracker.Start(runCtx)
}

// StopMonitoring halts the tracker and watcher loops and clears the
// persisted monitoring flag. The run state itself is untouched; Reset
// abandons the run.
func (m *Manager) StopMonitoring(ctx context.Context) error {
	m.tracker.Stop()
	m.watcher.Stop()
	if err := m.store.ClearMonitoring(ctx); err != nil {
		return fmt.Errorf("clear monitoring flag: %w", err)
	}
	return nil
}

// Reset abandons the current run: loops stop, recovery flags clear, the
// turntable stops, and the stage machine returns to pending. An extraction
// already in flight finishes on its own and its completion event is dropped.
func (m *Manager) Reset(ctx context.Context) error {
	m.tracker.Stop()
	m.watcher.Stop()
	m.table.Stop()
	m.table.MotorOff()

	var errs []error
	if err := m.store.ClearMonitoring(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := m.store.ClearCompletionPhase(ctx); err != nil {
		errs = append(errs, err)
	}

	m.clearRun()
	m.machine.Reset()
	return errors.Join(errs...)
}

// Shutdown stops background loops for daemon exit without mutating run or
// recovery state, so the next start can resume.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.tracker.Stop()
	m.watcher.Stop()
	m.wg.Wait()
	m.hub.Close()
}

// Resume applies the startup recovery policy. A persisted completion phase
// restarts the download flow; fresh monitoring is surfaced but never
// auto-resumed; stale monitoring is cleared.
func (m *Manager) Resume(ctx context.Context) error {
	record, err := m.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("read recovery flags: %w", err)
	}

	if record.CompletionPhaseActive {
		m.logger.Info("resuming interrupted download phase",
			logging.String(logging.FieldEventType, "completion_phase_resumed"),
		)
		m.mu.Lock()
		if m.runCtx == nil {
			runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			m.runCtx = runCtx
			m.cancel = cancel
		}
		runCtx := m.runCtx
		m.mu.Unlock()

		m.machine.Advance(pipeline.StageDownload, pipeline.StatusActive, "resuming artifact download")
		m.machine.TriggerDownload()
		if err := m.watcher.Start(runCtx); err != nil {
			return err
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.runDownload(runCtx)
		}()
		return nil
	}

	if !record.MonitoringActive {
		return nil
	}

	staleAfter := time.Duration(m.cfg.Workflow.MonitoringStaleAfterSeconds) * time.Second
	cleared, err := m.store.ClearStaleMonitoring(ctx, staleAfter)
	if err != nil {
		return fmt.Errorf("check monitoring staleness: %w", err)
	}
	if cleared {
		m.logger.Info("cleared stale monitoring flag",
			logging.String(logging.FieldEventType, "stale_monitoring_cleared"),
		)
		return nil
	}
	m.logger.Info("previous monitoring session found; start a new run to resume",
		logging.String(logging.FieldEventType, "monitoring_not_resumed"),
	)
	return nil
}

func (m *Manager) clearRun() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.runCtx = nil
	m.cancel = nil
	m.mu.Unlock()
}

// failRun marks the run failed and tears down whatever was already armed.
func (m *Manager) failRun(reason string) {
	m.machine.Fail(reason)
	m.table.Stop()
	m.table.MotorOff()

	ctx := context.Background()
	if err := m.store.ClearMonitoring(ctx); err != nil {
		m.logger.Warn("could not clear monitoring flag", logging.Error(err))
	}
	if err := m.store.ClearCompletionPhase(ctx); err != nil {
		m.logger.Warn("could not clear completion phase flag", logging.Error(err))
	}
	if err := m.notifier.NotifyError(ctx, errors.New(reason), "pipeline"); err != nil {
		m.logger.Debug("error notification failed", logging.Error(err))
	}
	m.clearRun()
}

// onJobFailed runs after the tracker observed a failed job or exhausted its
// attempt budget; the stage machine is already failed. Loops are torn down
// here, except the tracker's own loop which terminates itself.
func (m *Manager) onJobFailed(reason string) {
	m.watcher.Stop()
	m.table.Stop()
	m.table.MotorOff()

	ctx := context.Background()
	if err := m.store.ClearMonitoring(ctx); err != nil {
		m.logger.Warn("could not clear monitoring flag", logging.Error(err))
	}
	if err := m.store.ClearCompletionPhase(ctx); err != nil {
		m.logger.Warn("could not clear completion phase flag", logging.Error(err))
	}
	if err := m.notifier.NotifyError(ctx, errors.New(reason), "reconstruction"); err != nil {
		m.logger.Debug("error notification failed", logging.Error(err))
	}
	m.clearRun()
}
