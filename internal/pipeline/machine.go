package pipeline

import (
	"log/slog"
	"sync"

	"carousel/internal/bus"
	"carousel/internal/logging"
)

// StageHooks receives stage-entry callbacks. Implementations must be
// fire-and-forget; failures are theirs to log.
type StageHooks interface {
	StageEntered(stage Stage)
}

// NoopHooks satisfies StageHooks without side effects.
type NoopHooks struct{}

func (NoopHooks) StageEntered(Stage) {}

// Machine is the stage state machine for the current pipeline run.
type Machine struct {
	hub    *bus.Hub
	hooks  StageHooks
	logger *slog.Logger

	mu  sync.Mutex
	run Run
}

// NewMachine constructs a machine publishing to hub and delegating stage
// side effects to hooks.
func NewMachine(hub *bus.Hub, hooks StageHooks, logger *slog.Logger) *Machine {
	if hooks == nil {
		hooks = NoopHooks{}
	}
	return &Machine{
		hub:    hub,
		hooks:  hooks,
		logger: logging.NewComponentLogger(logger, "pipeline"),
		run:    newRun(),
	}
}

// Advance moves the run to the given stage and status. Transitions to an
// earlier stage are rejected and logged; repeating the current stage and
// status is an idempotent no-op that re-triggers neither events nor hooks.
// A Failed run accepts no transitions until Reset. Returns true when the run
// state changed.
func (m *Machine) Advance(stage Stage, status StageStatus, message string) bool {
	m.mu.Lock()
	if m.run.CurrentStage == StageFailed {
		m.mu.Unlock()
		m.logger.Warn("transition rejected: run is failed",
			logging.String("requested_stage", stage.String()),
			logging.String(logging.FieldEventType, "stage_transition_rejected"),
		)
		return false
	}
	if stage < m.run.CurrentStage {
		current := m.run.CurrentStage
		m.mu.Unlock()
		m.logger.Warn("transition rejected: stage would regress",
			logging.String("current_stage", current.String()),
			logging.String("requested_stage", stage.String()),
			logging.String(logging.FieldEventType, "stage_transition_rejected"),
		)
		return false
	}
	if stage == m.run.CurrentStage && status == m.run.StageStatus {
		m.mu.Unlock()
		return false
	}

	entered := stage != m.run.CurrentStage
	m.run.CurrentStage = stage
	m.run.StageStatus = status
	m.run.Message = message
	runID := m.run.ID
	m.mu.Unlock()

	m.logger.Info("stage transition",
		logging.String(logging.FieldStage, stage.String()),
		logging.String("status", string(status)),
		logging.String(logging.FieldEventType, "stage_transition"),
	)

	if entered {
		m.hooks.StageEntered(stage)
		m.hub.Publish(bus.Event{RunID: runID, Step: stage.Step(), Message: message})
	}
	return true
}

// Complete moves the run to Completed and publishes the single completion
// event carrying the published artifact's folder and path.
func (m *Machine) Complete(folder, path string) bool {
	m.mu.Lock()
	if m.run.CurrentStage == StageFailed || m.run.CurrentStage == StageCompleted {
		m.mu.Unlock()
		return false
	}
	m.run.CurrentStage = StageCompleted
	m.run.StageStatus = StatusCompleted
	m.run.Message = "artifact ready: " + folder
	runID := m.run.ID
	m.mu.Unlock()

	m.logger.Info("pipeline completed",
		logging.String("folder", folder),
		logging.String(logging.FieldEventType, "pipeline_completed"),
	)
	m.hooks.StageEntered(StageCompleted)
	m.hub.Publish(bus.Event{RunID: runID, Step: bus.StepComplete, Folder: folder, Path: path})
	return true
}

// Fail moves the run to Failed from any state and publishes an error event.
// Failed is terminal until Reset.
func (m *Machine) Fail(message string) {
	m.mu.Lock()
	if m.run.CurrentStage == StageFailed {
		m.mu.Unlock()
		return
	}
	m.run.CurrentStage = StageFailed
	m.run.StageStatus = StatusCompleted
	m.run.Message = message
	runID := m.run.ID
	m.mu.Unlock()

	m.logger.Error("pipeline failed",
		logging.String("reason", message),
		logging.String(logging.FieldEventType, "pipeline_failed"),
	)
	m.hooks.StageEntered(StageFailed)
	m.hub.Publish(bus.Event{RunID: runID, Step: bus.StepError, Message: message})
}

// Reset abandons the current run and starts a fresh one: every stage returns
// to pending and the tracked job title and download guard are cleared.
func (m *Machine) Reset() {
	m.mu.Lock()
	old := m.run.ID
	m.run = newRun()
	m.mu.Unlock()

	m.logger.Info("pipeline reset",
		logging.String("previous_run", old),
		logging.String(logging.FieldEventType, "pipeline_reset"),
	)
	m.hooks.StageEntered(StagePending)
}

// SetTrackedJobTitle records the external job this run follows. The title is
// immutable once set; a second call with a different title is rejected.
func (m *Machine) SetTrackedJobTitle(title string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run.TrackedJobTitle != "" {
		return m.run.TrackedJobTitle == title
	}
	m.run.TrackedJobTitle = title
	return true
}

// TrackedJobTitle returns the adopted job title, empty when none is tracked.
func (m *Machine) TrackedJobTitle() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run.TrackedJobTitle
}

// TriggerDownload flips the one-shot download guard. It returns true exactly
// once per run.
func (m *Machine) TriggerDownload() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run.DownloadTriggered {
		return false
	}
	m.run.DownloadTriggered = true
	return true
}

// CurrentStage returns the stage the run is in.
func (m *Machine) CurrentStage() Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run.CurrentStage
}

// RunID identifies the current run; it changes on every Reset.
func (m *Machine) RunID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run.ID
}

// Snapshot returns an immutable view of the run for status reporting.
func (m *Machine) Snapshot() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run.view()
}
