package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Run captures the mutable state of one pipeline execution. All access goes
// through the Machine, which holds the lock.
type Run struct {
	ID                string
	StartedAt         time.Time
	CurrentStage      Stage
	StageStatus       StageStatus
	TrackedJobTitle   string
	DownloadTriggered bool
	Message           string
}

func newRun() Run {
	return Run{
		ID:           uuid.NewString(),
		StartedAt:    time.Now().UTC(),
		CurrentStage: StagePending,
		StageStatus:  StatusPending,
	}
}

// View is an immutable snapshot of a run for status reporting.
type View struct {
	RunID             string      `json:"run_id"`
	StartedAt         time.Time   `json:"started_at"`
	Stage             string      `json:"stage"`
	StageStatus       StageStatus `json:"stage_status"`
	TrackedJobTitle   string      `json:"tracked_job_title,omitempty"`
	DownloadTriggered bool        `json:"download_triggered"`
	Message           string      `json:"message,omitempty"`
}

func (r Run) view() View {
	return View{
		RunID:             r.ID,
		StartedAt:         r.StartedAt,
		Stage:             r.CurrentStage.String(),
		StageStatus:       r.StageStatus,
		TrackedJobTitle:   r.TrackedJobTitle,
		DownloadTriggered: r.DownloadTriggered,
		Message:           r.Message,
	}
}
