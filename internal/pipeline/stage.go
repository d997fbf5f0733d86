package pipeline

import "carousel/internal/bus"

// Stage identifies a phase of the capture pipeline. The zero value is
// StagePending, meaning no run is active.
type Stage int

const (
	StagePending Stage = iota
	StageAuthenticate
	StageCapture
	StageProcess
	StageDownload
	StageCompleted
	StageFailed
)

// StageStatus reports progress within a stage.
type StageStatus string

const (
	StatusPending   StageStatus = "pending"
	StatusActive    StageStatus = "active"
	StatusCompleted StageStatus = "completed"
)

var stageNames = map[Stage]string{
	StagePending:      "pending",
	StageAuthenticate: "authenticate",
	StageCapture:      "capture",
	StageProcess:      "process",
	StageDownload:     "download",
	StageCompleted:    "completed",
	StageFailed:       "failed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the stage ends the run.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Step maps the stage onto the event-bus step published on entry.
func (s Stage) Step() bus.Step {
	switch s {
	case StageAuthenticate:
		return bus.StepAuthenticate
	case StageCapture:
		return bus.StepCapture
	case StageProcess:
		return bus.StepProcessing
	case StageDownload:
		return bus.StepDownload
	case StageCompleted:
		return bus.StepComplete
	case StageFailed:
		return bus.StepError
	default:
		return bus.Step("")
	}
}
