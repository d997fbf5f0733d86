package bus

import "time"

// Step identifies the pipeline phase an event reports on.
type Step string

const (
	StepAuthenticate Step = "authenticate"
	StepCapture      Step = "capture"
	StepProcessing   Step = "processing"
	StepDownload     Step = "download"
	StepComplete     Step = "complete"
	StepError        Step = "error"
)

// Event is a single pipeline progress notification.
type Event struct {
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"ts"`
	RunID     string    `json:"run_id,omitempty"`
	Step      Step      `json:"step"`
	Message   string    `json:"message,omitempty"`
	Folder    string    `json:"folder,omitempty"`
	Path      string    `json:"path,omitempty"`
}
