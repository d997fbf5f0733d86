package ipc

import (
	"time"

	"carousel/internal/bus"
)

// StartRequest triggers a new capture run.
type StartRequest struct{}

// StartResponse indicates whether the run was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopMonitoringRequest halts polling and ingestion for the current run.
type StopMonitoringRequest struct{}

// StopMonitoringResponse indicates stop result.
type StopMonitoringResponse struct {
	Stopped bool   `json:"stopped"`
	Message string `json:"message"`
}

// ResetRequest abandons the current run.
type ResetRequest struct{}

// ResetResponse indicates reset result.
type ResetResponse struct {
	Reset   bool   `json:"reset"`
	Message string `json:"message"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and pipeline status.
type StatusResponse struct {
	Running               bool      `json:"running"`
	PID                   int       `json:"pid"`
	RunID                 string    `json:"run_id"`
	StartedAt             time.Time `json:"started_at"`
	Stage                 string    `json:"stage"`
	StageStatus           string    `json:"stage_status"`
	TrackedJobTitle       string    `json:"tracked_job_title"`
	DownloadTriggered     bool      `json:"download_triggered"`
	Message               string    `json:"message"`
	Tracking              bool      `json:"tracking"`
	Watching              bool      `json:"watching"`
	MonitoringActive      bool      `json:"monitoring_active"`
	MonitoringStartedAt   time.Time `json:"monitoring_started_at,omitzero"`
	CompletionPhaseActive bool      `json:"completion_phase_active"`
	DevicePresent         bool      `json:"device_present"`
	RecoveryDB            string    `json:"recovery_db"`
	LockPath              string    `json:"lock_path"`
}

// EventsRequest fetches recent pipeline events.
type EventsRequest struct {
	Limit int `json:"limit"`
}

// EventsResponse returns events oldest first.
type EventsResponse struct {
	Events []bus.Event `json:"events"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
