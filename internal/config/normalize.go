package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeTracker()
	c.normalizeAutomation()
	c.normalizeUpload()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.InboundDir, err = expandPath(c.Paths.InboundDir); err != nil {
		return fmt.Errorf("paths.inbound_dir: %w", err)
	}
	if c.Paths.OutboundDir, err = expandPath(c.Paths.OutboundDir); err != nil {
		return fmt.Errorf("paths.outbound_dir: %w", err)
	}
	if c.Paths.DownloadsDir, err = expandPath(c.Paths.DownloadsDir); err != nil {
		return fmt.Errorf("paths.downloads_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.PollIntervalSeconds <= 0 {
		c.Workflow.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if c.Workflow.MaxPollAttempts <= 0 {
		c.Workflow.MaxPollAttempts = defaultMaxPollAttempts
	}
	if c.Workflow.MonitoringStaleAfterSeconds <= 0 {
		c.Workflow.MonitoringStaleAfterSeconds = defaultMonitoringStaleAfterSeconds
	}
	if c.Workflow.DownloadTimeoutSeconds <= 0 {
		c.Workflow.DownloadTimeoutSeconds = defaultDownloadTimeoutSeconds
	}
	if c.Workflow.DownloadCheckIntervalSeconds <= 0 {
		c.Workflow.DownloadCheckIntervalSeconds = defaultDownloadCheckIntervalSeconds
	}
	if c.Workflow.FileStableAfterSeconds <= 0 {
		c.Workflow.FileStableAfterSeconds = defaultFileStableAfterSeconds
	}
	if c.Workflow.MinArchiveBytes <= 0 {
		c.Workflow.MinArchiveBytes = defaultMinArchiveBytes
	}
	if c.Workflow.SidecarWindowMinutes <= 0 {
		c.Workflow.SidecarWindowMinutes = defaultSidecarWindowMinutes
	}
	if c.Workflow.ErrorStreakWarn <= 0 {
		c.Workflow.ErrorStreakWarn = defaultErrorStreakWarn
	}
}

func (c *Config) normalizeTracker() {
	if strings.TrimSpace(c.Tracker.QueuedMarker) == "" {
		c.Tracker.QueuedMarker = defaultQueuedMarker
	}
	if strings.TrimSpace(c.Tracker.ProcessingMarker) == "" {
		c.Tracker.ProcessingMarker = defaultProcessingMarker
	}
	if strings.TrimSpace(c.Tracker.FailedMarker) == "" {
		c.Tracker.FailedMarker = defaultFailedMarker
	}
}

func (c *Config) normalizeAutomation() {
	if key := strings.TrimSpace(os.Getenv("CAROUSEL_AUTOMATION_PASSWORD")); key != "" && c.Automation.Password == "" {
		c.Automation.Password = key
	}
	if c.Automation.RequestTimeoutSeconds <= 0 {
		c.Automation.RequestTimeoutSeconds = defaultAutomationTimeoutSeconds
	}
	c.Automation.BaseURL = strings.TrimRight(strings.TrimSpace(c.Automation.BaseURL), "/")
}

func (c *Config) normalizeUpload() {
	if token := strings.TrimSpace(os.Getenv("CAROUSEL_UPLOAD_TOKEN")); token != "" && c.Upload.Token == "" {
		c.Upload.Token = token
	}
	if c.Upload.TimeoutSeconds <= 0 {
		c.Upload.TimeoutSeconds = defaultUploadTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
