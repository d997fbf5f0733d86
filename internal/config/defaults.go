package config

const (
	defaultInboundDir   = "~/.local/share/carousel/inbound"
	defaultOutboundDir  = "~/.local/share/carousel/outbound"
	defaultDownloadsDir = "~/Downloads"
	defaultLogDir       = "~/.local/share/carousel/logs"
	defaultDataDir      = "~/.local/share/carousel/data"

	defaultPollIntervalSeconds          = 5
	defaultMaxPollAttempts              = 150
	defaultMonitoringStaleAfterSeconds  = 120
	defaultDownloadTimeoutSeconds       = 120
	defaultDownloadCheckIntervalSeconds = 2
	defaultFileStableAfterSeconds       = 5
	defaultMinArchiveBytes              = 1024
	defaultSidecarWindowMinutes         = 10
	defaultErrorStreakWarn              = 3

	defaultQueuedMarker     = "Queuing"
	defaultProcessingMarker = "Processing"
	defaultFailedMarker     = "Failed"

	defaultAutomationAgentURL       = "http://127.0.0.1:9515"
	defaultAutomationTimeoutSeconds = 30
	defaultUploadTimeoutSeconds     = 60
	defaultNotifyRequestTimeout     = 10
	defaultTurntableDevice          = "/dev/ttyUSB0"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InboundDir:   defaultInboundDir,
			OutboundDir:  defaultOutboundDir,
			DownloadsDir: defaultDownloadsDir,
			LogDir:       defaultLogDir,
			DataDir:      defaultDataDir,
		},
		Workflow: Workflow{
			PollIntervalSeconds:          defaultPollIntervalSeconds,
			MaxPollAttempts:              defaultMaxPollAttempts,
			MonitoringStaleAfterSeconds:  defaultMonitoringStaleAfterSeconds,
			DownloadTimeoutSeconds:       defaultDownloadTimeoutSeconds,
			DownloadCheckIntervalSeconds: defaultDownloadCheckIntervalSeconds,
			FileStableAfterSeconds:       defaultFileStableAfterSeconds,
			MinArchiveBytes:              defaultMinArchiveBytes,
			SidecarWindowMinutes:         defaultSidecarWindowMinutes,
			ErrorStreakWarn:              defaultErrorStreakWarn,
		},
		Tracker: Tracker{
			QueuedMarker:     defaultQueuedMarker,
			ProcessingMarker: defaultProcessingMarker,
			FailedMarker:     defaultFailedMarker,
		},
		Automation: Automation{
			AgentURL:              defaultAutomationAgentURL,
			RequestTimeoutSeconds: defaultAutomationTimeoutSeconds,
		},
		Turntable: Turntable{
			Device: defaultTurntableDevice,
		},
		Upload: Upload{
			TimeoutSeconds: defaultUploadTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Errors:         true,
			Completion:     true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
