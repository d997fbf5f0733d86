package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	InboundDir   string `toml:"inbound_dir"`
	OutboundDir  string `toml:"outbound_dir"`
	DownloadsDir string `toml:"downloads_dir"`
	LogDir       string `toml:"log_dir"`
	DataDir      string `toml:"data_dir"`
}

// Workflow contains pipeline timing and threshold configuration.
type Workflow struct {
	PollIntervalSeconds          int `toml:"poll_interval_seconds"`
	MaxPollAttempts              int `toml:"max_poll_attempts"`
	MonitoringStaleAfterSeconds  int `toml:"monitoring_stale_after_seconds"`
	DownloadTimeoutSeconds       int `toml:"download_timeout_seconds"`
	DownloadCheckIntervalSeconds int `toml:"download_check_interval_seconds"`
	FileStableAfterSeconds       int `toml:"file_stable_after_seconds"`
	MinArchiveBytes              int `toml:"min_archive_bytes"`
	SidecarWindowMinutes         int `toml:"sidecar_window_minutes"`
	ErrorStreakWarn              int `toml:"error_streak_warn"`
}

// Tracker contains the status-text markers used to classify external jobs.
// The defaults mirror the copy the reconstruction service renders in its job
// list; they are configurable because that copy is not a stable protocol.
type Tracker struct {
	QueuedMarker     string `toml:"queued_marker"`
	ProcessingMarker string `toml:"processing_marker"`
	FailedMarker     string `toml:"failed_marker"`
}

// Automation contains connection settings for the web automation driver.
// AgentURL points at the browser automation agent that executes page
// interactions on the daemon's behalf; BaseURL is the reconstruction
// service the agent drives.
type Automation struct {
	BaseURL               string `toml:"base_url"`
	AgentURL              string `toml:"agent_url"`
	Username              string `toml:"username"`
	Password              string `toml:"password"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Turntable contains configuration for the capture turntable.
type Turntable struct {
	Enabled bool   `toml:"enabled"`
	Device  string `toml:"device"`
}

// Upload contains configuration for the outbound artifact upload.
type Upload struct {
	Endpoint       string `toml:"endpoint"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Errors         bool   `toml:"errors"`
	Completion     bool   `toml:"completion"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Carousel.
//
// Configuration sections by subsystem:
//   - Paths: watch directories, downloads location, logs, durable data
//   - Workflow: polling cadence, staleness windows, download heuristics
//   - Tracker: job status markers scraped from the reconstruction service
//   - Automation: web automation driver connection settings
//   - Turntable: capture turntable device settings
//   - Upload: outbound artifact store
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workflow      Workflow      `toml:"workflow"`
	Tracker       Tracker       `toml:"tracker"`
	Automation    Automation    `toml:"automation"`
	Turntable     Turntable     `toml:"turntable"`
	Upload        Upload        `toml:"upload"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/carousel/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a config file was found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("carousel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// OutboundDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.InboundDir, c.Paths.LogDir, c.Paths.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OutboundDir) != "" {
		// Best-effort to avoid failing config load when storage is offline.
		_ = os.MkdirAll(c.Paths.OutboundDir, 0o755)
	}
	return nil
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// ExpandPath resolves ~ prefixes and returns an absolute, cleaned path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
