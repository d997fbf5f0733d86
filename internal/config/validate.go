package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateAutomation(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.InboundDir) == "" {
		return errors.New("paths.inbound_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutboundDir) == "" {
		return errors.New("paths.outbound_dir must be set")
	}
	if c.Paths.InboundDir == c.Paths.OutboundDir {
		return errors.New("paths.inbound_dir and paths.outbound_dir must differ")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.DownloadCheckIntervalSeconds > c.Workflow.DownloadTimeoutSeconds {
		return errors.New("workflow.download_check_interval_seconds must not exceed workflow.download_timeout_seconds")
	}
	return nil
}

func (c *Config) validateAutomation() error {
	if strings.TrimSpace(c.Automation.BaseURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/carousel/config.toml"
		}
		return fmt.Errorf("automation.base_url is required. Edit %s (create with 'carousel config init')", defaultPath)
	}
	if !strings.HasPrefix(c.Automation.BaseURL, "http://") && !strings.HasPrefix(c.Automation.BaseURL, "https://") {
		return errors.New("automation.base_url must start with http:// or https://")
	}
	return nil
}

func (c *Config) validateUpload() error {
	endpoint := strings.TrimSpace(c.Upload.Endpoint)
	if endpoint == "" {
		return nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return errors.New("upload.endpoint must start with http:// or https://")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
