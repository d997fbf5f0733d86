package main

import (
	"log/slog"
	"path/filepath"
	"time"

	"carousel/internal/automation"
	"carousel/internal/config"
	"carousel/internal/daemon"
	"carousel/internal/notifications"
	"carousel/internal/orchestrator"
	"carousel/internal/recovery"
	"carousel/internal/turntable"
	"carousel/internal/uploader"
)

func buildDaemon(cfg *config.Config, store *recovery.Store, logger *slog.Logger) (*daemon.Daemon, error) {
	driver := automation.NewRemote(
		cfg.Automation.AgentURL,
		time.Duration(cfg.Automation.RequestTimeoutSeconds)*time.Second,
	)

	table := buildTurntable(cfg, logger)
	monitor := buildMonitor(cfg, logger)

	orch := orchestrator.New(
		cfg,
		driver,
		table,
		store,
		notifications.NewService(cfg),
		uploader.New(cfg, logger),
		logger,
	)

	return daemon.New(cfg, orch, store, monitor, logger)
}

func buildTurntable(cfg *config.Config, logger *slog.Logger) turntable.Controller {
	if cfg == nil || !cfg.Turntable.Enabled {
		return turntable.Noop{}
	}
	return turntable.NewLogged(nil, logger)
}

func buildMonitor(cfg *config.Config, logger *slog.Logger) *turntable.DeviceMonitor {
	if cfg == nil || !cfg.Turntable.Enabled {
		return nil
	}
	return turntable.NewDeviceMonitor(cfg.Turntable.Device, logger)
}

func buildSocketPath(cfg *config.Config) string {
	if cfg == nil {
		return filepath.Join("", "carousel.sock")
	}
	return filepath.Join(cfg.Paths.LogDir, "carousel.sock")
}
