package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"carousel/internal/automation"
	"carousel/internal/config"
	"carousel/internal/daemon"
	"carousel/internal/ipc"
	"carousel/internal/logging"
	"carousel/internal/notifications"
	"carousel/internal/orchestrator"
	"carousel/internal/recovery"
	"carousel/internal/turntable"
	"carousel/internal/uploader"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:          "daemon",
		Short:        "Run the carousel daemon (internal)",
		Hidden:       true,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "carousel.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := recovery.Open(cfg)
	if err != nil {
		logger.Error("open recovery store", logging.Args(logging.Error(err))...)
		return err
	}

	d, err := newDaemon(cfg, store, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, ctx.socketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("daemon start: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("carousel daemon shutting down")
	return nil
}

func newDaemon(cfg *config.Config, store *recovery.Store, logger *slog.Logger) (*daemon.Daemon, error) {
	driver := automation.NewRemote(
		cfg.Automation.AgentURL,
		time.Duration(cfg.Automation.RequestTimeoutSeconds)*time.Second,
	)

	var table turntable.Controller = turntable.Noop{}
	var monitor *turntable.DeviceMonitor
	if cfg.Turntable.Enabled {
		table = turntable.NewLogged(nil, logger)
		monitor = turntable.NewDeviceMonitor(cfg.Turntable.Device, logger)
	}

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

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
