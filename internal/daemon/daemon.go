package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"carousel/internal/bus"
	"carousel/internal/config"
	"carousel/internal/logging"
	"carousel/internal/notifications"
	"carousel/internal/orchestrator"
	"carousel/internal/recovery"
	"carousel/internal/turntable"
)

// Daemon owns the background services and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	orch    *orchestrator.Manager
	store   *recovery.Store
	monitor *turntable.DeviceMonitor
	logPath string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	Pipeline      orchestrator.Status
	DevicePresent bool
	RecoveryDB    string
	LockFilePath  string
}

// New constructs a daemon. The turntable device monitor is optional.
func New(cfg *config.Config, orch *orchestrator.Manager, store *recovery.Store, monitor *turntable.DeviceMonitor, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || orch == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, orchestrator, store, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "carouseld.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		orch:     orch,
		store:    store,
		monitor:  monitor,
		logPath:  filepath.Join(cfg.Paths.LogDir, "carousel.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, applies the startup recovery policy, and
// begins watching the turntable device.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another carousel daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if d.monitor != nil {
		if err := d.monitor.Start(d.ctx); err != nil {
			d.logger.Warn("turntable device monitor unavailable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "device attach/detach goes unnoticed"),
			)
		}
	}

	if err := d.orch.Resume(d.ctx); err != nil {
		d.logger.Warn("startup recovery incomplete",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the recovery database and restart"),
		)
	}

	d.running.Store(true)
	d.logger.Info("carousel daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop shuts background services down and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.monitor != nil {
		d.monitor.Stop()
	}
	d.orch.Shutdown()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("carousel daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"),
	)
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// StartRun begins a new capture run.
func (d *Daemon) StartRun(ctx context.Context) error {
	if !d.running.Load() {
		return errors.New("daemon not running")
	}
	return d.orch.Start(ctx)
}

// StopMonitoring halts job polling and ingestion without abandoning the run.
func (d *Daemon) StopMonitoring(ctx context.Context) error {
	return d.orch.StopMonitoring(ctx)
}

// ResetRun abandons the current run.
func (d *Daemon) ResetRun(ctx context.Context) error {
	return d.orch.Reset(ctx)
}

// Events returns the most recent pipeline events, oldest first.
func (d *Daemon) Events(limit int) []bus.Event {
	return d.orch.Hub().Tail(limit)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Pipeline:     d.orch.Status(ctx),
		RecoveryDB:   d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if d.monitor != nil {
		status.DevicePresent = d.monitor.Present()
	}
	return status
}
