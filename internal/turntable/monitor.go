package turntable

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"carousel/internal/logging"
)

// DeviceMonitor watches udev netlink events for the turntable's serial
// adapter so attach/detach is visible in logs and status output.
type DeviceMonitor struct {
	logger *slog.Logger
	device string

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
	present bool
}

// NewDeviceMonitor builds a monitor for the given serial device node, e.g.
// /dev/ttyUSB0. Returns nil when no device is configured.
func NewDeviceMonitor(device string, logger *slog.Logger) *DeviceMonitor {
	device = strings.TrimSpace(device)
	if device == "" {
		return nil
	}
	return &DeviceMonitor{
		logger: logging.NewComponentLogger(logger, "turntable-monitor"),
		device: device,
	}
}

// Start begins listening for udev netlink events. Connection failures are
// logged and non-fatal: the rig still works, only presence reporting is lost.
func (m *DeviceMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; turntable presence reporting unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("turntable device monitor started",
		logging.String(logging.FieldEventType, "device_monitor_started"),
		logging.String("device", m.device),
	)
	return nil
}

// Stop shuts down the monitor.
func (m *DeviceMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("turntable device monitor stopped",
		logging.String(logging.FieldEventType, "device_monitor_stopped"),
	)
}

// Present reports whether the serial adapter was seen attached.
func (m *DeviceMonitor) Present() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.present
}

func (m *DeviceMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
			)
		}
	}
}

// buildMatcher matches tty subsystem add/remove events; the device name is
// checked per event because udev does not filter on DEVNAME.
func (m *DeviceMonitor) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "tty",
		},
	})
	return rules
}

func (m *DeviceMonitor) handleEvent(uevent netlink.UEvent) {
	devname := strings.TrimSpace(uevent.Env["DEVNAME"])
	if devname == "" {
		return
	}
	if !strings.HasPrefix(devname, "/dev/") {
		devname = filepath.Join("/dev", devname)
	}
	if devname != m.device {
		return
	}

	attached := uevent.Action == netlink.ADD

	m.mu.Lock()
	changed := m.present != attached
	m.present = attached
	m.mu.Unlock()

	if !changed {
		return
	}
	if attached {
		m.logger.Info("turntable attached",
			logging.String("device", devname),
			logging.String(logging.FieldEventType, "turntable_attached"),
		)
	} else {
		m.logger.Warn("turntable detached",
			logging.String("device", devname),
			logging.String(logging.FieldEventType, "turntable_detached"),
			logging.String(logging.FieldImpact, "capture rotation unavailable until reattached"),
		)
	}
}
