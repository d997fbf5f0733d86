package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

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

func newTestDaemon(t *testing.T) (*daemon.Daemon, *config.Config) {
	t.Helper()
	tmp := t.TempDir()
	cfg := config.Default()
	cfg.Paths.InboundDir = filepath.Join(tmp, "inbound")
	cfg.Paths.OutboundDir = filepath.Join(tmp, "outbound")
	cfg.Paths.DownloadsDir = filepath.Join(tmp, "downloads")
	cfg.Paths.LogDir = filepath.Join(tmp, "logs")
	cfg.Paths.DataDir = filepath.Join(tmp, "data")
	for _, dir := range []string{cfg.Paths.InboundDir, cfg.Paths.OutboundDir, cfg.Paths.DownloadsDir, cfg.Paths.LogDir, cfg.Paths.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	store, err := recovery.Open(&cfg)
	if err != nil {
		t.Fatalf("recovery.Open: %v", err)
	}

	logger := logging.NewNop()
	orch := orchestrator.New(&cfg, &automation.FakeDriver{}, turntable.Noop{}, store,
		notifications.NewService(&cfg), uploader.New(&cfg, logger), logger)
	d, err := daemon.New(&cfg, orch, store, nil, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	return d, &cfg
}

func TestIPCServerClient(t *testing.T) {
	d, cfg := newTestDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	socket := filepath.Join(cfg.Paths.LogDir, "carousel.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.Stage != "pending" {
		t.Fatalf("expected pending stage before a run, got %q", status.Stage)
	}

	stopResp, err := client.StopMonitoring()
	if err != nil {
		t.Fatalf("StopMonitoring RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatalf("expected stop to succeed: %s", stopResp.Message)
	}

	resetResp, err := client.Reset()
	if err != nil {
		t.Fatalf("Reset RPC failed: %v", err)
	}
	if !resetResp.Reset {
		t.Fatalf("expected reset to succeed: %s", resetResp.Message)
	}

	if _, err := client.Events(10); err != nil {
		t.Fatalf("Events RPC failed: %v", err)
	}

	notifResp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification RPC failed: %v", err)
	}
	if notifResp.Sent {
		t.Fatal("expected no notification without a configured topic")
	}
}

func TestDialFailsWithoutServer(t *testing.T) {
	if _, err := ipc.Dial(filepath.Join(t.TempDir(), "missing.sock")); err == nil {
		t.Fatal("expected dial to a missing socket to fail")
	}
}
