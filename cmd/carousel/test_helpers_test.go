package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

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

type cliTestEnv struct {
	cfg        *config.Config
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := config.Default()
	cfg.Paths.InboundDir = filepath.Join(base, "inbound")
	cfg.Paths.OutboundDir = filepath.Join(base, "outbound")
	cfg.Paths.DownloadsDir = filepath.Join(base, "downloads")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	configPath := filepath.Join(homeDir, ".config", "carousel", "config.toml")
	writeTestConfig(t, configPath, &cfg)

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

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon.Start: %v", err)
	}

	socketPath := filepath.Join(cfg.Paths.LogDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return &cliTestEnv{cfg: &cfg, socketPath: socketPath, configPath: configPath}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	content := fmt.Sprintf(
		"[paths]\ninbound_dir = %q\noutbound_dir = %q\ndownloads_dir = %q\nlog_dir = %q\ndata_dir = %q\n\n"+
			"[automation]\nbase_url = \"http://127.0.0.1:9\"\npassword = \"hunter2\"\n",
		cfg.Paths.InboundDir,
		cfg.Paths.OutboundDir,
		cfg.Paths.DownloadsDir,
		cfg.Paths.LogDir,
		cfg.Paths.DataDir,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
