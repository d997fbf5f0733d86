package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"carousel/internal/bus"
	"carousel/internal/ipc"
)

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon running")
	requireContains(t, out, "idle")
}

func TestStopMonitoringAndResetCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"stop-monitoring"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("stop-monitoring: %v", err)
	}
	requireContains(t, out, "Monitoring stopped")

	out, _, err = runCLI(t, []string{"reset"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	requireContains(t, out, "Run reset")
}

func TestEventsCommandEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"events"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	requireContains(t, out, "No events recorded")
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.socketPath, "")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "show"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "inbound_dir")
	requireContains(t, out, "<redacted>")
	if strings.Contains(out, "hunter2") {
		t.Fatal("config show leaked the automation password")
	}
}

func TestDialErrorMentionsSocket(t *testing.T) {
	env := setupCLITestEnv(t)

	missing := filepath.Join(t.TempDir(), "missing.sock")
	_, _, err := runCLI(t, []string{"status"}, missing, env.configPath)
	if err == nil {
		t.Fatal("expected dial error for missing socket")
	}
	requireContains(t, err.Error(), missing)
}

func TestStatusRows(t *testing.T) {
	resp := &ipc.StatusResponse{
		Running:           true,
		PID:               42,
		RunID:             "run-123",
		StartedAt:         time.Now(),
		Stage:             "process",
		StageStatus:       "active",
		TrackedJobTitle:   "Scan-09",
		Tracking:          true,
		Watching:          true,
		MonitoringActive:  true,
		DownloadTriggered: false,
	}

	rows := statusRows(resp)
	flat := map[string]string{}
	for _, row := range rows {
		flat[row[0]] = row[1]
	}
	if flat["Daemon running"] != "yes" {
		t.Fatalf("expected running yes, got %q", flat["Daemon running"])
	}
	if flat["Stage"] != "process (active)" {
		t.Fatalf("unexpected stage label %q", flat["Stage"])
	}
	if flat["Tracked job"] != "Scan-09" {
		t.Fatalf("unexpected tracked job %q", flat["Tracked job"])
	}
	if _, ok := flat["Monitoring flag"]; !ok {
		t.Fatal("expected monitoring flag row")
	}
	if _, ok := flat["Completion phase flag"]; ok {
		t.Fatal("did not expect completion phase row")
	}
}

func TestEventDetail(t *testing.T) {
	evt := bus.Event{Folder: "Scan-01", Message: "artifact ready"}
	if got := eventDetail(evt); got != "Scan-01: artifact ready" {
		t.Fatalf("unexpected detail %q", got)
	}
	if got := eventDetail(bus.Event{Message: "run started"}); got != "run started" {
		t.Fatalf("unexpected detail %q", got)
	}
	if got := eventDetail(bus.Event{Folder: "Scan-02"}); got != "Scan-02" {
		t.Fatalf("unexpected detail %q", got)
	}
}
