package orchestrator

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"carousel/internal/automation"
	"carousel/internal/bus"
	"carousel/internal/config"
	"carousel/internal/logging"
	"carousel/internal/notifications"
	"carousel/internal/pipeline"
	"carousel/internal/recovery"
	"carousel/internal/turntable"
	"carousel/internal/uploader"
)

// testConfig returns a config whose paths live under a temp dir and whose
// service URL answers, so startup checks pass.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	tmp := t.TempDir()
	cfg := config.Default()
	cfg.Automation.BaseURL = server.URL
	cfg.Paths.InboundDir = filepath.Join(tmp, "inbound")
	cfg.Paths.OutboundDir = filepath.Join(tmp, "outbound")
	cfg.Paths.DownloadsDir = filepath.Join(tmp, "downloads")
	cfg.Paths.LogDir = filepath.Join(tmp, "logs")
	cfg.Paths.DataDir = filepath.Join(tmp, "data")
	cfg.Workflow.PollIntervalSeconds = 1
	cfg.Workflow.DownloadCheckIntervalSeconds = 1
	cfg.Workflow.FileStableAfterSeconds = 1
	cfg.Workflow.MinArchiveBytes = 1
	for _, dir := range []string{cfg.Paths.InboundDir, cfg.Paths.OutboundDir, cfg.Paths.DownloadsDir, cfg.Paths.DataDir, cfg.Paths.LogDir} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	return cfg
}

func newTestManager(t *testing.T, cfg *config.Config, driver automation.Driver) *Manager {
	t.Helper()
	store, err := recovery.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := New(cfg, driver, turntable.Noop{}, store,
		notifications.NewService(cfg), uploader.New(cfg, logging.NewNop()), logging.NewNop())
	t.Cleanup(m.Shutdown)
	return m
}

// writeArchive drops a zip with a backdated mtime so stability checks pass
// on the first probe.
func writeArchive(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	past := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(path, past, past))
}

func collectEvents(t *testing.T, m *Manager) func() []bus.Event {
	t.Helper()
	events, cancel := m.Hub().Subscribe()
	t.Cleanup(cancel)

	var mu sync.Mutex
	var seen []bus.Event
	go func() {
		for evt := range events {
			mu.Lock()
			seen = append(seen, evt)
			mu.Unlock()
		}
	}()
	return func() []bus.Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]bus.Event(nil), seen...)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestRunEndToEnd(t *testing.T) {
	cfg := testConfig(t)

	driver := &automation.FakeDriver{
		Listings: [][]automation.Job{
			{{Title: "T1", StatusText: "Queuing.."}},
			{{Title: "T1", StatusText: "Processing.."}},
			{{Title: "T1", StatusText: ""}},
		},
	}
	driver.DownloadFunc = func(context.Context) (string, error) {
		path := filepath.Join(cfg.Paths.DownloadsDir, "T1.zip")
		writeArchive(t, path, map[string]string{"sub/model.glb": "model-bytes"})
		return path, nil
	}
	driver.ScreenshotFunc = func(context.Context) (string, error) {
		path := filepath.Join(t.TempDir(), "capture.png")
		require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o644))
		return path, nil
	}

	m := newTestManager(t, &cfg, driver)
	events := collectEvents(t, m)

	require.NoError(t, m.Start(context.Background()))
	waitFor(t, 30*time.Second, func() bool {
		return m.machine.CurrentStage() == pipeline.StageCompleted
	})

	// The archive was flattened into outbound/T1 with the model at the root.
	_, err := os.Stat(filepath.Join(cfg.Paths.OutboundDir, "T1", "model.glb"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.Paths.OutboundDir, "T1", "sub"))
	require.True(t, os.IsNotExist(err))

	// The capture screenshot rode along as a sidecar preview.
	_, err = os.Stat(filepath.Join(cfg.Paths.OutboundDir, "T1", "capture.png"))
	require.NoError(t, err)

	snap := m.machine.Snapshot()
	require.True(t, snap.DownloadTriggered)
	require.Equal(t, "T1", snap.TrackedJobTitle)

	var completes int
	for _, evt := range events() {
		if evt.Step == bus.StepComplete {
			completes++
			require.Equal(t, "T1", evt.Folder)
		}
	}
	require.Equal(t, 1, completes)

	// Recovery flags are gone once the artifact is published.
	waitFor(t, 5*time.Second, func() bool {
		status := m.Status(context.Background())
		return !status.MonitoringActive && !status.CompletionPhaseActive
	})
}

func TestRunFailsWhenJobReportsFailure(t *testing.T) {
	cfg := testConfig(t)

	driver := &automation.FakeDriver{
		Listings: [][]automation.Job{
			{{Title: "T1", StatusText: "Queuing.."}},
			{{Title: "T1", StatusText: "Failed"}},
		},
	}

	m := newTestManager(t, &cfg, driver)
	events := collectEvents(t, m)

	require.NoError(t, m.Start(context.Background()))
	waitFor(t, 15*time.Second, func() bool {
		return m.machine.CurrentStage() == pipeline.StageFailed
	})
	waitFor(t, 5*time.Second, func() bool { return !m.tracker.Running() && !m.watcher.Running() })

	for _, evt := range events() {
		require.NotEqual(t, bus.StepDownload, evt.Step, "failed run must not download")
		require.NotEqual(t, bus.StepComplete, evt.Step, "failed run must not complete")
	}

	status := m.Status(context.Background())
	require.False(t, status.MonitoringActive)
	require.False(t, status.CompletionPhaseActive)
}

func TestStartRejectsActiveRun(t *testing.T) {
	cfg := testConfig(t)
	driver := &automation.FakeDriver{
		Listings: [][]automation.Job{{{Title: "T1", StatusText: "Queuing.."}}},
	}

	m := newTestManager(t, &cfg, driver)
	require.NoError(t, m.Start(context.Background()))
	require.Error(t, m.Start(context.Background()))
}

func TestResetClearsRunAndFlags(t *testing.T) {
	cfg := testConfig(t)
	driver := &automation.FakeDriver{
		Listings: [][]automation.Job{{{Title: "T1", StatusText: "Processing.."}}},
	}

	m := newTestManager(t, &cfg, driver)
	require.NoError(t, m.Start(context.Background()))
	waitFor(t, 10*time.Second, func() bool {
		return m.machine.CurrentStage() == pipeline.StageProcess
	})

	require.NoError(t, m.Reset(context.Background()))

	require.Equal(t, pipeline.StagePending, m.machine.CurrentStage())
	require.False(t, m.tracker.Running())
	require.False(t, m.watcher.Running())
	status := m.Status(context.Background())
	require.False(t, status.MonitoringActive)
	require.False(t, status.CompletionPhaseActive)

	// A fresh run can start after the reset.
	require.NoError(t, m.Start(context.Background()))
}

func TestResumeRestartsCompletionPhase(t *testing.T) {
	cfg := testConfig(t)

	driver := &automation.FakeDriver{}
	driver.DownloadFunc = func(context.Context) (string, error) {
		path := filepath.Join(cfg.Paths.DownloadsDir, "Scan-07.zip")
		writeArchive(t, path, map[string]string{"model.stl": "stl-bytes"})
		return path, nil
	}

	m := newTestManager(t, &cfg, driver)
	require.NoError(t, m.store.SaveCompletionPhase(context.Background()))

	require.NoError(t, m.Resume(context.Background()))
	waitFor(t, 30*time.Second, func() bool {
		return m.machine.CurrentStage() == pipeline.StageCompleted
	})

	_, err := os.Stat(filepath.Join(cfg.Paths.OutboundDir, "Scan-07", "model.stl"))
	require.NoError(t, err)
}

func TestResumeLeavesFreshMonitoringAlone(t *testing.T) {
	cfg := testConfig(t)
	m := newTestManager(t, &cfg, &automation.FakeDriver{})

	require.NoError(t, m.store.SaveMonitoring(context.Background()))
	require.NoError(t, m.Resume(context.Background()))

	require.False(t, m.tracker.Running(), "fresh monitoring must not auto-resume")
	status := m.Status(context.Background())
	require.True(t, status.MonitoringActive, "fresh flag stays set for the operator")
}

func TestResumeClearsStaleMonitoring(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workflow.MonitoringStaleAfterSeconds = 0 // anything persisted is stale
	m := newTestManager(t, &cfg, &automation.FakeDriver{})

	require.NoError(t, m.store.SaveMonitoring(context.Background()))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, m.Resume(context.Background()))

	require.False(t, m.tracker.Running())
	status := m.Status(context.Background())
	require.False(t, status.MonitoringActive, "stale flag must be cleared")
}
