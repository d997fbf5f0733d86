package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"carousel/internal/automation"
	"carousel/internal/logging"
)

// onJobCompleted runs once per run, from the tracker's poll goroutine, after
// the tracked job classified completed. The completion phase flag is
// persisted first so a crash mid-download resumes here.
func (m *Manager) onJobCompleted(ctx context.Context) {
	if err := m.store.SaveCompletionPhase(ctx); err != nil {
		m.logger.Warn("could not persist completion phase flag",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a crash during download restarts the whole run"),
		)
	}
	if err := m.store.ClearMonitoring(ctx); err != nil {
		m.logger.Warn("could not clear monitoring flag", logging.Error(err))
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runDownload(ctx)
	}()
}

// runDownload asks the driver to start the artifact download, waits for the
// file to land in the downloads directory, and moves it into the inbound
// directory where the ingestion watcher picks it up.
func (m *Manager) runDownload(ctx context.Context) {
	hinted, err := automation.RetryValue(ctx, func() (string, error) {
		return m.driver.DownloadCurrentArtifact(ctx)
	})
	if err != nil {
		m.failRun(fmt.Sprintf("artifact download failed: %v", err))
		return
	}

	archive, err := m.waitForDownload(ctx, hinted)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.failRun(fmt.Sprintf("artifact download did not finish: %v", err))
		return
	}

	dest := filepath.Join(m.cfg.Paths.InboundDir, filepath.Base(archive))
	if err := moveFile(archive, dest); err != nil {
		m.failRun(fmt.Sprintf("could not move artifact to inbound directory: %v", err))
		return
	}
	m.logger.Info("artifact handed to ingestion",
		logging.String("archive", filepath.Base(dest)),
		logging.String(logging.FieldEventType, "download_finished"),
	)
}

// waitForDownload polls the downloads directory until a new archive is
// present and stable: minimum size reached and unmodified for the stability
// window. Bounded by the configured download timeout. The hinted path from
// the driver is preferred when it appears; otherwise any new archive in the
// directory counts.
func (m *Manager) waitForDownload(ctx context.Context, hinted string) (string, error) {
	timeout := time.Duration(m.cfg.Workflow.DownloadTimeoutSeconds) * time.Second
	interval := time.Duration(m.cfg.Workflow.DownloadCheckIntervalSeconds) * time.Second
	stableAfter := time.Duration(m.cfg.Workflow.FileStableAfterSeconds) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if stableAfter <= 0 {
		stableAfter = 5 * time.Second
	}

	baseline := make(map[string]struct{})
	if entries, err := os.ReadDir(m.cfg.Paths.DownloadsDir); err == nil {
		for _, entry := range entries {
			baseline[entry.Name()] = struct{}{}
		}
	}

	deadline := time.Now().Add(timeout)
	for {
		if candidate := m.findFinishedDownload(baseline, hinted, stableAfter); candidate != "" {
			return candidate, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("no stable archive in %s within %s", m.cfg.Paths.DownloadsDir, timeout)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (m *Manager) findFinishedDownload(baseline map[string]struct{}, hinted string, stableAfter time.Duration) string {
	stable := func(path string) bool {
		info, err := os.Stat(path)
		return err == nil && info.Size() >= int64(m.cfg.Workflow.MinArchiveBytes) &&
			time.Since(info.ModTime()) >= stableAfter
	}

	if hinted != "" && stable(hinted) {
		return hinted
	}

	entries, err := os.ReadDir(m.cfg.Paths.DownloadsDir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, existed := baseline[entry.Name()]; existed {
			continue
		}
		if !strings.EqualFold(filepath.Ext(entry.Name()), ".zip") {
			continue
		}
		path := filepath.Join(m.cfg.Paths.DownloadsDir, entry.Name())
		if stable(path) {
			return path
		}
	}
	return ""
}

// onArtifactReady fires from the ingestion watcher exactly once per folder.
// It completes the run, ships the artifact, and schedules teardown.
func (m *Manager) onArtifactReady(folder, path string) {
	if !m.machine.Complete(folder, path) {
		return
	}

	ctx := context.Background()
	result := m.uploader.Upload(ctx, path, findPreview(path))
	if result.Err != nil {
		if err := m.notifier.NotifyUploadFailed(ctx, folder, result.Err); err != nil {
			m.logger.Debug("upload failure notification failed", logging.Error(err))
		}
	}
	if err := m.notifier.NotifyArtifactReady(ctx, folder); err != nil {
		m.logger.Debug("completion notification failed", logging.Error(err))
	}

	if err := m.store.ClearCompletionPhase(ctx); err != nil {
		m.logger.Warn("could not clear completion phase flag", logging.Error(err))
	}
	if err := m.store.ClearMonitoring(ctx); err != nil {
		m.logger.Warn("could not clear monitoring flag", logging.Error(err))
	}

	// The watcher invoked this callback, so its teardown happens off this
	// goroutine.
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.tracker.Stop()
		m.watcher.Stop()
		m.clearRun()
	}()
}

// findPreview picks an image at the folder root as the upload preview.
func findPreview(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".png", ".jpg", ".jpeg":
			return filepath.Join(dir, entry.Name())
		}
	}
	return ""
}

// moveFile renames src to dst, falling back to copy+remove when the rename
// crosses filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copy artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("flush destination: %w", err)
	}
	return os.Remove(src)
}
