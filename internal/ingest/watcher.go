package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"carousel/internal/logging"
)

// stabilityTimeout bounds how long an archive may keep growing before the
// watcher gives up on it. The in-flight guard is cleared so a later event
// can retry.
const stabilityTimeout = 2 * time.Minute

// Settings configures the watcher's directories and heuristics.
type Settings struct {
	InboundDir      string
	OutboundDir     string
	MinArchiveBytes int64
	StableAfter     time.Duration
	SidecarWindow   time.Duration
}

// CompleteFunc receives exactly one call per finished artifact folder.
type CompleteFunc func(folder, path string)

// Watcher ingests reconstruction archives. Two detection paths feed it:
// filesystem notifications on the inbound and outbound directories, and a
// one-shot rescan of both at startup. Archive extraction is serialized per
// filename; completions are deduplicated per folder name.
type Watcher struct {
	settings Settings
	logger   *slog.Logger

	// runID identifies the current pipeline run. A completion whose run has
	// since reset is dropped rather than reported.
	runID func() string
	// onComplete publishes the completion. Fires at most once per folder.
	onComplete CompleteFunc

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	fsw     *fsnotify.Watcher
	loopWG  sync.WaitGroup

	// extractWG tracks in-flight extractions. Stop does not wait on it:
	// half-written artifacts must not be abandoned, so extraction outlives
	// the loops and its late event is dropped by the run-identity check.
	extractWG sync.WaitGroup

	stateMu  sync.Mutex
	inFlight map[string]struct{}
	known    map[string]struct{}
}

// New constructs a watcher. runID supplies the current run identity;
// onComplete receives finished folders.
func New(settings Settings, logger *slog.Logger, runID func() string, onComplete CompleteFunc) *Watcher {
	if settings.StableAfter <= 0 {
		settings.StableAfter = 5 * time.Second
	}
	if settings.MinArchiveBytes <= 0 {
		settings.MinArchiveBytes = 1024
	}
	if settings.SidecarWindow <= 0 {
		settings.SidecarWindow = 10 * time.Minute
	}
	return &Watcher{
		settings:   settings,
		logger:     logging.NewComponentLogger(logger, "ingest"),
		runID:      runID,
		onComplete: onComplete,
		inFlight:   make(map[string]struct{}),
		known:      make(map[string]struct{}),
	}
}

// Start registers the filesystem watches, performs the startup rescan, and
// launches the event loop. It returns an error when already running or when
// the inbound directory cannot be watched.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("ingest watcher already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	if err := fsw.Add(w.settings.InboundDir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch inbound directory: %w", err)
	}
	if err := fsw.Add(w.settings.OutboundDir); err != nil {
		// Outbound storage may be offline; the rescan and inbound path
		// still cover completions.
		w.logger.Warn("outbound directory not watchable",
			logging.Error(err),
			logging.String("dir", w.settings.OutboundDir),
			logging.String(logging.FieldImpact, "completion detection relies on the extraction path only"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel
	w.running = true

	// Watches are registered before the rescan so nothing lands in the gap;
	// the in-flight and known sets absorb double reports.
	w.rescan(runCtx)

	w.loopWG.Add(1)
	go w.eventLoop(runCtx, fsw)

	w.logger.Info("artifact ingestion started",
		logging.String("inbound", w.settings.InboundDir),
		logging.String("outbound", w.settings.OutboundDir),
		logging.String(logging.FieldEventType, "ingest_started"),
	)
	return nil
}

// Stop terminates the event loop. In-flight extractions are left to finish;
// their completion events are dropped by the run-identity check if the run
// has moved on.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	fsw := w.fsw
	w.running = false
	w.cancel = nil
	w.fsw = nil
	w.mu.Unlock()

	cancel()
	fsw.Close()
	w.loopWG.Wait()
	w.logger.Info("artifact ingestion stopped",
		logging.String(logging.FieldEventType, "ingest_stopped"),
	)
}

// Running reports whether the event loop is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// WaitIdle blocks until no extraction is in flight. Test hook.
func (w *Watcher) WaitIdle() {
	w.extractWG.Wait()
}

// rescan enumerates both directories once, catching archives and folders
// that arrived while the process was down.
func (w *Watcher) rescan(ctx context.Context) {
	if entries, err := os.ReadDir(w.settings.InboundDir); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() && isArchive(entry.Name()) {
				w.handleArchive(ctx, filepath.Join(w.settings.InboundDir, entry.Name()))
			}
		}
	} else {
		w.logger.Warn("inbound rescan failed", logging.Error(err))
	}

	if entries, err := os.ReadDir(w.settings.OutboundDir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				w.handleOutboundFolder(filepath.Join(w.settings.OutboundDir, entry.Name()))
			}
		}
	} else {
		w.logger.Debug("outbound rescan skipped", logging.Error(err))
	}
}

func (w *Watcher) eventLoop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.loopWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watch error", logging.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	dir := filepath.Dir(event.Name)
	switch {
	case sameDir(dir, w.settings.InboundDir):
		if isArchive(event.Name) {
			w.handleArchive(ctx, event.Name)
		}
	case sameDir(dir, w.settings.OutboundDir):
		w.handleOutboundFolder(event.Name)
	}
}

func sameDir(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

// handleArchive launches an extraction for the archive unless one is
// already in flight for the same filename.
func (w *Watcher) handleArchive(ctx context.Context, path string) {
	filename := filepath.Base(path)

	w.stateMu.Lock()
	if _, busy := w.inFlight[filename]; busy {
		w.stateMu.Unlock()
		w.logger.Debug("archive already in flight", logging.String("archive", filename))
		return
	}
	w.inFlight[filename] = struct{}{}
	w.stateMu.Unlock()

	w.extractWG.Add(1)
	go w.ingestArchive(ctx, path, filename)
}

func (w *Watcher) ingestArchive(ctx context.Context, path, filename string) {
	defer w.extractWG.Done()
	defer func() {
		w.stateMu.Lock()
		delete(w.inFlight, filename)
		w.stateMu.Unlock()
	}()

	run := w.runID()

	if err := w.waitStable(ctx, path); err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("archive never stabilized",
				logging.Error(err),
				logging.String("archive", filename),
				logging.String(logging.FieldErrorHint, "a later write or the next startup rescan retries it"),
			)
		}
		return
	}

	folder := strings.TrimSuffix(filename, filepath.Ext(filename))
	destDir := filepath.Join(w.settings.OutboundDir, folder)

	if err := w.extract(path, destDir); err != nil {
		// Archive stays in place so a future event can retry.
		w.logger.Error("archive extraction failed",
			logging.Error(err),
			logging.String("archive", filename),
			logging.String(logging.FieldEventType, "extraction_failed"),
		)
		return
	}

	if err := os.Remove(path); err != nil {
		w.logger.Warn("could not remove extracted archive",
			logging.Error(err),
			logging.String("archive", filename),
		)
	}

	w.reportComplete(run, folder, destDir, "extraction")
}

// extract unpacks the archive, flattens nested model files, and pulls recent
// preview images from the inbound root into the destination.
func (w *Watcher) extract(path, destDir string) error {
	if err := extractArchive(path, destDir); err != nil {
		return err
	}

	leftover, err := flatten(destDir)
	if err != nil {
		return err
	}
	for _, dir := range leftover {
		w.logger.Debug("could not remove emptied directory", logging.String("dir", dir))
	}

	moved, err := attachSidecars(w.settings.InboundDir, destDir, w.settings.SidecarWindow)
	if err != nil {
		w.logger.Warn("sidecar image move failed", logging.Error(err))
	}
	for _, sidecar := range moved {
		w.logger.Debug("attached preview image", logging.String("image", filepath.Base(sidecar)))
	}
	return nil
}

// waitStable blocks until the archive stops growing: at least the minimum
// size and unmodified for the stability window. Zero-byte and actively
// growing files are never extracted.
func (w *Watcher) waitStable(ctx context.Context, path string) error {
	deadline := time.Now().Add(stabilityTimeout)
	for {
		info, err := os.Stat(path)
		switch {
		case err != nil:
			return fmt.Errorf("stat archive: %w", err)
		case info.Size() >= w.settings.MinArchiveBytes && time.Since(info.ModTime()) >= w.settings.StableAfter:
			return nil
		case time.Now().After(deadline):
			return fmt.Errorf("still unstable after %s (size %d)", stabilityTimeout, info.Size())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// handleOutboundFolder is the second detection path: a non-empty folder in
// the outbound directory that is not yet known counts as a completion.
func (w *Watcher) handleOutboundFolder(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || !folderNonEmpty(path) {
		return
	}
	w.reportComplete(w.runID(), filepath.Base(path), path, "outbound watch")
}

// reportComplete publishes the completion exactly once per folder. Both
// detection paths funnel through the same known-folders set under one lock.
func (w *Watcher) reportComplete(run, folder, path, source string) {
	w.stateMu.Lock()
	if _, seen := w.known[folder]; seen {
		w.stateMu.Unlock()
		return
	}
	w.known[folder] = struct{}{}
	w.stateMu.Unlock()

	if current := w.runID(); current != run {
		w.logger.Info("dropping completion from a previous run",
			logging.String(logging.FieldFolder, folder),
			logging.String(logging.FieldEventType, "late_completion_dropped"),
		)
		return
	}

	w.logger.Info("artifact ready",
		logging.String(logging.FieldFolder, folder),
		logging.String("path", path),
		logging.String("detected_by", source),
		logging.String(logging.FieldEventType, "artifact_ready"),
	)
	if w.onComplete != nil {
		w.onComplete(folder, path)
	}
}
